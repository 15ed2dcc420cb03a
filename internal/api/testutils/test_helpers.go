package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rcastellanos/estaciona-server/internal/api"
	"github.com/rcastellanos/estaciona-server/internal/config"
	"github.com/rcastellanos/estaciona-server/internal/models"
	"github.com/rcastellanos/estaciona-server/internal/repository"
	"github.com/rcastellanos/estaciona-server/internal/service"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

// fixedClock pins "now" for the lifetime of one test so window cutoffs are
// deterministic.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    service.Service
	Config     *config.Config
	DB         *sqlx.DB
	Now        time.Time
	AdminID    string
	AdminJWT   string
	StaffID    string
	StaffJWT   string
}

// SetupTestContext creates a new test context with initialized dependencies
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg := config.LoadConfig()

	// Override with test-specific config
	if cfg.Database.TestDBName != "" {
		cfg.Database.DBName = cfg.Database.TestDBName
	} else {
		cfg.Database.DBName = "parkinglot_test"
	}

	// Use a test JWT secret
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "test-secret-key"
	}

	// Set up database
	db, err := config.SetupDatabase(cfg)
	assert.NoError(t, err, "Failed to set up test database")

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create service with a pinned clock
	now := time.Now()
	svc := service.NewDefaultService(repo, cfg.Auth.JWTSecret, cfg.Sync, fixedClock{now: now})

	// Create API handler
	handler := api.NewHandler(svc)

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	testCtx := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Config:     cfg,
		DB:         db,
		Now:        now,
	}

	cleanupTestDatabase(t, repo)
	testCtx.AdminID, testCtx.AdminJWT = createTestUser(t, testCtx, "Admin", models.RoleAdmin)
	testCtx.StaffID, testCtx.StaffJWT = createTestUser(t, testCtx, "Staff", models.RoleStaff)

	return testCtx
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	if t.DB != nil {
		cleanupTestDatabase(nil, t.Repository)
		t.DB.Close()
	}
}

// cleanupTestDatabase removes all rows from every table
func cleanupTestDatabase(t *testing.T, repo repository.Repository) {
	pgRepo, ok := repo.(*repository.PostgresRepository)
	if !ok {
		return
	}
	db := pgRepo.GetDB()

	tables := []string{
		"parking_records",
		"pension_payments",
		"pension_subscribers",
		"expenses",
		"expense_categories",
		"entry_types",
		"tariff_types",
		"settings",
		"users",
	}
	for _, table := range tables {
		_, err := db.Exec("DELETE FROM " + table)
		if t != nil && err != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

// createTestUser seeds a user with PIN "1234" and returns its id and a JWT.
func createTestUser(t *testing.T, testCtx *TestContext, name, role string) (string, string) {
	hashedPin, _ := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.DefaultCost)
	pin := string(hashedPin)

	user := &models.User{
		ID:       uuid.New().String(),
		Name:     name,
		Role:     role,
		Pin:      &pin,
		IsActive: true,
	}

	err := testCtx.Repository.UpsertUser(context.Background(), user)
	assert.NoError(t, err, "Failed to create test user")

	// Log in through the real endpoint so the token matches production tokens.
	w := PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login",
		models.LoginRequest{UserID: user.ID, Pin: "1234"}, nil)
	assert.Equal(t, http.StatusOK, w.Code, "Failed to log test user in")

	var resp models.AuthResponse
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	return user.ID, resp.Token
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// PerformRawRequest sends a raw body, for malformed-payload tests.
func PerformRawRequest(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}
