package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/rcastellanos/estaciona-server/internal/api/testutils"
	"github.com/rcastellanos/estaciona-server/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestLogin(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Correct PIN.
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login",
		models.LoginRequest{UserID: testCtx.AdminID, Pin: "1234"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.AuthResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, models.RoleAdmin, resp.Role)
	assert.NotEmpty(t, resp.Token)

	// Wrong PIN.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login",
		models.LoginRequest{UserID: testCtx.AdminID, Pin: "9999"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown user.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login",
		models.LoginRequest{UserID: "nobody", Pin: "1234"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Missing fields.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/auth/login",
		map[string]interface{}{"user_id": testCtx.AdminID}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// No token.
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet,
		"/api/reports/summary?start_date=0&end_date=1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token.
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet,
		"/api/reports/summary?start_date=0&end_date=1", nil,
		testutils.AuthHeaders("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token.
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet,
		"/api/reports/summary?start_date=0&end_date=1", nil,
		testutils.AuthHeaders(testCtx.StaffJWT))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReportSummary(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	now := testCtx.Now.UnixMilli()
	paid := 120.0

	// One closed record with income, one still on site.
	exit := now - 1000
	recordID := seedRecord(t, testCtx, "REP-0001", now-3600_000, &exit)
	err := testCtx.Repository.UpdateParkingRecord(context.Background(), recordID,
		map[string]interface{}{"amount_paid": paid, "payment_status": models.PaymentStatusPaid})
	assert.NoError(t, err)
	seedRecord(t, testCtx, "REP-0002", now, nil)

	path := fmt.Sprintf("/api/reports/summary?start_date=%d&end_date=%d", now-7200_000, now)
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet,
		path, nil, testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ReportSummaryResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, paid, resp.ParkingRevenue)
	assert.Equal(t, paid, resp.Balance)
}
