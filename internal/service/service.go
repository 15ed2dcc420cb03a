package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rcastellanos/estaciona-server/internal/billing"
	"github.com/rcastellanos/estaciona-server/internal/config"
	"github.com/rcastellanos/estaciona-server/internal/models"
	"github.com/rcastellanos/estaciona-server/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrValidation means the request is missing a required field.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden means the requesting user is not allowed to perform the
	// operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials means login failed.
	ErrInvalidCredentials = errors.New("invalid user or PIN")
)

const (
	pullPaymentLimit = 1000
	pullExpenseDays  = 90
	coverageFallback = 30 * 24 * time.Hour
	settingTimezone  = "timezone"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)

	// Client synchronization
	Pull(ctx context.Context) (*models.PullResponse, error)
	Sync(ctx context.Context, body []byte) (*models.SyncResponse, error)
	Suggest(ctx context.Context, kind, query string) ([]string, error)

	// Admin parking-record corrections
	ListParkingRecords(ctx context.Context, filter repository.RecordFilter) ([]models.ParkingRecord, error)
	CreateParkingRecord(ctx context.Context, req models.AdminRecordRequest) error
	UpdateParkingRecord(ctx context.Context, requestingUserID, id string, fields map[string]interface{}) error
	DeleteParkingRecord(ctx context.Context, requestingUserID, id string) error

	// Pension management
	RegisterPayment(ctx context.Context, userID string, req models.RegisterPaymentRequest) (*models.PaymentResponse, error)
	ToggleSubscriber(ctx context.Context, userID, subscriberID string) (bool, error)

	// Catalog management
	SetDefaultEntryType(ctx context.Context, userID, entryTypeID string) error

	// Reporting
	ReportSummary(ctx context.Context, startMs, endMs int64) (*models.ReportSummaryResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	jwtSecret     []byte
	tokenDuration time.Duration
	clock         Clock
	syncCfg       config.SyncConfig
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, jwtSecret string, syncCfg config.SyncConfig, clock Clock) Service {
	if clock == nil {
		clock = SystemClock()
	}
	return &DefaultService{
		repo:          repo,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 24 * time.Hour, // 24 hours token validity
		clock:         clock,
		syncCfg:       syncCfg,
	}
}

// Authentication
func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.repo.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil || !user.IsActive || user.Pin == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.Pin), []byte(req.Pin)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Name:      user.Name,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

// Pull assembles the full snapshot an offline client needs. The parking-record
// window starts at yesterday's midnight in the configured timezone.
func (s *DefaultService) Pull(ctx context.Context) (*models.PullResponse, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading settings: %w", err)
	}
	if settings == nil {
		settings = map[string]string{}
	}
	if _, ok := settings[settingTimezone]; !ok {
		settings[settingTimezone] = s.syncCfg.DefaultTimezone
	}

	loc := s.location(settings[settingTimezone])
	now := s.clock.Now()
	recordCutoff := PullWindowStart(now, loc)
	expenseCutoff := now.AddDate(0, 0, -pullExpenseDays).UnixMilli()

	data := models.PullData{Settings: settings}

	if data.Users, err = s.repo.ListUsers(ctx); err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	if data.EntryTypes, err = s.repo.ListEntryTypes(ctx); err != nil {
		return nil, fmt.Errorf("error listing entry types: %w", err)
	}
	if data.TariffTypes, err = s.repo.ListTariffTypes(ctx); err != nil {
		return nil, fmt.Errorf("error listing tariff types: %w", err)
	}
	if data.ExpenseCategories, err = s.repo.ListActiveExpenseCategories(ctx); err != nil {
		return nil, fmt.Errorf("error listing expense categories: %w", err)
	}
	if data.PensionSubscribers, err = s.repo.ListPensionSubscribers(ctx); err != nil {
		return nil, fmt.Errorf("error listing subscribers: %w", err)
	}
	if data.PensionPayments, err = s.repo.ListRecentPensionPayments(ctx, pullPaymentLimit); err != nil {
		return nil, fmt.Errorf("error listing payments: %w", err)
	}
	if data.Expenses, err = s.repo.ListExpensesSince(ctx, expenseCutoff); err != nil {
		return nil, fmt.Errorf("error listing expenses: %w", err)
	}
	if data.ParkingRecords, err = s.repo.ListParkingRecordsForPull(ctx, recordCutoff); err != nil {
		return nil, fmt.Errorf("error listing parking records: %w", err)
	}

	return &models.PullResponse{Status: "success", Data: data}, nil
}

// location resolves a timezone name, falling back to the configured default
// and finally UTC. It never touches process-global state.
func (s *DefaultService) location(name string) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(s.syncCfg.DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// Sync applies one pushed entity as an insert-or-replace keyed by the
// client-assigned id. Each entity is written in its own atomic statement, so
// re-sending the same push is safe and a failed push leaves nothing behind.
func (s *DefaultService) Sync(ctx context.Context, body []byte) (*models.SyncResponse, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return nil, fmt.Errorf("%w: invalid JSON", ErrBadPayload)
	}

	kind, err := classifyPayload(payload, s.syncCfg.AllowLegacyInference)
	if err != nil {
		return nil, err
	}

	id, err := s.payloadID(payload)
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindParkingRecord:
		err = s.syncParkingRecord(ctx, body, payload)
	case kindPayment:
		err = s.syncPayment(ctx, body)
	case kindSubscriber:
		err = s.syncSubscriber(ctx, body, payload)
	case kindUser:
		err = s.syncUser(ctx, body, payload)
	case kindEntryType:
		err = s.syncEntryType(ctx, body, payload)
	case kindTariffType:
		err = s.syncTariffType(ctx, body, payload)
	case kindExpense:
		err = s.syncExpense(ctx, body)
	case kindExpenseCategory:
		err = s.syncExpenseCategory(ctx, body, payload)
	default:
		err = ErrUnknownEntity
	}
	if err != nil {
		return nil, err
	}

	return &models.SyncResponse{Status: "success", Type: string(kind), ID: id}, nil
}

func (s *DefaultService) payloadID(payload map[string]json.RawMessage) (string, error) {
	raw, ok := payload["id"]
	if !ok {
		return "", fmt.Errorf("%w: missing id", ErrValidation)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return "", fmt.Errorf("%w: missing id", ErrValidation)
	}
	return id, nil
}

func (s *DefaultService) syncParkingRecord(ctx context.Context, body []byte, payload map[string]json.RawMessage) error {
	var rec models.ParkingRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if rec.Plate == "" {
		return fmt.Errorf("%w: missing plate", ErrValidation)
	}
	if !hasField(payload, "entry_time") {
		return fmt.Errorf("%w: missing entry_time", ErrValidation)
	}
	if rec.PaymentStatus == "" {
		rec.PaymentStatus = models.PaymentStatusPending
	}
	if err := s.repo.UpsertParkingRecord(ctx, &rec); err != nil {
		return fmt.Errorf("error upserting parking record: %w", err)
	}
	return nil
}

func (s *DefaultService) syncPayment(ctx context.Context, body []byte) error {
	var p models.PensionPayment
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if p.SubscriberID == "" {
		return fmt.Errorf("%w: missing subscriber_id", ErrValidation)
	}
	if err := s.repo.UpsertPensionPayment(ctx, &p); err != nil {
		return fmt.Errorf("error upserting payment: %w", err)
	}
	return nil
}

func (s *DefaultService) syncSubscriber(ctx context.Context, body []byte, payload map[string]json.RawMessage) error {
	var sub models.PensionSubscriber
	if err := json.Unmarshal(body, &sub); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if !hasField(payload, "is_active") {
		sub.IsActive = true
	}
	if err := s.repo.UpsertPensionSubscriber(ctx, &sub); err != nil {
		return fmt.Errorf("error upserting subscriber: %w", err)
	}
	return nil
}

func (s *DefaultService) syncUser(ctx context.Context, body []byte, payload map[string]json.RawMessage) error {
	var u models.User
	if err := json.Unmarshal(body, &u); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if u.Name == "" {
		return fmt.Errorf("%w: missing name", ErrValidation)
	}
	if !hasField(payload, "is_active") {
		u.IsActive = true
	}
	// Users carry the pin under its JSON name on the sync path only.
	if raw, ok := payload["pin"]; ok {
		var pin *string
		if err := json.Unmarshal(raw, &pin); err != nil {
			return fmt.Errorf("%w: invalid pin", ErrBadPayload)
		}
		u.Pin = pin
	}
	if err := s.repo.UpsertUser(ctx, &u); err != nil {
		return fmt.Errorf("error upserting user: %w", err)
	}
	return nil
}

func (s *DefaultService) syncEntryType(ctx context.Context, body []byte, payload map[string]json.RawMessage) error {
	var e models.EntryType
	if err := json.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: missing name", ErrValidation)
	}
	if !hasField(payload, "is_active") {
		e.IsActive = true
	}
	if err := s.repo.UpsertEntryType(ctx, &e); err != nil {
		return fmt.Errorf("error upserting entry type: %w", err)
	}
	return nil
}

func (s *DefaultService) syncTariffType(ctx context.Context, body []byte, payload map[string]json.RawMessage) error {
	var t models.TariffType
	if err := json.Unmarshal(body, &t); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if t.Name == "" {
		return fmt.Errorf("%w: missing name", ErrValidation)
	}
	if !hasField(payload, "is_active") {
		t.IsActive = true
	}
	if err := s.repo.UpsertTariffType(ctx, &t); err != nil {
		return fmt.Errorf("error upserting tariff type: %w", err)
	}
	return nil
}

func (s *DefaultService) syncExpense(ctx context.Context, body []byte) error {
	var e models.Expense
	if err := json.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if e.Category == "" {
		return fmt.Errorf("%w: missing category", ErrValidation)
	}
	if err := s.repo.UpsertExpense(ctx, &e); err != nil {
		return fmt.Errorf("error upserting expense: %w", err)
	}
	return nil
}

func (s *DefaultService) syncExpenseCategory(ctx context.Context, body []byte, payload map[string]json.RawMessage) error {
	var c models.ExpenseCategory
	if err := json.Unmarshal(body, &c); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: missing name", ErrValidation)
	}
	if !hasField(payload, "is_active") {
		c.IsActive = true
	}
	if err := s.repo.UpsertExpenseCategory(ctx, &c); err != nil {
		return fmt.Errorf("error upserting expense category: %w", err)
	}
	return nil
}

// Suggest returns distinct recent values for autocomplete. Queries under two
// characters return nothing rather than scanning the table.
func (s *DefaultService) Suggest(ctx context.Context, kind, query string) ([]string, error) {
	if len(query) < 2 {
		return []string{}, nil
	}
	values, err := s.repo.SuggestValues(ctx, kind, query)
	if err != nil {
		return nil, fmt.Errorf("error fetching suggestions: %w", err)
	}
	return values, nil
}

// Admin parking-record corrections
func (s *DefaultService) ListParkingRecords(ctx context.Context, filter repository.RecordFilter) ([]models.ParkingRecord, error) {
	records, err := s.repo.QueryParkingRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error querying parking records: %w", err)
	}
	return records, nil
}

func (s *DefaultService) CreateParkingRecord(ctx context.Context, req models.AdminRecordRequest) error {
	if err := s.requireAdmin(ctx, req.RequestingUserID); err != nil {
		return err
	}

	if req.ID == "" || req.Plate == "" {
		return fmt.Errorf("%w: missing required fields (id, plate)", ErrValidation)
	}

	rec := req.ParkingRecord
	if rec.EntryTime == 0 {
		rec.EntryTime = s.clock.Now().UnixMilli()
	}
	if rec.Cost == nil {
		// Server-side fallback: derive the cost when the admin did not
		// enter one manually.
		if err := s.RecomputeCost(ctx, &rec); err != nil {
			return err
		}
	}
	if rec.PaymentStatus == "" {
		rec.PaymentStatus = models.PaymentStatusPending
	}

	if err := s.repo.CreateParkingRecord(ctx, &rec); err != nil {
		return fmt.Errorf("error creating parking record: %w", err)
	}
	return nil
}

func (s *DefaultService) UpdateParkingRecord(ctx context.Context, requestingUserID, id string, fields map[string]interface{}) error {
	if err := s.requireAdmin(ctx, requestingUserID); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: missing record id", ErrValidation)
	}
	if err := s.repo.UpdateParkingRecord(ctx, id, fields); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("error updating parking record: %w", err)
	}
	return nil
}

func (s *DefaultService) DeleteParkingRecord(ctx context.Context, requestingUserID, id string) error {
	if err := s.requireAdmin(ctx, requestingUserID); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: missing record id", ErrValidation)
	}
	if err := s.repo.DeleteParkingRecord(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("error deleting parking record: %w", err)
	}
	return nil
}

// Pension management
func (s *DefaultService) RegisterPayment(ctx context.Context, userID string, req models.RegisterPaymentRequest) (*models.PaymentResponse, error) {
	if err := s.requireAdmin(ctx, userID); err != nil {
		return nil, err
	}

	subscriber, err := s.repo.GetPensionSubscriber(ctx, req.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("error getting subscriber: %w", err)
	}
	if subscriber == nil {
		return nil, repository.ErrNotFound
	}

	payment := models.PensionPayment{
		ID:           req.ID,
		SubscriberID: req.SubscriberID,
		Amount:       req.Amount,
		Notes:        req.Notes,
	}
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if req.PaymentDate != nil {
		payment.PaymentDate = *req.PaymentDate
	} else {
		payment.PaymentDate = s.clock.Now().UnixMilli()
	}

	if req.CoverageStartDate != nil && req.CoverageEndDate != nil {
		payment.CoverageStartDate = *req.CoverageStartDate
		payment.CoverageEndDate = *req.CoverageEndDate
	} else {
		// Extend from the current coverage when it is still running,
		// otherwise start today.
		start := payment.PaymentDate
		if subscriber.PaidUntil != nil && *subscriber.PaidUntil > start {
			start = *subscriber.PaidUntil
		}
		payment.CoverageStartDate = start
		payment.CoverageEndDate = start + coverageFallback.Milliseconds()
	}

	if err := s.repo.RegisterPensionPayment(ctx, &payment); err != nil {
		return nil, fmt.Errorf("error registering payment: %w", err)
	}

	return &models.PaymentResponse{
		Status:    "success",
		PaymentID: payment.ID,
		PaidUntil: payment.CoverageEndDate,
	}, nil
}

func (s *DefaultService) ToggleSubscriber(ctx context.Context, userID, subscriberID string) (bool, error) {
	if err := s.requireAdmin(ctx, userID); err != nil {
		return false, err
	}

	subscriber, err := s.repo.GetPensionSubscriber(ctx, subscriberID)
	if err != nil {
		return false, fmt.Errorf("error getting subscriber: %w", err)
	}
	if subscriber == nil {
		return false, repository.ErrNotFound
	}

	newState := !subscriber.IsActive
	if err := s.repo.SetSubscriberActive(ctx, subscriberID, newState); err != nil {
		return false, fmt.Errorf("error toggling subscriber: %w", err)
	}
	return newState, nil
}

// Catalog management
func (s *DefaultService) SetDefaultEntryType(ctx context.Context, userID, entryTypeID string) error {
	if err := s.requireAdmin(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetDefaultEntryType(ctx, entryTypeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("error setting default entry type: %w", err)
	}
	return nil
}

// Reporting
func (s *DefaultService) ReportSummary(ctx context.Context, startMs, endMs int64) (*models.ReportSummaryResponse, error) {
	parking, err := s.repo.SumParkingRevenue(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("error summing parking revenue: %w", err)
	}
	pension, err := s.repo.SumPensionIncome(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("error summing pension income: %w", err)
	}
	expenses, err := s.repo.SumExpenses(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("error summing expenses: %w", err)
	}

	return &models.ReportSummaryResponse{
		Status:         "success",
		StartDate:      startMs,
		EndDate:        endMs,
		ParkingRevenue: parking,
		PensionIncome:  pension,
		TotalExpenses:  expenses,
		Balance:        parking + pension - expenses,
	}, nil
}

// requireAdmin verifies the requesting user exists and holds the ADMIN role.
func (s *DefaultService) requireAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrForbidden
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("error checking user role: %w", err)
	}
	if user == nil || !strings.EqualFold(user.Role, models.RoleAdmin) {
		return ErrForbidden
	}
	return nil
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	expirationTime := s.clock.Now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub":  user.ID, // subject
		"role": user.Role,
		"exp":  expirationTime.Unix(),
		"iat":  s.clock.Now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// RecomputeCost is the server-side fallback used by admin corrections: given a
// record with entry/exit times and a tariff id, derive cost and payment status
// the same way the tablets do.
func (s *DefaultService) RecomputeCost(ctx context.Context, rec *models.ParkingRecord) error {
	if rec.TariffTypeID == nil || rec.ExitTime == nil {
		return nil
	}
	tariff, err := s.repo.GetTariffType(ctx, *rec.TariffTypeID)
	if err != nil {
		return fmt.Errorf("error getting tariff type: %w", err)
	}
	if tariff == nil {
		return nil
	}

	cost, err := billing.ComputeCost(tariff, rec.EntryTime, *rec.ExitTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rec.Cost = &cost

	paid := 0.0
	if rec.AmountPaid != nil {
		paid = *rec.AmountPaid
	}
	rec.PaymentStatus = billing.DerivePaymentStatus(cost, paid)
	return nil
}
