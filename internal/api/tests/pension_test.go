package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rcastellanos/estaciona-server/internal/api/testutils"
	"github.com/rcastellanos/estaciona-server/internal/models"
	"github.com/stretchr/testify/assert"
)

func registerPayment(t *testing.T, testCtx *testutils.TestContext, token string, req models.RegisterPaymentRequest) *httpResult {
	t.Helper()

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/pensions/payments",
		req, testutils.AuthHeaders(token))

	res := &httpResult{Code: w.Code}
	if w.Code == http.StatusCreated {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &res.Payment))
	}
	return res
}

type httpResult struct {
	Code    int
	Payment models.PaymentResponse
}

func TestRegisterPaymentExplicitCoverage(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	subscriberID := seedSubscriber(t, testCtx, "PAY-0001", nil)

	now := testCtx.Now.UnixMilli()
	start := now
	end := now + 31*24*3600_000

	res := registerPayment(t, testCtx, testCtx.AdminJWT, models.RegisterPaymentRequest{
		SubscriberID:      subscriberID,
		Amount:            800,
		PaymentDate:       &now,
		CoverageStartDate: &start,
		CoverageEndDate:   &end,
	})
	assert.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, "success", res.Payment.Status)
	assert.Equal(t, end, res.Payment.PaidUntil)
	assert.NotEmpty(t, res.Payment.PaymentID)

	// The subscriber's coverage advanced to the coverage end.
	sub, err := testCtx.Repository.GetPensionSubscriber(context.Background(), subscriberID)
	assert.NoError(t, err)
	assert.NotNil(t, sub.PaidUntil)
	assert.Equal(t, end, *sub.PaidUntil)
}

func TestRegisterPaymentCoverageFallback(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	now := testCtx.Now.UnixMilli()
	month := (30 * 24 * time.Hour).Milliseconds()

	// No prior coverage: a month from the payment date.
	freshID := seedSubscriber(t, testCtx, "PAY-0002", nil)
	res := registerPayment(t, testCtx, testCtx.AdminJWT, models.RegisterPaymentRequest{
		SubscriberID: freshID,
		Amount:       800,
		PaymentDate:  &now,
	})
	assert.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, now+month, res.Payment.PaidUntil)

	// Coverage still running: extend from paid_until, not from today.
	paidUntil := now + 5*24*3600_000
	coveredID := seedSubscriber(t, testCtx, "PAY-0003", &paidUntil)
	res = registerPayment(t, testCtx, testCtx.AdminJWT, models.RegisterPaymentRequest{
		SubscriberID: coveredID,
		Amount:       800,
		PaymentDate:  &now,
	})
	assert.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, paidUntil+month, res.Payment.PaidUntil)

	// Lapsed coverage restarts from the payment date.
	lapsed := now - 40*24*3600_000
	lapsedID := seedSubscriber(t, testCtx, "PAY-0004", &lapsed)
	res = registerPayment(t, testCtx, testCtx.AdminJWT, models.RegisterPaymentRequest{
		SubscriberID: lapsedID,
		Amount:       800,
		PaymentDate:  &now,
	})
	assert.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, now+month, res.Payment.PaidUntil)
}

func TestRegisterPaymentAuthorization(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	subscriberID := seedSubscriber(t, testCtx, "PAY-0005", nil)

	// Staff cannot register payments.
	res := registerPayment(t, testCtx, testCtx.StaffJWT, models.RegisterPaymentRequest{
		SubscriberID: subscriberID,
		Amount:       800,
	})
	assert.Equal(t, http.StatusForbidden, res.Code)

	// Unknown subscriber.
	res = registerPayment(t, testCtx, testCtx.AdminJWT, models.RegisterPaymentRequest{
		SubscriberID: uuid.New().String(),
		Amount:       800,
	})
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestToggleSubscriber(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	subscriberID := seedSubscriber(t, testCtx, "TOG-0001", nil)
	path := "/api/pensions/subscribers/" + subscriberID + "/toggle"

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, path, nil,
		testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status   string `json:"status"`
		IsActive bool   `json:"is_active"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsActive)

	// Toggling again restores the subscriber.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path, nil,
		testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsActive)

	// Staff cannot toggle.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path, nil,
		testutils.AuthHeaders(testCtx.StaffJWT))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSetDefaultEntryTypeExclusivity(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	ctx := context.Background()
	first := &models.EntryType{ID: uuid.New().String(), Name: "Auto", IsDefault: true, IsActive: true}
	second := &models.EntryType{ID: uuid.New().String(), Name: "Moto", IsActive: true}
	assert.NoError(t, testCtx.Repository.UpsertEntryType(ctx, first))
	assert.NoError(t, testCtx.Repository.UpsertEntryType(ctx, second))

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost,
		"/api/entry_types/"+second.ID+"/default", nil,
		testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusOK, w.Code)

	types, err := testCtx.Repository.ListEntryTypes(ctx)
	assert.NoError(t, err)

	defaults := map[string]bool{}
	for _, et := range types {
		if et.IsDefault {
			defaults[et.ID] = true
		}
	}
	assert.Equal(t, map[string]bool{second.ID: true}, defaults)

	// Unknown entry type.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost,
		"/api/entry_types/"+uuid.New().String()+"/default", nil,
		testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
