package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/rcastellanos/estaciona-server/internal/api/testutils"
	"github.com/rcastellanos/estaciona-server/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSyncParkingRecord(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	recordID := uuid.New().String()
	push := map[string]interface{}{
		"id":         recordID,
		"plate":      "ABC-1234",
		"entry_time": testCtx.Now.UnixMilli(),
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SyncResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "record", resp.Type)
	assert.Equal(t, recordID, resp.ID)

	records, err := testCtx.Repository.QueryParkingRecords(context.Background(),
		recordFilterByPlate("ABC-1234"))
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, models.PaymentStatusPending, records[0].PaymentStatus)
	assert.True(t, records[0].IsSynced)
}

func TestSyncIdempotence(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	recordID := uuid.New().String()
	push := map[string]interface{}{
		"id":             recordID,
		"plate":          "DUP-0001",
		"entry_time":     testCtx.Now.UnixMilli(),
		"cost":           35.50,
		"payment_status": models.PaymentStatusPaid,
	}

	first := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, second.Code)

	// The second response is structurally identical to the first and the row
	// count did not change.
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	records, err := testCtx.Repository.QueryParkingRecords(context.Background(),
		recordFilterByPlate("DUP-0001"))
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 35.50, *records[0].Cost)
}

func TestSyncLastWriteWins(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	recordID := uuid.New().String()
	entry := testCtx.Now.UnixMilli()

	// First device records the entry.
	push := map[string]interface{}{
		"id":         recordID,
		"plate":      "LWW-0001",
		"entry_time": entry,
		"notes":      "entrada",
	}
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second device records the exit. Every mutable field is overwritten,
	// including the notes the second device never set.
	exit := entry + 3600_000
	push = map[string]interface{}{
		"id":             recordID,
		"plate":          "LWW-0001",
		"entry_time":     entry,
		"exit_time":      exit,
		"cost":           20.0,
		"payment_status": models.PaymentStatusPaid,
	}
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	records, err := testCtx.Repository.QueryParkingRecords(context.Background(),
		recordFilterByPlate("LWW-0001"))
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, exit, *records[0].ExitTime)
	assert.Nil(t, records[0].Notes)
	assert.Equal(t, models.PaymentStatusPaid, records[0].PaymentStatus)
}

// A payload with both plate and monthly_fee must resolve to a subscriber:
// the inference checks monthly_fee before plate.
func TestSyncAmbiguousPayloadResolvesToSubscriber(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	subscriberID := uuid.New().String()
	push := map[string]interface{}{
		"id":          subscriberID,
		"plate":       "PEN-0001",
		"name":        "Cliente Pension",
		"monthly_fee": 800.0,
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SyncResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "subscriber", resp.Type)

	sub, err := testCtx.Repository.GetPensionSubscriber(context.Background(), subscriberID)
	assert.NoError(t, err)
	assert.NotNil(t, sub)
	assert.True(t, sub.IsActive) // defaults to active when not sent

	// And no parking record was created for the plate.
	records, err := testCtx.Repository.QueryParkingRecords(context.Background(),
		recordFilterByPlate("PEN-0001"))
	assert.NoError(t, err)
	assert.Len(t, records, 0)
}

func TestSyncPaymentViaInference(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	subscriberID := seedSubscriber(t, testCtx, "PAY-0001", nil)

	paymentID := uuid.New().String()
	push := map[string]interface{}{
		"id":                  paymentID,
		"subscriber_id":       subscriberID,
		"amount":              800.0,
		"payment_date":        testCtx.Now.UnixMilli(),
		"coverage_start_date": testCtx.Now.UnixMilli(),
		"coverage_end_date":   testCtx.Now.AddDate(0, 1, 0).UnixMilli(),
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SyncResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "payment", resp.Type)

	payments, err := testCtx.Repository.ListRecentPensionPayments(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, paymentID, payments[0].ID)
}

func TestSyncExplicitEntityType(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	tariffID := uuid.New().String()
	push := map[string]interface{}{
		"entity_type":       "tariff_type",
		"id":                tariffID,
		"name":              "Por Hora",
		"default_cost":      0.0,
		"cost_first_period": 20.0,
		"cost_next_period":  10.0,
		"period_minutes":    60,
		"tolerance_minutes": 15,
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tariff, err := testCtx.Repository.GetTariffType(context.Background(), tariffID)
	assert.NoError(t, err)
	assert.NotNil(t, tariff)
	assert.Equal(t, 20.0, tariff.CostFirstPeriod)
}

func TestSyncTableDiscriminator(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	categoryID := uuid.New().String()
	push := map[string]interface{}{
		"table": "expense_categories",
		"id":    categoryID,
		"name":  "Mantenimiento",
	}

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync", push, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SyncResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "expense_category", resp.Type)
}

func TestSyncRejectsMalformedAndUnknown(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Not JSON at all.
	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, "/sync",
		[]byte("not json"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown table discriminator.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync",
		map[string]interface{}{"table": "nonsense", "id": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unclassifiable payload.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync",
		map[string]interface{}{"id": "x", "color": "rojo"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing id.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/sync",
		map[string]interface{}{"plate": "XYZ-987", "entry_time": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
