package api_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rcastellanos/estaciona-server/internal/api/testutils"
	"github.com/rcastellanos/estaciona-server/internal/models"
	"github.com/rcastellanos/estaciona-server/internal/repository"
	"github.com/stretchr/testify/assert"
)

func recordFilterByPlate(plate string) repository.RecordFilter {
	return repository.RecordFilter{Plate: plate, Limit: 100}
}

// seedSubscriber inserts a pension subscriber and returns its id.
func seedSubscriber(t *testing.T, testCtx *testutils.TestContext, plate string, paidUntil *int64) string {
	t.Helper()

	id := uuid.New().String()
	name := "Suscriptor " + plate
	sub := &models.PensionSubscriber{
		ID:         id,
		Plate:      &plate,
		Name:       &name,
		MonthlyFee: 800,
		PaidUntil:  paidUntil,
		IsActive:   true,
	}
	err := testCtx.Repository.UpsertPensionSubscriber(context.Background(), sub)
	assert.NoError(t, err)
	return id
}

// seedRecord inserts a parking record directly through the repository.
func seedRecord(t *testing.T, testCtx *testutils.TestContext, plate string, entryMs int64, exitMs *int64) string {
	t.Helper()

	rec := &models.ParkingRecord{
		ID:            uuid.New().String(),
		Plate:         plate,
		EntryTime:     entryMs,
		ExitTime:      exitMs,
		PaymentStatus: models.PaymentStatusPending,
	}
	err := testCtx.Repository.UpsertParkingRecord(context.Background(), rec)
	assert.NoError(t, err)
	return rec.ID
}
