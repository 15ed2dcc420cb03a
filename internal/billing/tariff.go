package billing

import (
	"errors"
	"math"

	"github.com/rcastellanos/estaciona-server/internal/models"
)

// ErrInvalidInterval is returned when the exit instant precedes the entry
// instant. Callers must not persist a cost for such an interval.
var ErrInvalidInterval = errors.New("exit time is before entry time")

// ComputeCost calculates the cost of a stay under the given tariff.
//
// A tariff whose first- and next-period costs are both zero is a flat rate:
// the default cost applies regardless of duration and the tolerance window is
// ignored. Otherwise the tariff is tiered: stays within the tolerance window
// are free; beyond it the first period is charged in full and every started
// additional period is billed as a whole (partial periods round up).
//
// The function is pure: the same inputs always yield the same cost.
func ComputeCost(tariff *models.TariffType, entryTimeMs, exitTimeMs int64) (float64, error) {
	durationMin := float64(exitTimeMs-entryTimeMs) / 60000.0
	if durationMin < 0 {
		return 0, ErrInvalidInterval
	}

	if tariff.CostFirstPeriod == 0 && tariff.CostNextPeriod == 0 {
		return round2(tariff.DefaultCost), nil
	}

	if durationMin <= float64(tariff.ToleranceMinutes) {
		return 0, nil
	}

	cost := tariff.CostFirstPeriod
	remainingMin := durationMin - float64(tariff.PeriodMinutes)
	if remainingMin > 0 {
		nextPeriods := math.Ceil(remainingMin / float64(tariff.PeriodMinutes))
		cost += nextPeriods * tariff.CostNextPeriod
	}

	return round2(cost), nil
}

// DerivePaymentStatus classifies a record's payment state from its cost and
// the amount actually paid. A zero-cost stay is always PAID.
func DerivePaymentStatus(cost, amountPaid float64) string {
	if cost == 0 {
		return models.PaymentStatusPaid
	}
	if amountPaid >= cost {
		return models.PaymentStatusPaid
	}
	if amountPaid > 0 {
		return models.PaymentStatusPartial
	}
	return models.PaymentStatusPending
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
