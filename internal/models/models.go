package models

// Role values for User.Role
const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

// PaymentStatus values for ParkingRecord.PaymentStatus
const (
	PaymentStatusPaid    = "PAID"
	PaymentStatusPartial = "PARTIAL"
	PaymentStatusPending = "PENDING"
)

// User represents a staff member. The PIN is stored as a bcrypt hash and is
// never returned in JSON.
type User struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Role     string  `db:"role" json:"role"`
	Pin      *string `db:"pin" json:"-"`
	IsActive bool    `db:"is_active" json:"is_active"`
	IsSynced bool    `db:"is_synced" json:"is_synced"`
}

// TariffType is a billing rule referenced by parking records and entry types.
// A tariff with both period costs at zero is a flat rate (DefaultCost applies
// regardless of duration).
type TariffType struct {
	ID               string  `db:"id" json:"id"`
	Name             string  `db:"name" json:"name"`
	DefaultCost      float64 `db:"default_cost" json:"default_cost"`
	CostFirstPeriod  float64 `db:"cost_first_period" json:"cost_first_period"`
	CostNextPeriod   float64 `db:"cost_next_period" json:"cost_next_period"`
	PeriodMinutes    int     `db:"period_minutes" json:"period_minutes"`
	ToleranceMinutes int     `db:"tolerance_minutes" json:"tolerance_minutes"`
	IsActive         bool    `db:"is_active" json:"is_active"`
	IsSynced         bool    `db:"is_synced" json:"is_synced"`
}

// EntryType is a category of vehicle/client (e.g. "GENERAL", "PENSION").
// At most one entry type carries IsDefault at a time.
type EntryType struct {
	ID                string  `db:"id" json:"id"`
	Name              string  `db:"name" json:"name"`
	DefaultTariffID   *string `db:"default_tariff_id" json:"default_tariff_id"`
	IsDefault         bool    `db:"is_default" json:"is_default"`
	ShouldPrintTicket bool    `db:"should_print_ticket" json:"should_print_ticket"`
	IsActive          bool    `db:"is_active" json:"is_active"`
	IsSynced          bool    `db:"is_synced" json:"is_synced"`
}

// ParkingRecord is one vehicle stay. ExitTime is nil while the vehicle is on
// site. All instants are milliseconds since the Unix epoch.
type ParkingRecord struct {
	ID                  string   `db:"id" json:"id"`
	Folio               *int64   `db:"folio" json:"folio"`
	Plate               string   `db:"plate" json:"plate"`
	Description         *string  `db:"description" json:"description"`
	EntryTypeID         *string  `db:"entry_type_id" json:"entry_type_id"`
	EntryUserID         *string  `db:"entry_user_id" json:"entry_user_id"`
	EntryTime           int64    `db:"entry_time" json:"entry_time"`
	ExitTime            *int64   `db:"exit_time" json:"exit_time"`
	Cost                *float64 `db:"cost" json:"cost"`
	TariffTypeID        *string  `db:"tariff_type_id" json:"tariff_type_id"`
	ExitUserID          *string  `db:"exit_user_id" json:"exit_user_id"`
	Notes               *string  `db:"notes" json:"notes"`
	IsSynced            bool     `db:"is_synced" json:"is_synced"`
	PensionSubscriberID *string  `db:"pension_subscriber_id" json:"pension_subscriber_id"`
	AmountPaid          *float64 `db:"amount_paid" json:"amount_paid"`
	PaymentStatus       string   `db:"payment_status" json:"payment_status"`
}

// PensionSubscriber is a recurring monthly-billing customer.
type PensionSubscriber struct {
	ID          string  `db:"id" json:"id"`
	Folio       *int64  `db:"folio" json:"folio"`
	Plate       *string `db:"plate" json:"plate"`
	Name        *string `db:"name" json:"name"`
	EntryTypeID *string `db:"entry_type_id" json:"entry_type_id"`
	MonthlyFee  float64 `db:"monthly_fee" json:"monthly_fee"`
	EntryDate   *int64  `db:"entry_date" json:"entry_date"`
	PaidUntil   *int64  `db:"paid_until" json:"paid_until"`
	IsActive    bool    `db:"is_active" json:"is_active"`
	Notes       *string `db:"notes" json:"notes"`
}

// PensionPayment is an immutable payment transaction for one subscriber.
// Registering a payment moves the subscriber's paid_until to CoverageEndDate.
type PensionPayment struct {
	ID                string  `db:"id" json:"id"`
	SubscriberID      string  `db:"subscriber_id" json:"subscriber_id"`
	Amount            float64 `db:"amount" json:"amount"`
	PaymentDate       int64   `db:"payment_date" json:"payment_date"`
	CoverageStartDate int64   `db:"coverage_start_date" json:"coverage_start_date"`
	CoverageEndDate   int64   `db:"coverage_end_date" json:"coverage_end_date"`
	Notes             *string `db:"notes" json:"notes"`
	IsSynced          bool    `db:"is_synced" json:"is_synced"`
}

// ExpenseCategory is a catalog row for classifying expenses.
type ExpenseCategory struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description"`
	IsActive    bool    `db:"is_active" json:"is_active"`
	IsSynced    bool    `db:"is_synced" json:"is_synced"`
}

// Expense is one recorded expense. Category is carried as free text to match
// what the tablets send.
type Expense struct {
	ID          string  `db:"id" json:"id"`
	Description string  `db:"description" json:"description"`
	Amount      float64 `db:"amount" json:"amount"`
	Category    string  `db:"category" json:"category"`
	ExpenseDate int64   `db:"expense_date" json:"expense_date"`
	UserID      *string `db:"user_id" json:"user_id"`
	IsSynced    bool    `db:"is_synced" json:"is_synced"`
}

// Setting is one key/value configuration row.
type Setting struct {
	Key   string `db:"setting_key" json:"setting_key"`
	Value string `db:"setting_value" json:"setting_value"`
}
