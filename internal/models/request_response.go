package models

// Request models
type LoginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Pin    string `json:"pin" binding:"required"`
}

type RegisterPaymentRequest struct {
	ID                string  `json:"id"`
	SubscriberID      string  `json:"subscriber_id" binding:"required"`
	Amount            float64 `json:"amount" binding:"required"`
	PaymentDate       *int64  `json:"payment_date"`
	CoverageStartDate *int64  `json:"coverage_start_date"`
	CoverageEndDate   *int64  `json:"coverage_end_date"`
	Notes             *string `json:"notes"`
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

type SyncResponse struct {
	Status string `json:"status"`
	Type   string `json:"type"`
	ID     string `json:"id"`
}

// PullData is the full client snapshot. Field order and names are part of the
// tablet wire contract.
type PullData struct {
	Users              []User              `json:"users"`
	EntryTypes         []EntryType         `json:"entry_types"`
	TariffTypes        []TariffType        `json:"tariff_types"`
	ExpenseCategories  []ExpenseCategory   `json:"expense_categories"`
	Settings           map[string]string   `json:"settings"`
	PensionSubscribers []PensionSubscriber `json:"pension_subscribers"`
	PensionPayments    []PensionPayment    `json:"pension_payments"`
	Expenses           []Expense           `json:"expenses"`
	ParkingRecords     []ParkingRecord     `json:"parking_records"`
}

type PullResponse struct {
	Status string   `json:"status"`
	Data   PullData `json:"data"`
}

type RecordListResponse struct {
	Status string          `json:"status"`
	Data   []ParkingRecord `json:"data"`
}

type StatusMessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type PaymentResponse struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
	PaidUntil int64  `json:"paid_until"`
}

type ReportSummaryResponse struct {
	Status         string  `json:"status"`
	StartDate      int64   `json:"start_date"`
	EndDate        int64   `json:"end_date"`
	ParkingRevenue float64 `json:"parking_revenue"`
	PensionIncome  float64 `json:"pension_income"`
	TotalExpenses  float64 `json:"total_expenses"`
	Balance        float64 `json:"balance"`
}

// LegacyError matches the error shape of the original endpoints consumed by
// deployed tablets.
type LegacyError struct {
	Error string `json:"error"`
}

// ErrorResponse is used by the authenticated admin endpoints.
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AdminRecordRequest is the body of the admin parking-record create endpoint:
// the record itself plus the id of the staff member making the request.
type AdminRecordRequest struct {
	RequestingUserID string `json:"requesting_user_id"`
	ParkingRecord
}
