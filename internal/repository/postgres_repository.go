package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rcastellanos/estaciona-server/internal/models"
)

// ErrNotFound is returned when an update or delete targets an absent row.
var ErrNotFound = errors.New("not found")

// RecordFilter narrows admin parking-record queries.
type RecordFilter struct {
	StartDate *int64 // entry_time >= (ms)
	EndDate   *int64 // entry_time <= (ms)
	Plate     string // substring match
	Limit     int
	Offset    int
}

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error

	// Catalog operations
	GetTariffType(ctx context.Context, id string) (*models.TariffType, error)
	ListTariffTypes(ctx context.Context) ([]models.TariffType, error)
	UpsertTariffType(ctx context.Context, t *models.TariffType) error
	ListEntryTypes(ctx context.Context) ([]models.EntryType, error)
	UpsertEntryType(ctx context.Context, e *models.EntryType) error
	SetDefaultEntryType(ctx context.Context, id string) error
	ListActiveExpenseCategories(ctx context.Context) ([]models.ExpenseCategory, error)
	UpsertExpenseCategory(ctx context.Context, c *models.ExpenseCategory) error

	// Pension operations
	GetPensionSubscriber(ctx context.Context, id string) (*models.PensionSubscriber, error)
	ListPensionSubscribers(ctx context.Context) ([]models.PensionSubscriber, error)
	UpsertPensionSubscriber(ctx context.Context, s *models.PensionSubscriber) error
	SetSubscriberActive(ctx context.Context, id string, active bool) error
	UpsertPensionPayment(ctx context.Context, p *models.PensionPayment) error
	RegisterPensionPayment(ctx context.Context, p *models.PensionPayment) error
	ListRecentPensionPayments(ctx context.Context, limit int) ([]models.PensionPayment, error)

	// Expense operations
	UpsertExpense(ctx context.Context, e *models.Expense) error
	ListExpensesSince(ctx context.Context, cutoffMs int64) ([]models.Expense, error)

	// Settings
	GetSettings(ctx context.Context) (map[string]string, error)

	// Parking record operations
	UpsertParkingRecord(ctx context.Context, r *models.ParkingRecord) error
	ListParkingRecordsForPull(ctx context.Context, cutoffMs int64) ([]models.ParkingRecord, error)
	QueryParkingRecords(ctx context.Context, filter RecordFilter) ([]models.ParkingRecord, error)
	CreateParkingRecord(ctx context.Context, r *models.ParkingRecord) error
	UpdateParkingRecord(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteParkingRecord(ctx context.Context, id string) error

	// Suggestions
	SuggestValues(ctx context.Context, kind, query string) ([]string, error)

	// Reports
	SumParkingRevenue(ctx context.Context, startMs, endMs int64) (float64, error)
	SumPensionIncome(ctx context.Context, startMs, endMs int64) (float64, error)
	SumExpenses(ctx context.Context, startMs, endMs int64) (float64, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// User repository methods
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, `SELECT * FROM users`)
	return users, err
}

func (r *PostgresRepository) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, role, pin, is_active, is_synced)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			pin = EXCLUDED.pin,
			is_active = EXCLUDED.is_active,
			is_synced = TRUE
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Role, user.Pin, user.IsActive)
	return err
}

// Catalog repository methods
func (r *PostgresRepository) GetTariffType(ctx context.Context, id string) (*models.TariffType, error) {
	var t models.TariffType
	err := r.db.GetContext(ctx, &t, `SELECT * FROM tariff_types WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) ListTariffTypes(ctx context.Context) ([]models.TariffType, error) {
	types := []models.TariffType{}
	err := r.db.SelectContext(ctx, &types, `SELECT * FROM tariff_types`)
	return types, err
}

func (r *PostgresRepository) UpsertTariffType(ctx context.Context, t *models.TariffType) error {
	query := `
		INSERT INTO tariff_types (id, name, default_cost, cost_first_period, cost_next_period,
			period_minutes, tolerance_minutes, is_active, is_synced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			default_cost = EXCLUDED.default_cost,
			cost_first_period = EXCLUDED.cost_first_period,
			cost_next_period = EXCLUDED.cost_next_period,
			period_minutes = EXCLUDED.period_minutes,
			tolerance_minutes = EXCLUDED.tolerance_minutes,
			is_active = EXCLUDED.is_active,
			is_synced = TRUE
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Name, t.DefaultCost, t.CostFirstPeriod, t.CostNextPeriod,
		t.PeriodMinutes, t.ToleranceMinutes, t.IsActive)
	return err
}

func (r *PostgresRepository) ListEntryTypes(ctx context.Context) ([]models.EntryType, error) {
	types := []models.EntryType{}
	err := r.db.SelectContext(ctx, &types, `SELECT * FROM entry_types`)
	return types, err
}

func (r *PostgresRepository) UpsertEntryType(ctx context.Context, e *models.EntryType) error {
	query := `
		INSERT INTO entry_types (id, name, default_tariff_id, is_default, should_print_ticket, is_active, is_synced)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			default_tariff_id = EXCLUDED.default_tariff_id,
			is_default = EXCLUDED.is_default,
			should_print_ticket = EXCLUDED.should_print_ticket,
			is_active = EXCLUDED.is_active,
			is_synced = TRUE
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Name, e.DefaultTariffID, e.IsDefault, e.ShouldPrintTicket, e.IsActive)
	return err
}

// SetDefaultEntryType marks one entry type as the default selection and clears
// the flag everywhere else. Both statements run in one transaction so a
// concurrent pull can never observe two defaults.
func (r *PostgresRepository) SetDefaultEntryType(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE entry_types SET is_default = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrNotFound
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE entry_types SET is_default = FALSE WHERE id != $1`, id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) ListActiveExpenseCategories(ctx context.Context) ([]models.ExpenseCategory, error) {
	categories := []models.ExpenseCategory{}
	err := r.db.SelectContext(ctx, &categories, `SELECT * FROM expense_categories WHERE is_active = TRUE`)
	return categories, err
}

func (r *PostgresRepository) UpsertExpenseCategory(ctx context.Context, c *models.ExpenseCategory) error {
	query := `
		INSERT INTO expense_categories (id, name, description, is_active, is_synced)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			is_synced = TRUE
	`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Description, c.IsActive)
	return err
}

// Pension repository methods
func (r *PostgresRepository) GetPensionSubscriber(ctx context.Context, id string) (*models.PensionSubscriber, error) {
	var s models.PensionSubscriber
	err := r.db.GetContext(ctx, &s, `SELECT * FROM pension_subscribers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) ListPensionSubscribers(ctx context.Context) ([]models.PensionSubscriber, error) {
	subscribers := []models.PensionSubscriber{}
	err := r.db.SelectContext(ctx, &subscribers, `SELECT * FROM pension_subscribers`)
	return subscribers, err
}

func (r *PostgresRepository) UpsertPensionSubscriber(ctx context.Context, s *models.PensionSubscriber) error {
	query := `
		INSERT INTO pension_subscribers (id, folio, plate, name, entry_type_id, monthly_fee,
			entry_date, paid_until, is_active, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			plate = EXCLUDED.plate,
			name = EXCLUDED.name,
			entry_type_id = EXCLUDED.entry_type_id,
			monthly_fee = EXCLUDED.monthly_fee,
			entry_date = EXCLUDED.entry_date,
			paid_until = EXCLUDED.paid_until,
			is_active = EXCLUDED.is_active,
			notes = EXCLUDED.notes
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Folio, s.Plate, s.Name, s.EntryTypeID, s.MonthlyFee,
		s.EntryDate, s.PaidUntil, s.IsActive, s.Notes)
	return err
}

func (r *PostgresRepository) SetSubscriberActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pension_subscribers SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPensionPayment is the sync path: it replaces the payment row only.
// The subscriber's paid_until is the client's responsibility on this path, as
// the client pushes the subscriber row separately.
func (r *PostgresRepository) UpsertPensionPayment(ctx context.Context, p *models.PensionPayment) error {
	query := `
		INSERT INTO pension_payments (id, subscriber_id, amount, payment_date,
			coverage_start_date, coverage_end_date, notes, is_synced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			subscriber_id = EXCLUDED.subscriber_id,
			amount = EXCLUDED.amount,
			payment_date = EXCLUDED.payment_date,
			coverage_start_date = EXCLUDED.coverage_start_date,
			coverage_end_date = EXCLUDED.coverage_end_date,
			notes = EXCLUDED.notes,
			is_synced = TRUE
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.SubscriberID, p.Amount, p.PaymentDate,
		p.CoverageStartDate, p.CoverageEndDate, p.Notes)
	return err
}

// RegisterPensionPayment is the admin path: the payment row and the
// subscriber's paid_until advance together or not at all.
func (r *PostgresRepository) RegisterPensionPayment(ctx context.Context, p *models.PensionPayment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pension_payments (id, subscriber_id, amount, payment_date,
			coverage_start_date, coverage_end_date, notes, is_synced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)`,
		p.ID, p.SubscriberID, p.Amount, p.PaymentDate,
		p.CoverageStartDate, p.CoverageEndDate, p.Notes)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE pension_subscribers SET paid_until = $1 WHERE id = $2`,
		p.CoverageEndDate, p.SubscriberID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) ListRecentPensionPayments(ctx context.Context, limit int) ([]models.PensionPayment, error) {
	payments := []models.PensionPayment{}
	err := r.db.SelectContext(ctx, &payments,
		`SELECT * FROM pension_payments ORDER BY payment_date DESC LIMIT $1`, limit)
	return payments, err
}

// Expense repository methods
func (r *PostgresRepository) UpsertExpense(ctx context.Context, e *models.Expense) error {
	query := `
		INSERT INTO expenses (id, description, amount, category, expense_date, user_id, is_synced)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			category = EXCLUDED.category,
			expense_date = EXCLUDED.expense_date,
			user_id = EXCLUDED.user_id,
			is_synced = TRUE
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Description, e.Amount, e.Category, e.ExpenseDate, e.UserID)
	return err
}

func (r *PostgresRepository) ListExpensesSince(ctx context.Context, cutoffMs int64) ([]models.Expense, error) {
	expenses := []models.Expense{}
	err := r.db.SelectContext(ctx, &expenses,
		`SELECT * FROM expenses WHERE expense_date >= $1 ORDER BY expense_date DESC`, cutoffMs)
	return expenses, err
}

// Settings
func (r *PostgresRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	err := r.db.SelectContext(ctx, &rows, `SELECT setting_key, setting_value FROM settings`)
	if err != nil {
		return nil, err
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}

// Parking record repository methods
func (r *PostgresRepository) UpsertParkingRecord(ctx context.Context, rec *models.ParkingRecord) error {
	query := `
		INSERT INTO parking_records (id, folio, plate, description, entry_type_id, entry_user_id,
			entry_time, exit_time, cost, tariff_type_id, exit_user_id, notes,
			is_synced, pension_subscriber_id, amount_paid, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			plate = EXCLUDED.plate,
			description = EXCLUDED.description,
			entry_type_id = EXCLUDED.entry_type_id,
			entry_user_id = EXCLUDED.entry_user_id,
			entry_time = EXCLUDED.entry_time,
			exit_time = EXCLUDED.exit_time,
			cost = EXCLUDED.cost,
			tariff_type_id = EXCLUDED.tariff_type_id,
			exit_user_id = EXCLUDED.exit_user_id,
			notes = EXCLUDED.notes,
			is_synced = TRUE,
			pension_subscriber_id = EXCLUDED.pension_subscriber_id,
			amount_paid = EXCLUDED.amount_paid,
			payment_status = EXCLUDED.payment_status
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Folio, rec.Plate, rec.Description, rec.EntryTypeID, rec.EntryUserID,
		rec.EntryTime, rec.ExitTime, rec.Cost, rec.TariffTypeID, rec.ExitUserID, rec.Notes,
		rec.PensionSubscriberID, rec.AmountPaid, rec.PaymentStatus)
	return err
}

// ListParkingRecordsForPull returns every on-site vehicle plus all records
// whose exit happened at or after the cutoff.
func (r *PostgresRepository) ListParkingRecordsForPull(ctx context.Context, cutoffMs int64) ([]models.ParkingRecord, error) {
	records := []models.ParkingRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM parking_records
		WHERE exit_time IS NULL OR exit_time >= $1
		ORDER BY entry_time DESC`, cutoffMs)
	return records, err
}

func (r *PostgresRepository) QueryParkingRecords(ctx context.Context, filter RecordFilter) ([]models.ParkingRecord, error) {
	query := `SELECT * FROM parking_records WHERE 1=1`
	args := []interface{}{}

	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		query += fmt.Sprintf(" AND entry_time >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		query += fmt.Sprintf(" AND entry_time <= $%d", len(args))
	}
	if filter.Plate != "" {
		args = append(args, "%"+filter.Plate+"%")
		query += fmt.Sprintf(" AND plate LIKE $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY entry_time DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	records := []models.ParkingRecord{}
	err := r.db.SelectContext(ctx, &records, query, args...)
	return records, err
}

func (r *PostgresRepository) CreateParkingRecord(ctx context.Context, rec *models.ParkingRecord) error {
	query := `
		INSERT INTO parking_records (id, folio, plate, description, entry_type_id, entry_user_id,
			entry_time, exit_time, cost, tariff_type_id, exit_user_id, notes,
			is_synced, pension_subscriber_id, amount_paid, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Folio, rec.Plate, rec.Description, rec.EntryTypeID, rec.EntryUserID,
		rec.EntryTime, rec.ExitTime, rec.Cost, rec.TariffTypeID, rec.ExitUserID, rec.Notes,
		rec.PensionSubscriberID, rec.AmountPaid, rec.PaymentStatus)
	return err
}

// updatableRecordFields are the columns an admin correction may touch.
var updatableRecordFields = map[string]bool{
	"folio":                 true,
	"plate":                 true,
	"description":           true,
	"entry_type_id":         true,
	"entry_user_id":         true,
	"entry_time":            true,
	"exit_time":             true,
	"cost":                  true,
	"tariff_type_id":        true,
	"exit_user_id":          true,
	"notes":                 true,
	"pension_subscriber_id": true,
	"amount_paid":           true,
	"payment_status":        true,
}

// UpdateParkingRecord patches only the provided columns. Unknown columns are
// ignored rather than rejected, matching what deployed clients expect.
func (r *PostgresRepository) UpdateParkingRecord(ctx context.Context, id string, fields map[string]interface{}) error {
	setClauses := []string{}
	args := []interface{}{}

	for column, value := range fields {
		if !updatableRecordFields[column] {
			continue
		}
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE parking_records SET %s WHERE id = $%d",
		strings.Join(setClauses, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteParkingRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM parking_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// suggestionSources maps a suggestion kind to the table, value column and
// recency column it draws from. Only values from this table reach the SQL
// text, never caller input.
var suggestionSources = map[string]struct {
	table   string
	column  string
	orderBy string
}{
	"plate":            {"parking_records", "plate", "entry_time"},
	"description":      {"parking_records", "description", "entry_time"},
	"client_name":      {"pension_subscribers", "name", "entry_date"},
	"expense_category": {"expenses", "category", "expense_date"},
	"entry_type_name":  {"entry_types", "name", "id"},
	"tariff_type_name": {"tariff_types", "name", "id"},
}

func (r *PostgresRepository) SuggestValues(ctx context.Context, kind, query string) ([]string, error) {
	src, ok := suggestionSources[kind]
	if !ok {
		return []string{}, nil
	}

	stmt := fmt.Sprintf(`
		SELECT %[2]s FROM (
			SELECT DISTINCT %[2]s, MAX(%[3]s) AS recency
			FROM %[1]s
			WHERE %[2]s LIKE $1 AND %[2]s IS NOT NULL AND %[2]s != ''
			GROUP BY %[2]s
		) matches
		ORDER BY recency DESC
		LIMIT 10`, src.table, src.column, src.orderBy)

	values := []string{}
	err := r.db.SelectContext(ctx, &values, stmt, "%"+query+"%")
	return values, err
}

// Report aggregations
func (r *PostgresRepository) SumParkingRevenue(ctx context.Context, startMs, endMs int64) (float64, error) {
	var total float64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount_paid), 0) FROM parking_records
		WHERE exit_time IS NOT NULL AND exit_time BETWEEN $1 AND $2`, startMs, endMs)
	return total, err
}

func (r *PostgresRepository) SumPensionIncome(ctx context.Context, startMs, endMs int64) (float64, error) {
	var total float64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM pension_payments
		WHERE payment_date BETWEEN $1 AND $2`, startMs, endMs)
	return total, err
}

func (r *PostgresRepository) SumExpenses(ctx context.Context, startMs, endMs int64) (float64, error) {
	var total float64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE expense_date BETWEEN $1 AND $2`, startMs, endMs)
	return total, err
}
