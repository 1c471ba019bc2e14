package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

const driverName = "sqlite"

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

var (
	_ storage.Store      = (*SQLiteRepository)(nil)
	_ storage.Transactor = (*SQLiteRepository)(nil)
	_ storage.Pinger     = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := migrateSchema(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open(driverName, dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer keeps transactions free of SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("sqlite store ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.queries.Ping(ctx)
}

// WithinTx runs fn inside a database transaction. A repository already
// bound to a transaction runs fn directly.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(tx storage.Store) error) error {
	if r.db == nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txRepo := &SQLiteRepository{queries: r.queries.WithTx(tx), logger: r.logger}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.ErrorContext(ctx, "Rollback failed", log.NewFields().WithError(rbErr).ToSlice()...)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.ExpenseRecord) error {
	row, err := toExpenseRow(e)
	if err != nil {
		return err
	}
	if err := r.queries.CreateExpense(ctx, row); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	r.logger.DebugContext(ctx, "Expense saved to SQLite", log.NewFields().WithExpense(e.ID, e.Title, string(e.Kind())).WithUser(e.UserID).ToSlice()...)
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.ExpenseRecord, error) {
	row, err := r.queries.GetExpense(ctx, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get expense: %w", err)
	}
	return r.fromExpenseRow(ctx, row), nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, f storage.ExpenseFilter) ([]core.ExpenseRecord, error) {
	var paid sql.NullBool
	if f.IsPaid != nil {
		paid = sql.NullBool{Bool: *f.IsPaid, Valid: true}
	}
	rows, err := r.queries.ListExpensesByUser(ctx, userID, paid)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]core.ExpenseRecord, 0, len(rows))
	for _, row := range rows {
		e := r.fromExpenseRow(ctx, row)
		if f.Kind != "" && e.Kind() != f.Kind {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.ExpenseRecord) error {
	row, err := toExpenseRow(e)
	if err != nil {
		return err
	}
	n, err := r.queries.UpdateExpense(ctx, row)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return expectOne(n, "expense", e.ID)
}

// DeleteExpense removes children explicitly as well, so the cascade holds
// even on connections opened without foreign keys.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	return r.WithinTx(ctx, func(tx storage.Store) error {
		q := tx.(*SQLiteRepository).queries
		if _, err := q.GetExpense(ctx, id, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
			}
			return fmt.Errorf("get expense: %w", err)
		}
		if err := q.DeletePaymentTransactionsByExpense(ctx, id); err != nil {
			return fmt.Errorf("delete payment transactions: %w", err)
		}
		if err := q.DeleteInstancesByExpense(ctx, id); err != nil {
			return fmt.Errorf("delete instances: %w", err)
		}
		n, err := q.DeleteExpense(ctx, id, userID)
		if err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		return expectOne(n, "expense", id)
	})
}

func (r *SQLiteRepository) SetExpensePaid(ctx context.Context, userID, id string, paid bool, paidAt *time.Time) error {
	n, err := r.queries.SetExpensePaid(ctx, id, userID, paid, nullTime(paidAt), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set expense paid: %w", err)
	}
	return expectOne(n, "expense", id)
}

func (r *SQLiteRepository) UpdateFinancingTotals(ctx context.Context, userID, id string, t core.FinancingTotals) error {
	n, err := r.queries.UpdateFinancingTotals(ctx, UpdateFinancingTotalsParams{
		ID:             id,
		UserID:         userID,
		PaidAmount:     t.PaidAmount.String(),
		DiscountAmount: t.DiscountAmount.String(),
		IsPaid:         t.IsPaid,
		PaidAt:         nullTime(t.PaidAt),
		UpdatedAt:      formatTime(time.Now()),
	})
	if err != nil {
		return fmt.Errorf("update financing totals: %w", err)
	}
	return expectOne(n, "expense", id)
}

func (r *SQLiteRepository) SetFinancingMonthsPaid(ctx context.Context, userID, id string, months int) error {
	n, err := r.queries.SetFinancingMonthsPaid(ctx, id, userID, int64(months))
	if err != nil {
		return fmt.Errorf("set financing months paid: %w", err)
	}
	return expectOne(n, "expense", id)
}

func (r *SQLiteRepository) ResetFinancing(ctx context.Context, userID, id string) error {
	n, err := r.queries.ResetFinancing(ctx, id, userID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("reset financing: %w", err)
	}
	return expectOne(n, "expense", id)
}

// InsertInstances inserts all rows or none.
func (r *SQLiteRepository) InsertInstances(ctx context.Context, rows []core.ExpenseInstance) error {
	return r.WithinTx(ctx, func(tx storage.Store) error {
		q := tx.(*SQLiteRepository).queries
		now := formatTime(time.Now())
		for _, inst := range rows {
			row := toInstanceRow(inst)
			if row.CreatedAt == "" {
				row.CreatedAt = now
			}
			if err := q.CreateInstance(ctx, row); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%s: %w", inst.Key(), core.ErrDuplicateInstance)
				}
				return fmt.Errorf("create instance: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) FindInstance(ctx context.Context, userID string, key core.NaturalKey) (core.ExpenseInstance, error) {
	row, err := r.queries.GetInstanceByKey(ctx, GetInstanceByKeyParams{
		ExpenseID:         key.ExpenseID,
		InstanceDate:      key.InstanceDate.String(),
		InstanceType:      string(key.Type),
		InstallmentNumber: int64(key.InstallmentNumber),
		UserID:            userID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseInstance{}, fmt.Errorf("instance %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.ExpenseInstance{}, fmt.Errorf("get instance: %w", err)
	}
	return r.fromInstanceRow(ctx, row), nil
}

func (r *SQLiteRepository) SetInstancePaid(ctx context.Context, userID, id string, paid bool, paidAt *time.Time) error {
	n, err := r.queries.SetInstancePaid(ctx, id, userID, paid, nullTime(paidAt))
	if err != nil {
		return fmt.Errorf("set instance paid: %w", err)
	}
	return expectOne(n, "instance", id)
}

func (r *SQLiteRepository) ListInstances(ctx context.Context, userID string, f storage.InstanceFilter) ([]core.ExpenseInstance, error) {
	arg := ListInstancesParams{
		UserID:       userID,
		ExpenseID:    f.ExpenseID,
		FromDate:     f.From.String(),
		ToDate:       f.To.String(),
		InstanceType: string(f.Type),
	}
	if f.IsPaid != nil {
		arg.IsPaid = sql.NullBool{Bool: *f.IsPaid, Valid: true}
	}
	rows, err := r.queries.ListInstances(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	out := make([]core.ExpenseInstance, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.fromInstanceRow(ctx, row))
	}
	return out, nil
}

func (r *SQLiteRepository) CountPaidInstances(ctx context.Context, userID, expenseID string, typ core.InstanceType) (int, error) {
	n, err := r.queries.CountPaidInstances(ctx, expenseID, userID, string(typ))
	if err != nil {
		return 0, fmt.Errorf("count paid instances: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) ResetInstances(ctx context.Context, userID, expenseID string) (int, error) {
	n, err := r.queries.ResetInstances(ctx, expenseID, userID)
	if err != nil {
		return 0, fmt.Errorf("reset instances: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) AppendTransaction(ctx context.Context, t core.PaymentTransaction) error {
	row := PaymentTransaction{
		ID:                t.ID,
		ExpenseID:         t.ExpenseID,
		UserID:            t.UserID,
		PaymentAmount:     t.PaymentAmount.String(),
		DiscountAmount:    t.DiscountAmount.String(),
		AutomaticDiscount: t.AutomaticDiscount.String(),
		PaymentType:       string(t.PaymentType),
		IdempotencyKey:    sql.NullString{String: t.IdempotencyKey, Valid: t.IdempotencyKey != ""},
		Note:              t.Note,
		CreatedAt:         formatTime(t.CreatedAt),
	}
	if err := r.queries.CreatePaymentTransaction(ctx, row); err != nil {
		if isUniqueViolation(err) && t.IdempotencyKey != "" {
			return fmt.Errorf("key %q: %w", t.IdempotencyKey, core.ErrDuplicatePayment)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("transaction for expense %s: %w", t.ExpenseID, core.ErrNotFound)
		}
		return fmt.Errorf("create payment transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID, expenseID string) ([]core.PaymentTransaction, error) {
	rows, err := r.queries.ListPaymentTransactions(ctx, expenseID, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	out := make([]core.PaymentTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.PaymentTransaction{
			ID:                row.ID,
			ExpenseID:         row.ExpenseID,
			UserID:            row.UserID,
			PaymentAmount:     r.parseDecimal(ctx, row.PaymentAmount, "payment_amount"),
			DiscountAmount:    r.parseDecimal(ctx, row.DiscountAmount, "discount_amount"),
			AutomaticDiscount: r.parseDecimal(ctx, row.AutomaticDiscount, "automatic_discount"),
			PaymentType:       core.PaymentType(row.PaymentType),
			IdempotencyKey:    row.IdempotencyKey.String,
			Note:              row.Note,
			CreatedAt:         parseTime(row.CreatedAt),
		})
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteTransactions(ctx context.Context, userID, expenseID string) (int, error) {
	n, err := r.queries.DeletePaymentTransactions(ctx, expenseID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete payment transactions: %w", err)
	}
	return int(n), nil
}

func toExpenseRow(e core.ExpenseRecord) (Expense, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Expense{}, fmt.Errorf("encode tags: %w", err)
	}
	return Expense{
		ID:                       e.ID,
		UserID:                   e.UserID,
		Title:                    e.Title,
		Description:              e.Description,
		CategoryID:               e.CategoryID,
		Tags:                     string(tagsJSON),
		Notes:                    e.Notes,
		Amount:                   e.Amount.String(),
		DueDate:                  e.DueDate.String(),
		IsPaid:                   e.IsPaid,
		PaidAt:                   nullTime(e.PaidAt),
		IsRecurring:              e.IsRecurring,
		RecurringStartDate:       nullDate(e.RecurringStartDate),
		RecurringEndDate:         nullDate(e.RecurringEndDate),
		Installments:             int64(e.Installments),
		CurrentInstallment:       int64(e.CurrentInstallment),
		IsFinancing:              e.IsFinancing,
		FinancingTotalAmount:     e.FinancingTotalAmount.String(),
		FinancingMonthsTotal:     int64(e.FinancingMonthsTotal),
		FinancingPaidAmount:      e.FinancingPaidAmount.String(),
		FinancingDiscountAmount:  e.FinancingDiscountAmount.String(),
		FinancingMonthsPaid:      int64(e.FinancingMonthsPaid),
		EarlyPaymentDiscountRate: e.EarlyPaymentDiscountRate.String(),
		CreatedAt:                formatTime(e.CreatedAt),
		UpdatedAt:                formatTime(e.UpdatedAt),
	}, nil
}

// fromExpenseRow leaves a date zero when its text does not parse; the
// projector skips such records with a warning.
func (r *SQLiteRepository) fromExpenseRow(ctx context.Context, row Expense) core.ExpenseRecord {
	e := core.ExpenseRecord{
		ID:                       row.ID,
		UserID:                   row.UserID,
		Title:                    row.Title,
		Description:              row.Description,
		CategoryID:               row.CategoryID,
		Notes:                    row.Notes,
		Amount:                   r.parseDecimal(ctx, row.Amount, "amount"),
		DueDate:                  r.parseDate(ctx, row.DueDate, "due_date"),
		IsPaid:                   row.IsPaid,
		PaidAt:                   parseNullTime(row.PaidAt),
		IsRecurring:              row.IsRecurring,
		Installments:             int(row.Installments),
		CurrentInstallment:       int(row.CurrentInstallment),
		IsFinancing:              row.IsFinancing,
		FinancingTotalAmount:     r.parseDecimal(ctx, row.FinancingTotalAmount, "financing_total_amount"),
		FinancingMonthsTotal:     int(row.FinancingMonthsTotal),
		FinancingPaidAmount:      r.parseDecimal(ctx, row.FinancingPaidAmount, "financing_paid_amount"),
		FinancingDiscountAmount:  r.parseDecimal(ctx, row.FinancingDiscountAmount, "financing_discount_amount"),
		FinancingMonthsPaid:      int(row.FinancingMonthsPaid),
		EarlyPaymentDiscountRate: r.parseDecimal(ctx, row.EarlyPaymentDiscountRate, "early_payment_discount_rate"),
		CreatedAt:                parseTime(row.CreatedAt),
		UpdatedAt:                parseTime(row.UpdatedAt),
	}
	if row.RecurringStartDate.Valid {
		e.RecurringStartDate = r.parseDate(ctx, row.RecurringStartDate.String, "recurring_start_date")
	}
	if row.RecurringEndDate.Valid {
		e.RecurringEndDate = r.parseDate(ctx, row.RecurringEndDate.String, "recurring_end_date")
	}
	if err := json.Unmarshal([]byte(row.Tags), &e.Tags); err != nil {
		r.logger.WarnContext(ctx, "Ignoring malformed tags", log.NewFields().WithExpense(row.ID, "", "").WithError(err).ToSlice()...)
		e.Tags = nil
	}
	return e
}

func toInstanceRow(i core.ExpenseInstance) ExpenseInstance {
	row := ExpenseInstance{
		ID:                i.ID,
		ExpenseID:         i.ExpenseID,
		UserID:            i.UserID,
		InstanceType:      string(i.Type),
		InstallmentNumber: int64(i.InstallmentNumber),
		Amount:            i.Amount.String(),
		InstanceDate:      i.InstanceDate.String(),
		IsPaid:            i.IsPaid,
		PaidAt:            nullTime(i.PaidAt),
	}
	if !i.CreatedAt.IsZero() {
		row.CreatedAt = formatTime(i.CreatedAt)
	}
	return row
}

func (r *SQLiteRepository) fromInstanceRow(ctx context.Context, row ExpenseInstance) core.ExpenseInstance {
	return core.ExpenseInstance{
		ID:                row.ID,
		ExpenseID:         row.ExpenseID,
		UserID:            row.UserID,
		Type:              core.InstanceType(row.InstanceType),
		InstallmentNumber: int(row.InstallmentNumber),
		Amount:            r.parseDecimal(ctx, row.Amount, "amount"),
		InstanceDate:      r.parseDate(ctx, row.InstanceDate, "instance_date"),
		IsPaid:            row.IsPaid,
		PaidAt:            parseNullTime(row.PaidAt),
		Persisted:         true,
		CreatedAt:         parseTime(row.CreatedAt),
	}
}

func (r *SQLiteRepository) parseDate(ctx context.Context, s, column string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		r.logger.WarnContext(ctx, "Unparseable date column", "column", column, log.FieldError, err.Error())
		return core.Date{}
	}
	return d
}

func (r *SQLiteRepository) parseDecimal(ctx context.Context, s, column string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		r.logger.WarnContext(ctx, "Unparseable amount column", "column", column, log.FieldError, err.Error())
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func expectOne(n int64, what, id string) error {
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
