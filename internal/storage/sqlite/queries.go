package sqlite

import (
	"context"
	"database/sql"
)

const expenseColumns = `id, user_id, title, description, category_id, tags, notes, amount, due_date,
is_paid, paid_at, is_recurring, recurring_start_date, recurring_end_date, installments,
current_installment, is_financing, financing_total_amount, financing_months_total,
financing_paid_amount, financing_discount_amount, financing_months_paid,
early_payment_discount_rate, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row scanner) (Expense, error) {
	var i Expense
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Title,
		&i.Description,
		&i.CategoryID,
		&i.Tags,
		&i.Notes,
		&i.Amount,
		&i.DueDate,
		&i.IsPaid,
		&i.PaidAt,
		&i.IsRecurring,
		&i.RecurringStartDate,
		&i.RecurringEndDate,
		&i.Installments,
		&i.CurrentInstallment,
		&i.IsFinancing,
		&i.FinancingTotalAmount,
		&i.FinancingMonthsTotal,
		&i.FinancingPaidAmount,
		&i.FinancingDiscountAmount,
		&i.FinancingMonthsPaid,
		&i.EarlyPaymentDiscountRate,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createExpense = `INSERT INTO expenses (` + expenseColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateExpense(ctx context.Context, arg Expense) error {
	_, err := q.db.ExecContext(ctx, createExpense,
		arg.ID,
		arg.UserID,
		arg.Title,
		arg.Description,
		arg.CategoryID,
		arg.Tags,
		arg.Notes,
		arg.Amount,
		arg.DueDate,
		arg.IsPaid,
		arg.PaidAt,
		arg.IsRecurring,
		arg.RecurringStartDate,
		arg.RecurringEndDate,
		arg.Installments,
		arg.CurrentInstallment,
		arg.IsFinancing,
		arg.FinancingTotalAmount,
		arg.FinancingMonthsTotal,
		arg.FinancingPaidAmount,
		arg.FinancingDiscountAmount,
		arg.FinancingMonthsPaid,
		arg.EarlyPaymentDiscountRate,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ? AND user_id = ?`

func (q *Queries) GetExpense(ctx context.Context, id, userID string) (Expense, error) {
	row := q.db.QueryRowContext(ctx, getExpense, id, userID)
	return scanExpense(row)
}

const listExpensesByUser = `SELECT ` + expenseColumns + ` FROM expenses
WHERE user_id = ?1 AND (?2 IS NULL OR is_paid = ?2)
ORDER BY due_date, id`

func (q *Queries) ListExpensesByUser(ctx context.Context, userID string, isPaid sql.NullBool) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesByUser, userID, isPaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		i, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateExpense = `UPDATE expenses SET
    title = ?, description = ?, category_id = ?, tags = ?, notes = ?, amount = ?, due_date = ?,
    is_recurring = ?, recurring_start_date = ?, recurring_end_date = ?, installments = ?,
    current_installment = ?, is_financing = ?, financing_total_amount = ?,
    financing_months_total = ?, early_payment_discount_rate = ?, updated_at = ?
WHERE id = ? AND user_id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, arg Expense) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateExpense,
		arg.Title,
		arg.Description,
		arg.CategoryID,
		arg.Tags,
		arg.Notes,
		arg.Amount,
		arg.DueDate,
		arg.IsRecurring,
		arg.RecurringStartDate,
		arg.RecurringEndDate,
		arg.Installments,
		arg.CurrentInstallment,
		arg.IsFinancing,
		arg.FinancingTotalAmount,
		arg.FinancingMonthsTotal,
		arg.EarlyPaymentDiscountRate,
		arg.UpdatedAt,
		arg.ID,
		arg.UserID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id, userID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpense, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const setExpensePaid = `UPDATE expenses SET is_paid = ?, paid_at = ?, updated_at = ? WHERE id = ? AND user_id = ?`

func (q *Queries) SetExpensePaid(ctx context.Context, id, userID string, isPaid bool, paidAt sql.NullString, updatedAt string) (int64, error) {
	result, err := q.db.ExecContext(ctx, setExpensePaid, isPaid, paidAt, updatedAt, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateFinancingTotals = `UPDATE expenses SET
    financing_paid_amount = ?, financing_discount_amount = ?, is_paid = ?, paid_at = ?, updated_at = ?
WHERE id = ? AND user_id = ?`

type UpdateFinancingTotalsParams struct {
	ID             string
	UserID         string
	PaidAmount     string
	DiscountAmount string
	IsPaid         bool
	PaidAt         sql.NullString
	UpdatedAt      string
}

func (q *Queries) UpdateFinancingTotals(ctx context.Context, arg UpdateFinancingTotalsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateFinancingTotals,
		arg.PaidAmount,
		arg.DiscountAmount,
		arg.IsPaid,
		arg.PaidAt,
		arg.UpdatedAt,
		arg.ID,
		arg.UserID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const setFinancingMonthsPaid = `UPDATE expenses SET financing_months_paid = ? WHERE id = ? AND user_id = ?`

func (q *Queries) SetFinancingMonthsPaid(ctx context.Context, id, userID string, months int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, setFinancingMonthsPaid, months, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const resetFinancing = `UPDATE expenses SET
    financing_paid_amount = '0', financing_discount_amount = '0', financing_months_paid = 0,
    is_paid = 0, paid_at = NULL, updated_at = ?
WHERE id = ? AND user_id = ?`

func (q *Queries) ResetFinancing(ctx context.Context, id, userID, updatedAt string) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetFinancing, updatedAt, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const instanceColumns = `id, expense_id, user_id, instance_type, installment_number, amount,
instance_date, is_paid, paid_at, created_at`

func scanInstance(row scanner) (ExpenseInstance, error) {
	var i ExpenseInstance
	err := row.Scan(
		&i.ID,
		&i.ExpenseID,
		&i.UserID,
		&i.InstanceType,
		&i.InstallmentNumber,
		&i.Amount,
		&i.InstanceDate,
		&i.IsPaid,
		&i.PaidAt,
		&i.CreatedAt,
	)
	return i, err
}

const createInstance = `INSERT INTO expense_instances (` + instanceColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateInstance(ctx context.Context, arg ExpenseInstance) error {
	_, err := q.db.ExecContext(ctx, createInstance,
		arg.ID,
		arg.ExpenseID,
		arg.UserID,
		arg.InstanceType,
		arg.InstallmentNumber,
		arg.Amount,
		arg.InstanceDate,
		arg.IsPaid,
		arg.PaidAt,
		arg.CreatedAt,
	)
	return err
}

const getInstanceByKey = `SELECT ` + instanceColumns + ` FROM expense_instances
WHERE expense_id = ? AND instance_date = ? AND instance_type = ? AND installment_number = ? AND user_id = ?`

type GetInstanceByKeyParams struct {
	ExpenseID         string
	InstanceDate      string
	InstanceType      string
	InstallmentNumber int64
	UserID            string
}

func (q *Queries) GetInstanceByKey(ctx context.Context, arg GetInstanceByKeyParams) (ExpenseInstance, error) {
	row := q.db.QueryRowContext(ctx, getInstanceByKey,
		arg.ExpenseID,
		arg.InstanceDate,
		arg.InstanceType,
		arg.InstallmentNumber,
		arg.UserID,
	)
	return scanInstance(row)
}

const setInstancePaid = `UPDATE expense_instances SET is_paid = ?, paid_at = ? WHERE id = ? AND user_id = ?`

func (q *Queries) SetInstancePaid(ctx context.Context, id, userID string, isPaid bool, paidAt sql.NullString) (int64, error) {
	result, err := q.db.ExecContext(ctx, setInstancePaid, isPaid, paidAt, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listInstances = `SELECT ` + instanceColumns + ` FROM expense_instances
WHERE user_id = ?1
  AND (?2 = '' OR expense_id = ?2)
  AND (?3 = '' OR instance_date >= ?3)
  AND (?4 = '' OR instance_date <= ?4)
  AND (?5 = '' OR instance_type = ?5)
  AND (?6 IS NULL OR is_paid = ?6)
ORDER BY instance_date, expense_id, installment_number`

type ListInstancesParams struct {
	UserID       string
	ExpenseID    string
	FromDate     string
	ToDate       string
	InstanceType string
	IsPaid       sql.NullBool
}

func (q *Queries) ListInstances(ctx context.Context, arg ListInstancesParams) ([]ExpenseInstance, error) {
	rows, err := q.db.QueryContext(ctx, listInstances,
		arg.UserID,
		arg.ExpenseID,
		arg.FromDate,
		arg.ToDate,
		arg.InstanceType,
		arg.IsPaid,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countPaidInstances = `SELECT COUNT(*) FROM expense_instances
WHERE expense_id = ? AND user_id = ? AND instance_type = ? AND is_paid = 1`

func (q *Queries) CountPaidInstances(ctx context.Context, expenseID, userID, instanceType string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPaidInstances, expenseID, userID, instanceType)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const resetInstances = `UPDATE expense_instances SET is_paid = 0, paid_at = NULL WHERE expense_id = ? AND user_id = ? AND is_paid = 1`

func (q *Queries) ResetInstances(ctx context.Context, expenseID, userID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetInstances, expenseID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteInstancesByExpense = `DELETE FROM expense_instances WHERE expense_id = ?`

func (q *Queries) DeleteInstancesByExpense(ctx context.Context, expenseID string) error {
	_, err := q.db.ExecContext(ctx, deleteInstancesByExpense, expenseID)
	return err
}

const transactionColumns = `id, expense_id, user_id, payment_amount, discount_amount, automatic_discount,
payment_type, idempotency_key, note, created_at`

const createPaymentTransaction = `INSERT INTO payment_transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreatePaymentTransaction(ctx context.Context, arg PaymentTransaction) error {
	_, err := q.db.ExecContext(ctx, createPaymentTransaction,
		arg.ID,
		arg.ExpenseID,
		arg.UserID,
		arg.PaymentAmount,
		arg.DiscountAmount,
		arg.AutomaticDiscount,
		arg.PaymentType,
		arg.IdempotencyKey,
		arg.Note,
		arg.CreatedAt,
	)
	return err
}

const listPaymentTransactions = `SELECT ` + transactionColumns + ` FROM payment_transactions
WHERE expense_id = ? AND user_id = ?
ORDER BY created_at DESC, rowid DESC`

func (q *Queries) ListPaymentTransactions(ctx context.Context, expenseID, userID string) ([]PaymentTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentTransactions, expenseID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentTransaction
	for rows.Next() {
		var i PaymentTransaction
		if err := rows.Scan(
			&i.ID,
			&i.ExpenseID,
			&i.UserID,
			&i.PaymentAmount,
			&i.DiscountAmount,
			&i.AutomaticDiscount,
			&i.PaymentType,
			&i.IdempotencyKey,
			&i.Note,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deletePaymentTransactions = `DELETE FROM payment_transactions WHERE expense_id = ? AND user_id = ?`

func (q *Queries) DeletePaymentTransactions(ctx context.Context, expenseID, userID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePaymentTransactions, expenseID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deletePaymentTransactionsByExpense = `DELETE FROM payment_transactions WHERE expense_id = ?`

func (q *Queries) DeletePaymentTransactionsByExpense(ctx context.Context, expenseID string) error {
	_, err := q.db.ExecContext(ctx, deletePaymentTransactionsByExpense, expenseID)
	return err
}

const ping = `SELECT 1`

func (q *Queries) Ping(ctx context.Context) error {
	var one int
	return q.db.QueryRowContext(ctx, ping).Scan(&one)
}
