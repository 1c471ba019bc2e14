package sqlite

import (
	"database/sql"
)

type Expense struct {
	ID                       string
	UserID                   string
	Title                    string
	Description              string
	CategoryID               string
	Tags                     string
	Notes                    string
	Amount                   string
	DueDate                  string
	IsPaid                   bool
	PaidAt                   sql.NullString
	IsRecurring              bool
	RecurringStartDate       sql.NullString
	RecurringEndDate         sql.NullString
	Installments             int64
	CurrentInstallment       int64
	IsFinancing              bool
	FinancingTotalAmount     string
	FinancingMonthsTotal     int64
	FinancingPaidAmount      string
	FinancingDiscountAmount  string
	FinancingMonthsPaid      int64
	EarlyPaymentDiscountRate string
	CreatedAt                string
	UpdatedAt                string
}

type ExpenseInstance struct {
	ID                string
	ExpenseID         string
	UserID            string
	InstanceType      string
	InstallmentNumber int64
	Amount            string
	InstanceDate      string
	IsPaid            bool
	PaidAt            sql.NullString
	CreatedAt         string
}

type PaymentTransaction struct {
	ID                string
	ExpenseID         string
	UserID            string
	PaymentAmount     string
	DiscountAmount    string
	AutomaticDiscount string
	PaymentType       string
	IdempotencyKey    sql.NullString
	Note              string
	CreatedAt         string
}
