package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	InstanceNormal    InstanceType = "normal"
	InstanceRecurring InstanceType = "recurring"
	InstanceFinancing InstanceType = "financing"
)

const (
	EarlyPayment   PaymentType = "early_payment"
	PartialPayment PaymentType = "partial_payment"
)

const (
	KindOneOff      Kind = "one_off"
	KindInstallment Kind = "installment"
	KindRecurring   Kind = "recurring"
	KindFinancing   Kind = "financing"
)

type (
	InstanceType string
	PaymentType  string

	// Kind is the projection category of an expense record.
	Kind string

	// ExpenseRecord is the durable definition of an expense owned by a user.
	ExpenseRecord struct {
		ID          string          `json:"id"`
		UserID      string          `json:"user_id"`
		Title       string          `json:"title"`
		Description string          `json:"description,omitempty"`
		CategoryID  string          `json:"category_id,omitempty"`
		Tags        []string        `json:"tags,omitempty"`
		Notes       string          `json:"notes,omitempty"`
		Amount      decimal.Decimal `json:"amount"`
		DueDate     Date            `json:"due_date"`
		IsPaid      bool            `json:"is_paid"`
		PaidAt      *time.Time      `json:"paid_at,omitempty"`

		IsRecurring        bool `json:"is_recurring"`
		RecurringStartDate Date `json:"recurring_start_date"`
		RecurringEndDate   Date `json:"recurring_end_date"`

		Installments       int `json:"installments,omitempty"`
		CurrentInstallment int `json:"current_installment,omitempty"`

		IsFinancing              bool            `json:"is_financing"`
		FinancingTotalAmount     decimal.Decimal `json:"financing_total_amount"`
		FinancingMonthsTotal     int             `json:"financing_months_total,omitempty"`
		FinancingPaidAmount      decimal.Decimal `json:"financing_paid_amount"`
		FinancingDiscountAmount  decimal.Decimal `json:"financing_discount_amount"`
		FinancingMonthsPaid      int             `json:"financing_months_paid"`
		EarlyPaymentDiscountRate decimal.Decimal `json:"early_payment_discount_rate"`

		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// ExpenseInstance is one monthly occurrence of an expense record.
	// Instances that are not Persisted carry a synthetic id derived from
	// their natural key.
	ExpenseInstance struct {
		ID                string          `json:"id"`
		ExpenseID         string          `json:"expense_id"`
		UserID            string          `json:"user_id"`
		Type              InstanceType    `json:"instance_type"`
		InstallmentNumber int             `json:"installment_number,omitempty"`
		Amount            decimal.Decimal `json:"amount"`
		InstanceDate      Date            `json:"instance_date"`
		IsPaid            bool            `json:"is_paid"`
		PaidAt            *time.Time      `json:"paid_at,omitempty"`
		Persisted         bool            `json:"persisted"`
		SettledByPayment  bool            `json:"settled_by_payment,omitempty"`
		CreatedAt         time.Time       `json:"created_at,omitempty"`
	}

	// PaymentTransaction is an immutable ledger entry of a financing payment.
	PaymentTransaction struct {
		ID                string          `json:"id"`
		ExpenseID         string          `json:"expense_id"`
		UserID            string          `json:"user_id"`
		PaymentAmount     decimal.Decimal `json:"payment_amount"`
		DiscountAmount    decimal.Decimal `json:"discount_amount"`
		AutomaticDiscount decimal.Decimal `json:"automatic_discount"`
		PaymentType       PaymentType     `json:"payment_type"`
		IdempotencyKey    string          `json:"idempotency_key,omitempty"`
		Note              string          `json:"note,omitempty"`
		CreatedAt         time.Time       `json:"created_at"`
	}

	// NaturalKey identifies an instance independently of its storage id.
	NaturalKey struct {
		ExpenseID         string
		InstanceDate      Date
		Type              InstanceType
		InstallmentNumber int
	}

	// FinancingTotals are the aggregate fields the amortization flow owns.
	FinancingTotals struct {
		PaidAmount     decimal.Decimal
		DiscountAmount decimal.Decimal
		IsPaid         bool
		PaidAt         *time.Time
	}
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyTitle          = errors.New("empty title")
	ErrEmptyUser           = errors.New("empty user id")
	ErrConflictingKinds    = errors.New("expense can be only one of recurring, financing or installments")
	ErrInvalidInstallments = errors.New("installments must be 0 or at least 2")
	ErrInvalidFinancing    = errors.New("invalid financing terms")
	ErrInvalidRate         = errors.New("discount rate must be between 0 and 100")
	ErrInvalidInstanceType = errors.New("invalid instance type")
	ErrInvalidPaymentType  = errors.New("invalid payment type")
	ErrScheduleLocked      = errors.New("schedule cannot change once instances are stored")

	ErrNotFound          = errors.New("not found")
	ErrDuplicateInstance = errors.New("instance already exists for natural key")
	ErrDuplicatePayment  = errors.New("payment with this idempotency key already recorded")
)

// ValidationError marks input rejected before any mutation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

func (t InstanceType) Valid() bool {
	switch t {
	case InstanceNormal, InstanceRecurring, InstanceFinancing:
		return true
	}
	return false
}

func (t PaymentType) Valid() bool {
	return t == EarlyPayment || t == PartialPayment
}

// Kind classifies the record. Records violating the single-kind invariant
// classify by precedence financing, recurring, installment.
func (e ExpenseRecord) Kind() Kind {
	switch {
	case e.IsFinancing:
		return KindFinancing
	case e.IsRecurring:
		return KindRecurring
	case e.Installments > 1:
		return KindInstallment
	default:
		return KindOneOff
	}
}

// HasConflictingKinds reports whether more than one of recurring,
// financing and installments is set.
func (e ExpenseRecord) HasConflictingKinds() bool {
	n := 0
	if e.IsRecurring {
		n++
	}
	if e.IsFinancing {
		n++
	}
	if e.Installments > 1 {
		n++
	}
	return n > 1
}

// RecurringStart returns the first month a recurring record projects into.
func (e ExpenseRecord) RecurringStart() Date {
	if e.RecurringStartDate.IsZero() {
		return e.DueDate
	}
	return e.RecurringStartDate
}

// MonthlyFinancingAmount is total / months_total, zero when unset.
func (e ExpenseRecord) MonthlyFinancingAmount() decimal.Decimal {
	if e.FinancingMonthsTotal <= 0 {
		return decimal.Zero
	}
	return e.FinancingTotalAmount.Div(decimal.NewFromInt(int64(e.FinancingMonthsTotal)))
}

// FinancingRemaining is total - paid - discount clamped at zero.
func (e ExpenseRecord) FinancingRemaining() decimal.Decimal {
	return ClampZero(e.FinancingTotalAmount.Sub(e.FinancingPaidAmount).Sub(e.FinancingDiscountAmount))
}

// FinancingSettled reports whether paid + discount covers the total.
func (e ExpenseRecord) FinancingSettled() bool {
	if !e.IsFinancing {
		return false
	}
	return e.FinancingPaidAmount.Add(e.FinancingDiscountAmount).GreaterThanOrEqual(e.FinancingTotalAmount)
}

// InstallmentsCoveredByPayments is the number of leading installments
// implicitly paid by the aggregate paid amount, floor(paid / monthly).
func (e ExpenseRecord) InstallmentsCoveredByPayments() int {
	if e.FinancingMonthsTotal <= 0 || !e.FinancingTotalAmount.IsPositive() {
		return 0
	}
	n := e.FinancingPaidAmount.
		Mul(decimal.NewFromInt(int64(e.FinancingMonthsTotal))).
		Div(e.FinancingTotalAmount).
		Floor().
		IntPart()
	if n < 0 {
		return 0
	}
	if n > int64(e.FinancingMonthsTotal) {
		return e.FinancingMonthsTotal
	}
	return int(n)
}

func (e ExpenseRecord) Validate() error { return invalid(e.validate()) }

func (e ExpenseRecord) validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := e.DueDate.Validate(); err != nil {
		return fmt.Errorf("invalid due date: %w", err)
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if e.HasConflictingKinds() {
		return ErrConflictingKinds
	}
	if e.Installments < 0 || e.Installments == 1 {
		return ErrInvalidInstallments
	}
	if e.IsRecurring && !e.RecurringEndDate.IsZero() && e.RecurringEndDate.Before(e.RecurringStart().Time) {
		return errors.New("recurring end date must not be before start date")
	}
	if e.IsFinancing {
		if e.FinancingMonthsTotal < 1 {
			return fmt.Errorf("%w: months total must be at least 1", ErrInvalidFinancing)
		}
		if !e.FinancingTotalAmount.IsPositive() {
			return fmt.Errorf("%w: total amount must be positive", ErrInvalidFinancing)
		}
	}
	if e.FinancingPaidAmount.IsNegative() || e.FinancingDiscountAmount.IsNegative() {
		return fmt.Errorf("%w: negative aggregates", ErrInvalidFinancing)
	}
	if e.EarlyPaymentDiscountRate.IsNegative() || e.EarlyPaymentDiscountRate.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidRate
	}
	return nil
}

func (i ExpenseInstance) Key() NaturalKey {
	return NaturalKey{
		ExpenseID:         i.ExpenseID,
		InstanceDate:      i.InstanceDate,
		Type:              i.Type,
		InstallmentNumber: i.InstallmentNumber,
	}
}

// IsOneOff reports whether toggling this instance targets the record itself.
func (i ExpenseInstance) IsOneOff() bool {
	return i.Type == InstanceNormal && i.InstallmentNumber == 0
}

func (i ExpenseInstance) Validate() error { return invalid(i.validate()) }

func (i ExpenseInstance) validate() error {
	if strings.TrimSpace(i.ExpenseID) == "" {
		return errors.New("instance has no expense id")
	}
	if !i.Type.Valid() {
		return ErrInvalidInstanceType
	}
	if i.InstallmentNumber < 0 {
		return ErrInvalidInstallments
	}
	if err := i.InstanceDate.Validate(); err != nil {
		return fmt.Errorf("invalid instance date: %w", err)
	}
	if i.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.ExpenseID, k.InstanceDate.String(), k.Type, k.InstallmentNumber)
}

// SyntheticID derives a stable id for an unpersisted instance, so the same
// occurrence gets the same id across projections.
func (k NaturalKey) SyntheticID() string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(k.String())).String()
}

func (t PaymentTransaction) Validate() error { return invalid(t.validate()) }

func (t PaymentTransaction) validate() error {
	if strings.TrimSpace(t.ExpenseID) == "" {
		return errors.New("transaction has no expense id")
	}
	if t.PaymentAmount.IsNegative() || t.DiscountAmount.IsNegative() || t.AutomaticDiscount.IsNegative() {
		return ErrInvalidAmount
	}
	if t.AutomaticDiscount.GreaterThan(t.DiscountAmount) {
		return errors.New("automatic discount exceeds total discount")
	}
	if !t.PaymentType.Valid() {
		return ErrInvalidPaymentType
	}
	return nil
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}
