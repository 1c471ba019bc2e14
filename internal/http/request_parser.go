// Package http exposes the engine as a JSON API.
//
// This file holds the request side: user resolution, path and query
// parameters, and the JSON bodies accepted by the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
)

const (
	// HeaderUserID names the caller. Authentication happens upstream.
	HeaderUserID = "X-User-ID"
	// HeaderIdempotencyKey deduplicates payment submissions.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

var errNoUser = errors.New("missing " + HeaderUserID + " header")

// badRequestError is a malformed request, as opposed to a domain rule
// violation.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// userID resolves the caller from the X-User-ID header, falling back to the
// configured default user.
func (s *Server) userID(r *http.Request) (string, error) {
	if id := sanitizeInput(r.Header.Get(HeaderUserID)); id != "" {
		return id, nil
	}
	if s.opts.DefaultUserID != "" {
		return s.opts.DefaultUserID, nil
	}
	return "", errNoUser
}

// ParseMonthVar reads the {month} path variable as YYYY-MM.
func ParseMonthVar(r *http.Request) (core.Date, error) {
	raw := mux.Vars(r)["month"]
	month, err := core.ParseMonth(raw)
	if err != nil {
		return core.Date{}, badRequest("%v", err)
	}
	return month, nil
}

// ParseToday reads the optional ?today=YYYY-MM-DD override used to
// classify due dates, defaulting to now.
func ParseToday(r *http.Request, now time.Time) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get("today"))
	if v == "" {
		return core.DateOf(now), nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("invalid today parameter: %v", err)
	}
	return d, nil
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return badRequest("empty request body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest("invalid JSON body: %v", err)
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return nil
}

// expenseRequest is the editable part of an expense record. Financing
// aggregates are never accepted from clients.
type expenseRequest struct {
	Title                    string          `json:"title"`
	Description              string          `json:"description"`
	CategoryID               string          `json:"category_id"`
	Tags                     []string        `json:"tags"`
	Notes                    string          `json:"notes"`
	Amount                   decimal.Decimal `json:"amount"`
	DueDate                  core.Date       `json:"due_date"`
	IsRecurring              bool            `json:"is_recurring"`
	RecurringStartDate       core.Date       `json:"recurring_start_date"`
	RecurringEndDate         core.Date       `json:"recurring_end_date"`
	Installments             int             `json:"installments"`
	CurrentInstallment       int             `json:"current_installment"`
	IsFinancing              bool            `json:"is_financing"`
	FinancingTotalAmount     decimal.Decimal `json:"financing_total_amount"`
	FinancingMonthsTotal     int             `json:"financing_months_total"`
	EarlyPaymentDiscountRate decimal.Decimal `json:"early_payment_discount_rate"`
}

func (req expenseRequest) record(userID, id string) core.ExpenseRecord {
	tags := make([]string, 0, len(req.Tags))
	for _, t := range req.Tags {
		if t = sanitizeInput(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		tags = nil
	}
	return core.ExpenseRecord{
		ID:                       id,
		UserID:                   userID,
		Title:                    sanitizeInput(req.Title),
		Description:              sanitizeInput(req.Description),
		CategoryID:               sanitizeInput(req.CategoryID),
		Tags:                     tags,
		Notes:                    sanitizeInput(req.Notes),
		Amount:                   req.Amount,
		DueDate:                  req.DueDate,
		IsRecurring:              req.IsRecurring,
		RecurringStartDate:       req.RecurringStartDate,
		RecurringEndDate:         req.RecurringEndDate,
		Installments:             req.Installments,
		CurrentInstallment:       req.CurrentInstallment,
		IsFinancing:              req.IsFinancing,
		FinancingTotalAmount:     req.FinancingTotalAmount,
		FinancingMonthsTotal:     req.FinancingMonthsTotal,
		EarlyPaymentDiscountRate: req.EarlyPaymentDiscountRate,
	}
}

// paymentRequest is the body of POST /api/expenses/{id}/payments. Payoff
// ignores amount and discount and settles the quoted balance.
type paymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	CustomDiscount decimal.Decimal `json:"custom_discount"`
	Note           string          `json:"note"`
	Payoff         bool            `json:"payoff"`
}

func (req paymentRequest) payment(idempotencyKey string) financing.Payment {
	return financing.Payment{
		Amount:         req.Amount,
		CustomDiscount: req.CustomDiscount,
		Note:           sanitizeInput(req.Note),
		IdempotencyKey: idempotencyKey,
	}
}

// toggleRequest identifies an instance by its natural key. Amount and
// IsPaid, the state the client displayed, are only used when the instance
// has to be materialized.
type toggleRequest struct {
	ExpenseID         string            `json:"expense_id"`
	Type              core.InstanceType `json:"instance_type"`
	InstanceDate      core.Date         `json:"instance_date"`
	InstallmentNumber int               `json:"installment_number"`
	Amount            decimal.Decimal   `json:"amount"`
	IsPaid            bool              `json:"is_paid"`
}

func (req toggleRequest) instance() core.ExpenseInstance {
	return core.ExpenseInstance{
		ExpenseID:         sanitizeInput(req.ExpenseID),
		Type:              req.Type,
		InstanceDate:      req.InstanceDate,
		InstallmentNumber: req.InstallmentNumber,
		Amount:            req.Amount,
		IsPaid:            req.IsPaid,
	}
}

// idempotencyKey reads the Idempotency-Key header, bounded to 128 chars.
func idempotencyKey(r *http.Request) (string, error) {
	key := sanitizeInput(r.Header.Get(HeaderIdempotencyKey))
	if len(key) > 128 {
		return "", badRequest("%s too long (max 128 characters)", HeaderIdempotencyKey)
	}
	return key, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s))
}
