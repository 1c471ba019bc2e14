// Package memory is an in-process storage.Store. Data lives only as long as
// the process; it backs tests and the memory backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

type Store struct {
	mu sync.Mutex
	st *state
}

var (
	_ storage.Store      = (*Store)(nil)
	_ storage.Transactor = (*Store)(nil)
)

func New() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a copy of the data and swaps it in only when fn
// succeeds. The store is locked for the duration.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.st.clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.st = draft
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateExpense(ctx context.Context, e core.ExpenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateExpense(ctx, e)
}

func (s *Store) GetExpense(ctx context.Context, userID, id string) (core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetExpense(ctx, userID, id)
}

func (s *Store) ListExpenses(ctx context.Context, userID string, f storage.ExpenseFilter) ([]core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListExpenses(ctx, userID, f)
}

func (s *Store) UpdateExpense(ctx context.Context, e core.ExpenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateExpense(ctx, e)
}

func (s *Store) DeleteExpense(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteExpense(ctx, userID, id)
}

func (s *Store) SetExpensePaid(ctx context.Context, userID, id string, paid bool, paidAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SetExpensePaid(ctx, userID, id, paid, paidAt)
}

func (s *Store) UpdateFinancingTotals(ctx context.Context, userID, id string, t core.FinancingTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateFinancingTotals(ctx, userID, id, t)
}

func (s *Store) SetFinancingMonthsPaid(ctx context.Context, userID, id string, months int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SetFinancingMonthsPaid(ctx, userID, id, months)
}

func (s *Store) ResetFinancing(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ResetFinancing(ctx, userID, id)
}

func (s *Store) InsertInstances(ctx context.Context, rows []core.ExpenseInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertInstances(ctx, rows)
}

func (s *Store) FindInstance(ctx context.Context, userID string, key core.NaturalKey) (core.ExpenseInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindInstance(ctx, userID, key)
}

func (s *Store) SetInstancePaid(ctx context.Context, userID, id string, paid bool, paidAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SetInstancePaid(ctx, userID, id, paid, paidAt)
}

func (s *Store) ListInstances(ctx context.Context, userID string, f storage.InstanceFilter) ([]core.ExpenseInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListInstances(ctx, userID, f)
}

func (s *Store) CountPaidInstances(ctx context.Context, userID, expenseID string, typ core.InstanceType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CountPaidInstances(ctx, userID, expenseID, typ)
}

func (s *Store) ResetInstances(ctx context.Context, userID, expenseID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ResetInstances(ctx, userID, expenseID)
}

func (s *Store) AppendTransaction(ctx context.Context, t core.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AppendTransaction(ctx, t)
}

func (s *Store) ListTransactions(ctx context.Context, userID, expenseID string) ([]core.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListTransactions(ctx, userID, expenseID)
}

func (s *Store) DeleteTransactions(ctx context.Context, userID, expenseID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteTransactions(ctx, userID, expenseID)
}

// state holds the data without locking. A clone of it is the transaction
// view handed to WithinTx.
type state struct {
	expenses     map[string]core.ExpenseRecord
	instances    map[string]core.ExpenseInstance
	keys         map[core.NaturalKey]string
	transactions []core.PaymentTransaction
}

func newState() *state {
	return &state{
		expenses:  make(map[string]core.ExpenseRecord),
		instances: make(map[string]core.ExpenseInstance),
		keys:      make(map[core.NaturalKey]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.expenses {
		c.expenses[k] = v
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	c.transactions = append([]core.PaymentTransaction(nil), s.transactions...)
	return c
}

func (s *state) WithinTx(_ context.Context, fn func(tx storage.Store) error) error {
	return fn(s)
}

func (s *state) owned(userID, id string) (core.ExpenseRecord, error) {
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.ExpenseRecord{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *state) CreateExpense(_ context.Context, e core.ExpenseRecord) error {
	if _, ok := s.expenses[e.ID]; ok {
		return fmt.Errorf("expense %s already exists", e.ID)
	}
	e.Tags = append([]string(nil), e.Tags...)
	s.expenses[e.ID] = e
	return nil
}

func (s *state) GetExpense(_ context.Context, userID, id string) (core.ExpenseRecord, error) {
	return s.owned(userID, id)
}

func (s *state) ListExpenses(_ context.Context, userID string, f storage.ExpenseFilter) ([]core.ExpenseRecord, error) {
	var out []core.ExpenseRecord
	for _, e := range s.expenses {
		if e.UserID != userID {
			continue
		}
		if f.Kind != "" && e.Kind() != f.Kind {
			continue
		}
		if f.IsPaid != nil && e.IsPaid != *f.IsPaid {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate.Time) {
			return out[i].DueDate.Before(out[j].DueDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) UpdateExpense(_ context.Context, e core.ExpenseRecord) error {
	cur, err := s.owned(e.UserID, e.ID)
	if err != nil {
		return err
	}
	cur.Title = e.Title
	cur.Description = e.Description
	cur.CategoryID = e.CategoryID
	cur.Tags = append([]string(nil), e.Tags...)
	cur.Notes = e.Notes
	cur.Amount = e.Amount
	cur.DueDate = e.DueDate
	cur.IsRecurring = e.IsRecurring
	cur.RecurringStartDate = e.RecurringStartDate
	cur.RecurringEndDate = e.RecurringEndDate
	cur.Installments = e.Installments
	cur.CurrentInstallment = e.CurrentInstallment
	cur.IsFinancing = e.IsFinancing
	cur.FinancingTotalAmount = e.FinancingTotalAmount
	cur.FinancingMonthsTotal = e.FinancingMonthsTotal
	cur.EarlyPaymentDiscountRate = e.EarlyPaymentDiscountRate
	cur.UpdatedAt = e.UpdatedAt
	s.expenses[e.ID] = cur
	return nil
}

func (s *state) DeleteExpense(_ context.Context, userID, id string) error {
	if _, err := s.owned(userID, id); err != nil {
		return err
	}
	delete(s.expenses, id)
	for iid, inst := range s.instances {
		if inst.ExpenseID == id {
			delete(s.keys, inst.Key())
			delete(s.instances, iid)
		}
	}
	kept := s.transactions[:0]
	for _, t := range s.transactions {
		if t.ExpenseID != id {
			kept = append(kept, t)
		}
	}
	s.transactions = kept
	return nil
}

func (s *state) SetExpensePaid(_ context.Context, userID, id string, paid bool, paidAt *time.Time) error {
	e, err := s.owned(userID, id)
	if err != nil {
		return err
	}
	e.IsPaid = paid
	e.PaidAt = paidAt
	e.UpdatedAt = time.Now().UTC()
	s.expenses[id] = e
	return nil
}

func (s *state) UpdateFinancingTotals(_ context.Context, userID, id string, t core.FinancingTotals) error {
	e, err := s.owned(userID, id)
	if err != nil {
		return err
	}
	e.FinancingPaidAmount = t.PaidAmount
	e.FinancingDiscountAmount = t.DiscountAmount
	e.IsPaid = t.IsPaid
	e.PaidAt = t.PaidAt
	e.UpdatedAt = time.Now().UTC()
	s.expenses[id] = e
	return nil
}

func (s *state) SetFinancingMonthsPaid(_ context.Context, userID, id string, months int) error {
	e, err := s.owned(userID, id)
	if err != nil {
		return err
	}
	e.FinancingMonthsPaid = months
	s.expenses[id] = e
	return nil
}

func (s *state) ResetFinancing(_ context.Context, userID, id string) error {
	e, err := s.owned(userID, id)
	if err != nil {
		return err
	}
	e.FinancingPaidAmount = decimal.Zero
	e.FinancingDiscountAmount = decimal.Zero
	e.FinancingMonthsPaid = 0
	e.IsPaid = false
	e.PaidAt = nil
	e.UpdatedAt = time.Now().UTC()
	s.expenses[id] = e
	return nil
}

func (s *state) InsertInstances(_ context.Context, rows []core.ExpenseInstance) error {
	batch := make(map[core.NaturalKey]struct{}, len(rows))
	for _, r := range rows {
		if _, ok := s.expenses[r.ExpenseID]; !ok {
			return fmt.Errorf("instance for expense %s: %w", r.ExpenseID, core.ErrNotFound)
		}
		if _, ok := s.keys[r.Key()]; ok {
			return fmt.Errorf("%s: %w", r.Key(), core.ErrDuplicateInstance)
		}
		if _, ok := batch[r.Key()]; ok {
			return fmt.Errorf("%s: %w", r.Key(), core.ErrDuplicateInstance)
		}
		if _, ok := s.instances[r.ID]; ok {
			return fmt.Errorf("instance %s already exists", r.ID)
		}
		batch[r.Key()] = struct{}{}
	}
	for _, r := range rows {
		r.Persisted = true
		r.SettledByPayment = false
		s.instances[r.ID] = r
		s.keys[r.Key()] = r.ID
	}
	return nil
}

func (s *state) FindInstance(_ context.Context, userID string, key core.NaturalKey) (core.ExpenseInstance, error) {
	id, ok := s.keys[key]
	if !ok {
		return core.ExpenseInstance{}, fmt.Errorf("instance %s: %w", key, core.ErrNotFound)
	}
	inst := s.instances[id]
	if inst.UserID != userID {
		return core.ExpenseInstance{}, fmt.Errorf("instance %s: %w", key, core.ErrNotFound)
	}
	return inst, nil
}

func (s *state) SetInstancePaid(_ context.Context, userID, id string, paid bool, paidAt *time.Time) error {
	inst, ok := s.instances[id]
	if !ok || inst.UserID != userID {
		return fmt.Errorf("instance %s: %w", id, core.ErrNotFound)
	}
	inst.IsPaid = paid
	inst.PaidAt = paidAt
	s.instances[id] = inst
	return nil
}

func (s *state) ListInstances(_ context.Context, userID string, f storage.InstanceFilter) ([]core.ExpenseInstance, error) {
	var out []core.ExpenseInstance
	for _, inst := range s.instances {
		if inst.UserID != userID {
			continue
		}
		if f.ExpenseID != "" && inst.ExpenseID != f.ExpenseID {
			continue
		}
		if !f.From.IsZero() && inst.InstanceDate.Before(f.From.Time) {
			continue
		}
		if !f.To.IsZero() && inst.InstanceDate.After(f.To.Time) {
			continue
		}
		if f.Type != "" && inst.Type != f.Type {
			continue
		}
		if f.IsPaid != nil && inst.IsPaid != *f.IsPaid {
			continue
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.InstanceDate.Equal(b.InstanceDate.Time) {
			return a.InstanceDate.Before(b.InstanceDate.Time)
		}
		if a.ExpenseID != b.ExpenseID {
			return a.ExpenseID < b.ExpenseID
		}
		return a.InstallmentNumber < b.InstallmentNumber
	})
	return out, nil
}

func (s *state) CountPaidInstances(ctx context.Context, userID, expenseID string, typ core.InstanceType) (int, error) {
	rows, err := s.ListInstances(ctx, userID, storage.InstanceFilter{ExpenseID: expenseID, Type: typ, IsPaid: storage.Bool(true)})
	return len(rows), err
}

func (s *state) ResetInstances(_ context.Context, userID, expenseID string) (int, error) {
	n := 0
	for id, inst := range s.instances {
		if inst.ExpenseID != expenseID || inst.UserID != userID {
			continue
		}
		if inst.IsPaid {
			n++
		}
		inst.IsPaid = false
		inst.PaidAt = nil
		s.instances[id] = inst
	}
	return n, nil
}

func (s *state) AppendTransaction(_ context.Context, t core.PaymentTransaction) error {
	if _, ok := s.expenses[t.ExpenseID]; !ok {
		return fmt.Errorf("transaction for expense %s: %w", t.ExpenseID, core.ErrNotFound)
	}
	for _, existing := range s.transactions {
		if existing.ID == t.ID {
			return fmt.Errorf("transaction %s already exists", t.ID)
		}
		if t.IdempotencyKey != "" && existing.ExpenseID == t.ExpenseID && existing.IdempotencyKey == t.IdempotencyKey {
			return fmt.Errorf("key %q: %w", t.IdempotencyKey, core.ErrDuplicatePayment)
		}
	}
	s.transactions = append(s.transactions, t)
	return nil
}

// ListTransactions returns the expense's ledger newest first.
func (s *state) ListTransactions(_ context.Context, userID, expenseID string) ([]core.PaymentTransaction, error) {
	var out []core.PaymentTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.ExpenseID == expenseID && t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *state) DeleteTransactions(_ context.Context, userID, expenseID string) (int, error) {
	kept := s.transactions[:0]
	n := 0
	for _, t := range s.transactions {
		if t.ExpenseID == expenseID && t.UserID == userID {
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.transactions = kept
	return n, nil
}
