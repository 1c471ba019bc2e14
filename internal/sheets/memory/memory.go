package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	ports "github.com/renezit0/despesa-agil-93/internal/sheets"
)

// Store keeps ledger rows in process, for tests and deployments without a
// spreadsheet.
type Store struct {
	mu   sync.Mutex
	rows []ports.Row
}

var (
	_ ports.LedgerWriter = (*Store)(nil)
	_ ports.LedgerReader = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, r ports.Row) (string, error) {
	if strings.TrimSpace(r.ExpenseID) == "" {
		return "", errors.New("row has no expense id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the stored rows.
func (s *Store) Rows(_ context.Context) ([]ports.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Row(nil), s.rows...), nil
}
