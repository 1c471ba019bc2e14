package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestAddMonthsClampsDay(t *testing.T) {
	cases := []struct {
		name string
		d    Date
		n    int
		want Date
	}{
		{"same day", NewDate(2024, 1, 15), 2, NewDate(2024, 3, 15)},
		{"leap february", NewDate(2024, 1, 31), 1, NewDate(2024, 2, 29)},
		{"non leap february", NewDate(2023, 1, 31), 1, NewDate(2023, 2, 28)},
		{"year wrap", NewDate(2024, 11, 30), 3, NewDate(2025, 2, 28)},
		{"zero", NewDate(2024, 5, 31), 0, NewDate(2024, 5, 31)},
		{"backwards", NewDate(2024, 3, 31), -1, NewDate(2024, 2, 29)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.AddMonths(tc.n); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMonthsBetween(t *testing.T) {
	cases := []struct {
		from, to Date
		want     int
	}{
		{NewDate(2024, 1, 15), NewDate(2024, 1, 1), 0},
		{NewDate(2024, 1, 15), NewDate(2024, 3, 1), 2},
		{NewDate(2024, 11, 1), NewDate(2025, 2, 1), 3},
		{NewDate(2024, 3, 1), NewDate(2024, 1, 31), -2},
	}
	for _, tc := range cases {
		if got := MonthsBetween(tc.from, tc.to); got != tc.want {
			t.Errorf("MonthsBetween(%s, %s) = %d, want %d", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestInMonthAndBounds(t *testing.T) {
	due := NewDate(2024, 1, 31)
	if got := due.InMonth(NewDate(2024, 4, 1)); got != NewDate(2024, 4, 30) {
		t.Fatalf("expected 2024-04-30, got %s", got)
	}
	m := NewDate(2024, 2, 10)
	if m.MonthStart() != NewDate(2024, 2, 1) || m.MonthEnd() != NewDate(2024, 2, 29) {
		t.Fatalf("unexpected bounds %s %s", m.MonthStart(), m.MonthEnd())
	}
	if !m.SameMonth(NewDate(2024, 2, 29)) || m.SameMonth(NewDate(2025, 2, 10)) {
		t.Fatal("SameMonth mismatch")
	}
}

func TestParseDateAndMonth(t *testing.T) {
	d, err := ParseDate("2024-03-15")
	if err != nil || d != NewDate(2024, 3, 15) {
		t.Fatalf("got %s, %v", d, err)
	}
	d, err = ParseDate("2024-03-15T22:10:00Z")
	if err != nil || d != NewDate(2024, 3, 15) {
		t.Fatalf("timestamp: got %s, %v", d, err)
	}
	if _, err := ParseDate("15/03/2024"); err == nil {
		t.Fatal("expected error")
	}
	m, err := ParseMonth("2024-02")
	if err != nil || m != NewDate(2024, 2, 1) {
		t.Fatalf("month: got %s, %v", m, err)
	}
}

func TestDateJSON(t *testing.T) {
	var v struct {
		D Date `json:"d"`
		E Date `json:"e"`
	}
	if err := json.Unmarshal([]byte(`{"d":"2024-01-15","e":null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.D != NewDate(2024, 1, 15) || !v.E.IsZero() {
		t.Fatalf("unexpected %+v", v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2024-01-15","e":null}` {
		t.Fatalf("unexpected json %s", b)
	}
}
