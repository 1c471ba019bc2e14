package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/services"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func paidMark(paid bool) string {
	if paid {
		return "yes"
	}
	return "no"
}

func printMonth(w io.Writer, view services.MonthView) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "DATE\tTITLE\tKIND\tAMOUNT\tSTATUS\tINSTALLMENT\tEXPENSE\n")
	for _, inst := range view.Instances {
		installment := ""
		if inst.InstallmentNumber > 0 {
			installment = fmt.Sprintf("#%d", inst.InstallmentNumber)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.InstanceDate, inst.Title, inst.Kind, inst.Amount.StringFixed(2),
			inst.Status, installment, inst.ExpenseID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d instances in %s\n", len(view.Instances), view.Month)
	return err
}

func printSummary(w io.Writer, s core.MonthSummary) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Month\t%s\n", s.Month)
	fmt.Fprintf(tw, "Total\t%s\n", s.Total.StringFixed(2))
	fmt.Fprintf(tw, "Paid\t%s\t(%d)\n", s.PaidTotal.StringFixed(2), s.PaidCount)
	fmt.Fprintf(tw, "Pending\t%s\t(%d)\n", s.PendingTotal.StringFixed(2), s.PendingCount)
	fmt.Fprintf(tw, "Overdue\t%s\t(%d)\n", s.OverdueTotal.StringFixed(2), s.OverdueCount)
	fmt.Fprintf(tw, "Due soon\t\t(%d)\n", s.DueSoonCount)

	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(tw, "  %s\t%s\n", t, s.ByType[core.InstanceType(t)].StringFixed(2))
	}
	if s.NextDue != nil {
		fmt.Fprintf(tw, "Next due\t%s\t%s\n", s.NextDue.InstanceDate, s.NextDue.Amount.StringFixed(2))
	}
	return tw.Flush()
}

func printInstances(w io.Writer, rows []core.ExpenseInstance) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "#\tDATE\tAMOUNT\tTYPE\tPAID\tID\n")
	for _, inst := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			inst.InstallmentNumber, inst.InstanceDate, inst.Amount.StringFixed(2),
			inst.Type, paidMark(inst.IsPaid), inst.ID)
	}
	return tw.Flush()
}

func printPayment(w io.Writer, r financing.PaymentResult) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Transaction\t%s\n", r.Transaction.ID)
	fmt.Fprintf(tw, "Type\t%s\n", r.Transaction.PaymentType)
	fmt.Fprintf(tw, "Payment\t%s\n", r.Transaction.PaymentAmount.StringFixed(2))
	fmt.Fprintf(tw, "Discount\t%s\n", r.Transaction.DiscountAmount.StringFixed(2))
	if r.AutomaticDiscount.IsPositive() {
		fmt.Fprintf(tw, "Automatic discount\t%s\n", r.AutomaticDiscount.StringFixed(2))
	}
	fmt.Fprintf(tw, "Remaining\t%s -> %s\n", r.RemainingBefore.StringFixed(2), r.RemainingAfter.StringFixed(2))
	fmt.Fprintf(tw, "Months paid\t%d/%d\n", r.Expense.FinancingMonthsPaid, r.Expense.FinancingMonthsTotal)
	fmt.Fprintf(tw, "Settled\t%s\n", paidMark(r.Expense.IsPaid))
	return tw.Flush()
}

func printLedger(w io.Writer, history []core.PaymentTransaction) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "CREATED\tTYPE\tPAYMENT\tDISCOUNT\tAUTO\tNOTE\n")
	for _, tx := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.CreatedAt.Format("2006-01-02 15:04"), tx.PaymentType,
			tx.PaymentAmount.StringFixed(2), tx.DiscountAmount.StringFixed(2),
			tx.AutomaticDiscount.StringFixed(2), tx.Note)
	}
	return tw.Flush()
}

func printQuotes(w io.Writer, byMonths, payoff financing.Quote) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "\tREMAINING\tDISCOUNT\tFINAL\n")
	for _, row := range []struct {
		name string
		q    financing.Quote
	}{{"by months", byMonths}, {"payoff", payoff}} {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.name,
			row.q.RemainingAmount.StringFixed(2), row.q.Discount.StringFixed(2), row.q.FinalAmount.StringFixed(2))
	}
	return tw.Flush()
}
