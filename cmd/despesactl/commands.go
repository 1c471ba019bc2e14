package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
)

func monthArg(args []string, e *env) (core.Date, error) {
	if len(args) == 0 {
		return e.today.MonthStart(), nil
	}
	m, err := core.ParseMonth(args[0])
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid month %q, use YYYY-MM: %w", args[0], err)
	}
	return m, nil
}

func newProjectCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "project [YYYY-MM]",
		Short: "List the instances of a month with their due status",
		Example: `  # Current month
  despesactl project --user alice

  # A specific month as seen on a given day
  despesactl project 2024-03 --today 2024-03-10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args, e)
			if err != nil {
				return err
			}
			view, err := e.svc.Calendar.Month(cmd.Context(), e.user, month, e.today)
			if err != nil {
				return err
			}
			if e.json {
				return printJSON(e.out, view)
			}
			return printMonth(e.out, view)
		},
	}
}

func newSummaryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [YYYY-MM]",
		Short: "Show paid, pending and overdue totals of a month",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args, e)
			if err != nil {
				return err
			}
			summary, err := e.svc.Calendar.Summary(cmd.Context(), e.user, month, e.today)
			if err != nil {
				return err
			}
			if e.json {
				return printJSON(e.out, summary)
			}
			return printSummary(e.out, summary)
		},
	}
}

func newScheduleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule EXPENSE_ID",
		Short: "List every installment or financing month of an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := e.svc.Calendar.Schedule(cmd.Context(), e.user, args[0])
			if err != nil {
				return err
			}
			if e.json {
				return printJSON(e.out, rows)
			}
			return printInstances(e.out, rows)
		},
	}
}

func newPayCmd(e *env) *cobra.Command {
	var (
		amount   string
		discount string
		note     string
		key      string
		payoff   bool
	)
	cmd := &cobra.Command{
		Use:   "pay EXPENSE_ID",
		Short: "Apply a payment to a financing",
		Long: `Apply a partial payment to a financing, or settle the remaining balance
with --payoff using the early payment discount rate of the record.

Every payment carries an idempotency key; a repeated key is rejected.`,
		Example: `  despesactl pay 7c9e... --amount 250.00
  despesactl pay 7c9e... --amount 900 --discount 100 --note "bank promo"
  despesactl pay 7c9e... --payoff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = uuid.NewString()
			}
			var (
				result financing.PaymentResult
				err    error
			)
			if payoff {
				if amount != "" || discount != "" {
					return fmt.Errorf("--payoff computes the amount; do not pass --amount or --discount")
				}
				result, err = e.svc.Financing.PayOff(cmd.Context(), e.user, args[0], note, key)
			} else {
				p := financing.Payment{Note: note, IdempotencyKey: key, CustomDiscount: decimal.Zero}
				if p.Amount, err = core.ParseAmount(amount); err != nil {
					return fmt.Errorf("invalid --amount: %w", err)
				}
				if discount != "" {
					if p.CustomDiscount, err = core.ParseAmount(discount); err != nil {
						return fmt.Errorf("invalid --discount: %w", err)
					}
				}
				result, err = e.svc.Financing.ApplyPayment(cmd.Context(), e.user, args[0], p)
			}
			if err != nil {
				return err
			}
			if e.json {
				return printJSON(e.out, result)
			}
			return printPayment(e.out, result)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Payment amount")
	cmd.Flags().StringVar(&discount, "discount", "", "Discount granted on top of the amount")
	cmd.Flags().StringVar(&note, "note", "", "Free text stored in the ledger")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key (default: random)")
	cmd.Flags().BoolVar(&payoff, "payoff", false, "Settle the remaining balance with the early payment discount")
	return cmd
}

func newResetCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset EXPENSE_ID",
		Short: "Delete every payment of a financing and zero its totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset removes the payment history; pass --yes to confirm")
			}
			if err := e.svc.Financing.ResetAllPayments(cmd.Context(), e.user, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "payments of %s reset\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

func newLedgerCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger EXPENSE_ID",
		Short: "List the payment transactions of a financing, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := e.svc.Financing.History(cmd.Context(), e.user, args[0])
			if err != nil {
				return err
			}
			if e.json {
				return printJSON(e.out, history)
			}
			return printLedger(e.out, history)
		},
	}
}

func newQuoteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "quote EXPENSE_ID",
		Short: "Preview the early payoff discount of a financing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byMonths, payoff, err := e.svc.Financing.Quote(cmd.Context(), e.user, args[0])
			if err != nil {
				return err
			}
			if e.json {
				return printJSON(e.out, map[string]financing.Quote{"by_months": byMonths, "payoff": payoff})
			}
			return printQuotes(e.out, byMonths, payoff)
		},
	}
}

func newReconcileCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile EXPENSE_ID",
		Short: "Compare the ledger sums with the financing totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := e.svc.Financing.Reconcile(cmd.Context(), e.user, args[0])
			if err != nil {
				return err
			}
			if e.json {
				if err := printJSON(e.out, rec); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(e.out, "paid drift %s, discount drift %s\n", rec.PaidDrift.StringFixed(2), rec.DiscountDrift.StringFixed(2))
			}
			if !rec.Consistent {
				return fmt.Errorf("ledger of %s is not consistent with the record", args[0])
			}
			return nil
		},
	}
}

func newToggleCmd(e *env) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "toggle EXPENSE_ID",
		Short: "Flip the paid state of one instance",
		Long: `Flip the paid state of the instance of EXPENSE_ID falling on --date.
The instance is looked up in the projection of that month, so projected
recurring and financing instances are materialized on their first toggle.`,
		Example: `  despesactl toggle 7c9e... --date 2024-03-05`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := core.ParseDate(date)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			instances, _, err := e.svc.Calendar.Instances(cmd.Context(), e.user, on.MonthStart())
			if err != nil {
				return err
			}
			for _, inst := range instances {
				if inst.ExpenseID != args[0] || !inst.InstanceDate.Equal(on.Time) {
					continue
				}
				out, err := e.svc.Mutator.TogglePaid(cmd.Context(), e.user, inst)
				if err != nil {
					return err
				}
				if e.json {
					return printJSON(e.out, out)
				}
				return printInstances(e.out, []core.ExpenseInstance{out})
			}
			return fmt.Errorf("no instance of %s on %s: %w", args[0], on, core.ErrNotFound)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Instance date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
