package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/renezit0/despesa-agil-93/internal/backend"
	"github.com/renezit0/despesa-agil-93/internal/cli"
	"github.com/renezit0/despesa-agil-93/internal/config"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/log"
)

var version = "0.1.0"

// env is what every subcommand runs against.
type env struct {
	svc     backend.Services
	user    string
	out     io.Writer
	json    bool
	today   core.Date
	cleanup func() error
}

// Opener builds the services for one invocation.
type Opener func(ctx context.Context, logger *log.Logger) (backend.Services, func() error, error)

// openBackend opens the configured store. Domain events are published when
// AMQP_URL is set, so payments made here reach the ledger mirror too.
func openBackend(ctx context.Context, logger *log.Logger) (backend.Services, func() error, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return backend.Services{}, nil, err
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return backend.Services{}, nil, err
	}
	b, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return backend.Services{}, nil, err
	}
	return b.Services(logger), b.Cleanup, nil
}

func newRootCmd(open Opener) *cobra.Command {
	e := &env{}
	var (
		today    string
		logLevel string
	)

	root := &cobra.Command{
		Use:   "despesactl",
		Short: "Inspect and operate the expense calendar from the command line",
		Long: `despesactl projects expense records into monthly instances, runs
financing payments and toggles paid state against the configured backend.

The backend is read from the same environment as the server:
  DATA_BACKEND    - memory or sqlite (default memory)
  SQLITE_DB_PATH  - database file for the sqlite backend
  AMQP_URL        - optional, publishes domain events
  DEFAULT_USER_ID - user when --user is not given`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if e.user == "" {
				e.user = os.Getenv("DEFAULT_USER_ID")
			}
			e.user = strings.TrimSpace(e.user)
			if e.user == "" {
				return fmt.Errorf("no user: pass --user or set DEFAULT_USER_ID")
			}

			e.today = core.DateOf(time.Now())
			if today != "" {
				d, err := core.ParseDate(today)
				if err != nil {
					return fmt.Errorf("invalid --today: %w", err)
				}
				e.today = d
			}

			logger := cli.SetupLoggerTo(cmd.ErrOrStderr(), logLevel, log.ComponentCLI)
			svc, cleanup, err := open(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("open backend: %w", err)
			}
			e.svc = svc
			e.cleanup = cleanup
			e.out = cmd.OutOrStdout()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.cleanup != nil {
				return e.cleanup()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&e.user, "user", "u", "", "User owning the expenses (default $DEFAULT_USER_ID)")
	flags.BoolVar(&e.json, "json", false, "Print JSON instead of a table")
	flags.StringVar(&today, "today", "", "Reference date for due status (YYYY-MM-DD, default: today)")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	root.AddCommand(
		newProjectCmd(e),
		newSummaryCmd(e),
		newScheduleCmd(e),
		newPayCmd(e),
		newResetCmd(e),
		newLedgerCmd(e),
		newQuoteCmd(e),
		newReconcileCmd(e),
		newToggleCmd(e),
	)
	return root
}
