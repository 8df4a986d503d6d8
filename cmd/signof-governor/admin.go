package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/multivitaminds/signof-sub014/internal/adapter/postgres"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate()
	case "rollback":
		return runAdminRollback(args[1:])
	case "version":
		return runAdminVersion()
	case "set-budget":
		return runAdminSetBudget(args[1:])
	case "identities":
		return runAdminIdentities(args[1:])
	case "breakers":
		return runAdminBreakers()
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: signof-governor admin <command> [options]

Commands:
  migrate      Apply pending database migrations
  rollback     Roll back the last migrations
  version      Print the current migration version
  set-budget   Configure an agent budget (resets its counters)
  identities   List a tenant's agent identities
  breakers     List persisted circuit breaker states
  help         Show this help message

Examples:
  signof-governor admin migrate
  signof-governor admin rollback --steps 2
  signof-governor admin set-budget --tenant acme --agent acme:assistant --max-cost 25
  signof-governor admin identities --tenant acme
`)
}

func adminDSN() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return "", errors.New("admin commands need postgres.dsn or DATABASE_URL")
	}
	return cfg.Postgres.DSN, nil
}

type adminDeps struct {
	cfg   *config.Config
	store *postgres.Store
}

func loadAdminDeps(ctx context.Context) (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return nil, nil, errors.New("admin commands need postgres.dsn or DATABASE_URL")
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return &adminDeps{cfg: cfg, store: postgres.NewStore(pool)}, pool.Close, nil
}

func runAdminMigrate() error {
	dsn, err := adminDSN()
	if err != nil {
		return err
	}
	if err := postgres.RunMigrations(context.Background(), dsn); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Migrations applied")
	return nil
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}
	dsn, err := adminDSN()
	if err != nil {
		return err
	}
	if err := postgres.RollbackMigrations(context.Background(), dsn, *steps); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s)\n", *steps)
	return nil
}

func runAdminVersion() error {
	dsn, err := adminDSN()
	if err != nil {
		return err
	}
	v, err := postgres.MigrationVersion(context.Background(), dsn)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runAdminSetBudget(args []string) error {
	fs := flag.NewFlagSet("set-budget", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id (required)")
	agentID := fs.String("agent", "", "agent budget key (required)")
	maxTokens := fs.Int64("max-tokens", 0, "token cap, 0 for none")
	maxCost := fs.Float64("max-cost", 0, "cost cap in USD, 0 for none")
	warn := fs.Float64("warn-pct", 0, "warning threshold percent, 0 for the default")
	pause := fs.Float64("pause-pct", 0, "pause threshold percent, 0 for the default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" || *agentID == "" {
		return fmt.Errorf("--tenant and --agent are required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	budgets := service.NewBudgetService(deps.store, nil, deps.cfg.Budget)
	b, err := budgets.SetBudget(ctx, budget.SetRequest{
		AgentID:             *agentID,
		TenantID:            *tenantID,
		MaxTokens:           *maxTokens,
		MaxCostUSD:          *maxCost,
		WarningThresholdPct: *warn,
		PauseThresholdPct:   *pause,
	})
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Budget set for %s (tokens %d, cost $%.2f, warn %.0f%%, pause %.0f%%)\n",
		b.AgentID, b.MaxTokens, b.MaxCostUSD, b.WarningThresholdPct, b.PauseThresholdPct)
	return nil
}

func runAdminIdentities(args []string) error {
	fs := flag.NewFlagSet("identities", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := deps.store.ListIdentities(ctx, *tenantID)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	return printOutput(os.Stdout, ids, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tTYPE\tNAME\tREPUTATION\tSUCCESS\tVIOLATIONS\tRETIRED")
		for i := range ids {
			id := &ids[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%.2f\t%d\t%v\n",
				id.ID, id.AgentType, id.DisplayName, id.ReputationScore, id.SuccessRate, id.ContractViolations, id.Retired())
		}
	})
}

func runAdminBreakers() error {
	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	snaps, err := deps.store.ListBreakers(ctx)
	if err != nil {
		return fmt.Errorf("list breakers: %w", err)
	}
	return printOutput(os.Stdout, snaps, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "CONNECTOR\tSTATE\tFAILURES\tTHRESHOLD\tNEXT RETRY")
		for _, s := range snaps {
			next := "-"
			if s.NextRetryAt != nil {
				next = s.NextRetryAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", s.ConnectorID, s.State, s.FailureCount, s.FailureThreshold, next)
		}
	})
}

// printOutput renders a table on a terminal and JSON otherwise, so the
// output can be piped into jq.
func printOutput(out *os.File, v any, table func(w *tabwriter.Writer)) error {
	if !term.IsTerminal(int(out.Fd())) { //nolint:gosec // fd fits in int
		return writeJSONTo(out, v)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	table(w)
	return w.Flush()
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
