// Command driftsync detects schema drift between a live database and a
// declared TOML model registry, and repairs it under a cross-process lock.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"driftsync/internal/core"
	_ "driftsync/internal/ddl/mysql"
	_ "driftsync/internal/ddl/postgres"
	_ "driftsync/internal/ddl/sqlite"
	"driftsync/internal/engine"
	_ "driftsync/internal/introspect/mysql"
	_ "driftsync/internal/introspect/postgres"
	_ "driftsync/internal/introspect/sqlite"
	"driftsync/internal/output"
	"driftsync/internal/registry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if core.IsRecoverable(err) {
			// Another holder is converging the schema, or the operator must
			// confirm; neither is a crash.
			fmt.Fprintf(os.Stderr, "driftsync: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "driftsync: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DRIFTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var configFile string
	rootCmd := &cobra.Command{
		Use:           "driftsync",
		Short:         "Schema drift detection and repair",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config %s: %w", configFile, err)
				}
			}
			return setupLogging(v.GetString("log-level"))
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (TOML/YAML/JSON)")
	pf.String("dsn", "", "Database connection string (required)")
	pf.String("dialect", "", "Database dialect: mysql, postgresql, or sqlite")
	pf.StringP("model", "m", "driftsync.toml", "Path to the TOML model registry")
	pf.StringP("format", "f", "text", "Output format: text or json")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newPlanCmd(v))
	rootCmd.AddCommand(newApplyCmd(v))
	rootCmd.AddCommand(newStatusCmd(v))
	rootCmd.AddCommand(newHistoryCmd(v))
	rootCmd.AddCommand(newRollbackCmd(v))
	return rootCmd
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// buildEngine opens the database and wires the engine from resolved settings.
// The returned close func also closes the connection.
func buildEngine(v *viper.Viper) (*engine.Engine, func(), error) {
	dsn := v.GetString("dsn")
	if dsn == "" {
		return nil, nil, fmt.Errorf("--dsn is required (or DRIFTSYNC_DSN)")
	}

	reg, err := registry.ParseFile(v.GetString("model"))
	if err != nil {
		return nil, nil, err
	}

	dialect := core.Dialect(strings.ToLower(v.GetString("dialect")))
	if dialect == "" {
		dialect = reg.Dialect
	}
	if dialect == "" {
		return nil, nil, fmt.Errorf("--dialect is required when the model registry declares none")
	}

	db, err := sql.Open(driverFor(dialect), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	cfg := engine.Config{
		Dialect:          dialect,
		DSN:              dsn,
		DatabasePath:     dsn,
		LockWait:         v.GetDuration("lock-wait"),
		ForceDestructive: v.GetBool("force-destructive"),
		SnapshotTTL:      v.GetDuration("snapshot-ttl"),
	}
	eng, err := engine.New(cfg, db, reg, logrus.NewEntry(logrus.StandardLogger()))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return eng, func() { db.Close() }, nil
}

func driverFor(d core.Dialect) string {
	switch d {
	case core.DialectPostgreSQL:
		return "pgx"
	case core.DialectSQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

func newPlanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the migration plan without executing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, closeFn, err := buildEngine(v)
			if err != nil {
				return err
			}
			defer closeFn()

			plan, err := eng.Plan(cmd.Context())
			if err != nil {
				return err
			}
			return printPlan(v, plan)
		},
	}
	cmd.Flags().Duration("snapshot-ttl", 0, "Cache live snapshots for this long")
	return cmd
}

func newApplyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Detect drift and apply the migration plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, closeFn, err := buildEngine(v)
			if err != nil {
				return err
			}
			defer closeFn()

			if !v.GetBool("yes") {
				eng.SetConfirm(confirmOnTerminal)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
			defer cancel()

			if v.GetBool("dry-run") {
				plan, err := eng.Plan(ctx)
				if err != nil {
					return err
				}
				plan.DryRun = true
				return printPlan(v, plan)
			}

			result, err := eng.Apply(ctx)
			if err != nil {
				var lockErr *core.LockTimeoutError
				if errors.As(err, &lockErr) && v.GetBool("skip-on-contention") {
					fmt.Fprintf(os.Stderr, "driftsync: %v\n", err)
					return nil
				}
				return err
			}

			if !result.Applied {
				fmt.Printf("Nothing to apply (%s).\n", result.Skipped)
				return nil
			}
			fmt.Printf("Applied plan %s (%d operations, risk %s).\n",
				result.Plan.Version, len(result.Plan.Operations), result.Plan.Risk)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "Show the plan that would run without executing it")
	cmd.Flags().Bool("force-destructive", false, "Apply destructive operations without confirmation")
	cmd.Flags().BoolP("yes", "y", false, "Never prompt; refuse destructive plans unless forced")
	cmd.Flags().Duration("lock-wait", 0, "How long to wait for the migration lock (default: fail fast)")
	cmd.Flags().Bool("skip-on-contention", false, "Exit 0 when another process holds the lock")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Overall apply timeout")
	return cmd
}

func confirmOnTerminal(plan *core.MigrationPlan) (bool, error) {
	fmt.Printf("Plan %s contains %d destructive operation(s):\n",
		plan.Version, len(plan.DestructiveOperations()))
	for _, po := range plan.DestructiveOperations() {
		fmt.Printf("  - %s\n", po.Op.String())
	}
	fmt.Print("Proceed? [y/N]: ")

	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false, nil
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the live schema matches the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, closeFn, err := buildEngine(v)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := eng.Status(cmd.Context())
			if err != nil {
				return err
			}
			if err := printStatus(v, st); err != nil {
				return err
			}
			if v.GetBool("check") && !st.InSync {
				os.Exit(3)
			}
			return nil
		},
	}
	cmd.Flags().Bool("check", false, "Exit non-zero when drift exists")
	cmd.Flags().Duration("snapshot-ttl", 0, "Cache live snapshots for this long")
	return cmd
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List applied migrations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, closeFn, err := buildEngine(v)
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := eng.History().List(cmd.Context(), v.GetInt("limit"))
			if err != nil {
				return err
			}
			formatter, err := output.NewFormatter(v.GetString("format"))
			if err != nil {
				return err
			}
			s, err := formatter.FormatHistory(records)
			if err != nil {
				return err
			}
			fmt.Print(s)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum rows to show (0 for all)")
	return cmd
}

func newRollbackCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback [version]",
		Short: "Undo an applied migration using its recorded rollback SQL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine(v)
			if err != nil {
				return err
			}
			defer closeFn()

			version := ""
			if len(args) == 1 {
				version = args[0]
			}
			rec, err := eng.Rollback(cmd.Context(), version)
			if err != nil {
				return err
			}
			fmt.Printf("Rolled back migration %s (%s).\n", rec.Version, rec.Description)
			return nil
		},
	}
	cmd.Flags().Duration("lock-wait", 0, "How long to wait for the migration lock (default: fail fast)")
	return cmd
}

func printPlan(v *viper.Viper, plan *core.MigrationPlan) error {
	formatter, err := output.NewFormatter(v.GetString("format"))
	if err != nil {
		return err
	}
	s, err := formatter.FormatPlan(plan)
	if err != nil {
		return err
	}
	fmt.Print(s)
	return nil
}

func printStatus(v *viper.Viper, st *engine.Status) error {
	if strings.EqualFold(v.GetString("format"), string(output.FormatJSON)) {
		return printJSON(st)
	}
	if st.InSync {
		fmt.Printf("Schema is in sync (%s, snapshot %s).\n", st.Dialect, st.SnapshotHash[:12])
	} else {
		fmt.Printf("Drift detected: %d pending operation(s), risk %s, plan %s.\n",
			st.PendingOps, st.PendingRisk, st.PlanVersion)
	}
	if st.LastApplied != nil {
		fmt.Printf("Last migration: %s (%s) at %s.\n",
			st.LastApplied.Version, st.LastApplied.Status, st.LastApplied.AppliedAt.Format(time.RFC3339))
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
