package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ammonsd/activitytracking/internal/config"
	"github.com/ammonsd/activitytracking/internal/migrate"
)

func main() {
	var (
		cfgFile string
		dsn     string
		timeout time.Duration
	)

	withManager := func(cmd *cobra.Command, fn func(context.Context, *migrate.Manager) error) error {
		_ = godotenv.Load()
		if dsn == "" {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dsn = cfg.DB.DSN
		}
		if dsn == "" {
			return fmt.Errorf("missing DSN: provide --dsn or %s_DB_DSN", config.EnvPrefix)
		}
		mgr, err := migrate.NewManager(dsn)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return fn(ctx, mgr)
	}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the activitytracking schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "optional YAML config file")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (overrides config)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(cmd, func(ctx context.Context, m *migrate.Manager) error {
					if err := m.Up(ctx); err != nil {
						return err
					}
					fmt.Println("migrations applied")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(cmd, func(ctx context.Context, m *migrate.Manager) error {
					if err := m.Down(ctx); err != nil {
						return err
					}
					fmt.Println("rolled back one migration")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(cmd, func(ctx context.Context, m *migrate.Manager) error {
					st, err := m.Status(ctx)
					if err != nil {
						return err
					}
					if !st.Applied {
						fmt.Println("no migrations applied")
						return nil
					}
					fmt.Printf("version %d dirty=%t\n", st.Version, st.Dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List embedded migration files",
			RunE: func(cmd *cobra.Command, _ []string) error {
				files, err := migrate.Files()
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Println(f)
				}
				return nil
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
