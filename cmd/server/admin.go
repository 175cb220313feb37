package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/ledger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/middleware"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/repository"
)

func newMigrateCommand(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("the memory store has no schema to migrate")
			}
			defer db.Close()

			if err := repository.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Infow("Schema applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func newAuditCommand(load loadFunc) *cobra.Command {
	var portfolio string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay a portfolio's transaction log and compare it with stored state",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(portfolio)
			if err != nil {
				return fmt.Errorf("invalid --portfolio: %w", err)
			}

			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("audit needs a persistent store")
			}
			defer db.Close()

			// auditing never prices anything, so no quote source is needed
			l := ledger.New(newStore(db), nil, ledger.Config{
				StartingBalance: cfg.StartingBalance(),
				Currency:        cfg.Ledger.Currency,
				LockTimeout:     cfg.Ledger.LockTimeout,
				Logger:          log,
			})

			report, err := l.Audit(cmd.Context(), id)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Consistent {
				return fmt.Errorf("portfolio %s failed audit with %d discrepancies", id, len(report.Discrepancies))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&portfolio, "portfolio", "", "portfolio ID to audit")
	_ = cmd.MarkFlagRequired("portfolio")
	return cmd
}

// newTokenCommand issues bearer tokens for local development against the
// configured secret.
func newTokenCommand(load loadFunc) *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}

			id := uuid.New()
			if owner != "" {
				if id, err = uuid.Parse(owner); err != nil {
					return fmt.Errorf("invalid --owner: %w", err)
				}
			}

			token, err := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer).GenerateToken(id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "owner %s\n", id)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (random when empty)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
