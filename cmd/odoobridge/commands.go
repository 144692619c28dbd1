package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/middleware"
)

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type exportResult struct {
	Key      export.Key `json:"key"`
	LocalID  int64      `json:"local_id"`
	RemoteID int64      `json:"remote_id"`
	Excluded bool       `json:"excluded,omitempty"`
}

func (r exportResult) String() string {
	if r.Excluded {
		return fmt.Sprintf("%s local %d is excluded from sync", r.Key, r.LocalID)
	}
	return fmt.Sprintf("%s local %d -> remote %d", r.Key, r.LocalID, r.RemoteID)
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		variant          string
		onlyIfDependency bool
		queue            bool
	)

	cmd := &cobra.Command{
		Use:   "export <entity_type> <remote_model> <local_id>...",
		Short: "Export local entities to Odoo now, or queue them",
		Example: `  odoobridge export order sale.order 42
  odoobridge export user res.partner 7 --variant company
  odoobridge export order sale.order 42 43 --queue`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[2:])
			if err != nil {
				return err
			}
			key := idmap.NewKey(args[0], args[1], variant)

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range ids {
				if queue {
					item, _, err := a.orch.Enqueue(cmd.Context(), key, id, map[string]interface{}{"source": "cli"})
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "queued %s local %d as #%d\n", key, id, item.ID)
					continue
				}

				remoteID, err := a.orch.Export(cmd.Context(), key, id, onlyIfDependency)
				res := exportResult{Key: key, LocalID: id, RemoteID: remoteID}
				if errors.Is(err, export.ErrSyncExcluded) {
					res.Excluded = true
				} else if err != nil {
					return err
				}
				if err := printResult(cmd.OutOrStdout(), opts, res); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "default", "export variant")
	cmd.Flags().BoolVar(&onlyIfDependency, "only-if-dependency", false, "skip entities that are already synced")
	cmd.Flags().BoolVar(&queue, "queue", false, "store delayed export requests instead of exporting")
	return cmd
}

func newFlushCommand(opts *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Drain the delayed export queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.orch.SyncAndFlush(cmd.Context(), strict || a.cfg.Sync.Strict)
			if report != nil {
				if perr := printResult(cmd.OutOrStdout(), opts, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "stop at the first failing item")
	return cmd
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var lookback time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile [sale.order id]...",
		Short: "Check and repair the invoices of remote orders",
		Long: `Check the invoice of each given sale.order and cancel and recreate it when it
does not match the order. Without ids, orders changed within --lookback are checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(ids) == 0 {
				if lookback <= 0 {
					lookback = a.cfg.Sync.ReconcileLookback
				}
				ids, err = a.engine.RecentOrderIDs(cmd.Context(), time.Now().Add(-lookback))
				if err != nil {
					return err
				}
			}

			report, err := a.engine.Run(cmd.Context(), ids)
			if report != nil {
				if perr := printResult(cmd.OutOrStdout(), opts, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&lookback, "lookback", 0, "window of changed orders (default RECONCILE_LOOKBACK_DAYS)")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the local schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, err := connectDB(cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()

			log.Info("✅ Schema synchronized successfully")
			return nil
		},
	}
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			token, err := middleware.NewToken(cfg.Server.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
