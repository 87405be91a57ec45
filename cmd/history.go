// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/observability"
	"github.com/xkilldash9x/autoapply/internal/service"
)

// historyStore is the read side of the run history.
type historyStore interface {
	RecentRuns(ctx context.Context, limit int) ([]schemas.RunSummary, error)
	AppliedSince(ctx context.Context, since time.Time) (int, error)
}

// storeProvider creates the history store. This abstraction allows the
// injection of a mock store instead of a live database connection.
type storeProvider interface {
	Create(ctx context.Context, cfg config.Interface) (historyStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider creates the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (historyStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (AUTOAPPLY_DATABASE_URL)")
	}
	st, pool, err := service.InitializeStore(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed (via history cleanup).")
	}
	return st, cleanup, nil
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int
	var window time.Duration

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistory(ctx, cmd, observability.GetLogger(), cfg, provider, limit, window)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list.")
	historyCmd.Flags().DurationVar(&window, "window", 24*time.Hour, "Window for the applied-actions total.")
	return historyCmd
}

func runHistory(ctx context.Context, cmd *cobra.Command, logger *zap.Logger, cfg config.Interface, provider storeProvider, limit int, window time.Duration) error {
	st, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	runs, err := st.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	applied, err := st.AppliedSince(ctx, time.Now().Add(-window))
	if err != nil {
		return err
	}
	logger.Debug("Run history loaded.", zap.Int("runs", len(runs)))

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMODE\tAPPLIED\tQUOTA\tITEMS\tFAILED\tSTATUS")
	for _, r := range runs {
		status := "ok"
		if r.Aborted {
			status = "aborted: " + r.AbortReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.ScanMode,
			r.AppliedActions, r.Quota, r.Invocations, r.Failures(), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	cmd.Printf("%d applied action(s) in the last %s.\n", applied, window)
	return nil
}
