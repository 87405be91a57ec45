// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/observability"
	"github.com/xkilldash9x/autoapply/internal/service"
)

// ErrFatalItems is returned when the run completed but at least one item
// failed fatally.
var ErrFatalItems = errors.New("run finished with fatal item failures")

func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Authenticate, reveal the listing and process items up to the quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyRunFlagOverrides(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			summary, err := runApply(ctx, logger, cfg, factory)
			if summary != nil {
				cmd.Printf("Run %s: %d applied action(s) over %d item(s).\n",
					summary.RunID, summary.AppliedActions, summary.Invocations)
			}
			return err
		},
	}

	runCmd.Flags().Int("quota", 0, "Maximum number of applied actions for this run. (Overrides config/env)")
	runCmd.Flags().String("scan-mode", "", "Item enumeration strategy: 'fixed-count' or 'live-rescan'. (Overrides config/env)")
	runCmd.Flags().String("cookies-file", "", "Path to a JSON cookie export. (Overrides config/env)")
	runCmd.Flags().String("origin", "", "Target origin used for cookie scoping. (Overrides config/env)")
	runCmd.Flags().String("surface", "", "URL of the listing page to work through. (Overrides config/env)")
	runCmd.Flags().StringP("output", "o", "", "Report output path; stdout when empty.")
	runCmd.Flags().StringP("format", "f", "", "Report format: 'text', 'json' or 'junit'.")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window.")
	return runCmd
}

// applyRunFlagOverrides copies explicitly set flags onto the configuration.
func applyRunFlagOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("quota") {
		q, err := flags.GetInt("quota")
		if err != nil {
			return err
		}
		cfg.SetRunQuota(q)
	}
	if flags.Changed("scan-mode") {
		mode, _ := flags.GetString("scan-mode")
		if !schemas.ScanMode(mode).Valid() {
			return fmt.Errorf("invalid --scan-mode %q", mode)
		}
		cfg.SetRunScanMode(schemas.ScanMode(mode))
	}
	if flags.Changed("cookies-file") {
		v, _ := flags.GetString("cookies-file")
		cfg.SetAuthCookiesFile(v)
	}
	if flags.Changed("origin") {
		v, _ := flags.GetString("origin")
		cfg.SetTargetOrigin(v)
	}
	if flags.Changed("surface") {
		v, _ := flags.GetString("surface")
		cfg.SetTargetSurfaceURL(v)
	}
	if flags.Changed("output") {
		v, _ := flags.GetString("output")
		cfg.SetReportOutput(v)
	}
	if flags.Changed("format") {
		v, _ := flags.GetString("format")
		cfg.SetReportFormat(v)
	}
	if flags.Changed("headless") {
		v, _ := flags.GetBool("headless")
		cfg.SetBrowserHeadless(v)
	}
	return nil
}

// runApply contains the core, testable logic of the run command. Component
// shutdown is deferred so the browser is released on every path.
func runApply(ctx context.Context, logger *zap.Logger, cfg config.Interface, factory service.ComponentFactory) (*schemas.RunSummary, error) {
	cookies, err := auth.LoadCookies(cfg.Auth().CookiesFile, cfg.Auth().CookiesJSON)
	if err != nil {
		return nil, err
	}

	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run components: %w", err)
	}
	defer components.Shutdown()

	summary, err := components.Execute(ctx, cookies)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run cancelled by signal.")
		}
		return summary, err
	}

	if summary.Outcomes[schemas.OutcomeFailedFatal] > 0 {
		return summary, ErrFatalItems
	}
	return summary, nil
}

// ExitCode maps a command error to the process exit status. Signal-driven
// cancellation is a clean exit.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}
