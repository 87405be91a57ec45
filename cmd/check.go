// File: cmd/check.go
package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

// newCheckCmd validates configuration, labels and credentials without
// starting a browser.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, labels and the cookie export offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := workflow.LabelsFromConfig(cfg.Labels()); err != nil {
				return fmt.Errorf("invalid label configuration: %w", err)
			}

			cookies, err := auth.LoadCookies(cfg.Auth().CookiesFile, cfg.Auth().CookiesJSON)
			if err != nil {
				return err
			}
			if len(cookies) == 0 {
				return &auth.AuthenticationError{Reason: auth.ReasonMissingCredentials}
			}

			origin, err := url.Parse(cfg.Target().Origin)
			if err != nil || origin.Host == "" {
				return fmt.Errorf("invalid target origin %q", cfg.Target().Origin)
			}
			domain := cfg.Auth().DefaultDomain
			if domain == "" {
				domain = auth.DefaultDomain(origin.Hostname())
			}

			cmd.Printf("Configuration OK. Surface: %s\n", cfg.Target().SurfaceURL)
			cmd.Printf("%d cookie(s); default domain %s\n", len(cookies), domain)
			for _, exp := range auth.ExpiredCookies(cookies) {
				cmd.Printf("  warning: %s expired at %s (%s)\n", exp.Name, exp.ExpiredAt.Format("2006-01-02 15:04 MST"), exp.Source)
			}
			return nil
		},
	}
}
