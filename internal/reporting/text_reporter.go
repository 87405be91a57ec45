// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// TextReporter renders a human readable summary followed by a per-item table.
type TextReporter struct {
	writer io.WriteCloser
}

// NewTextReporter takes ownership of w.
func NewTextReporter(w io.WriteCloser) *TextReporter {
	return &TextReporter{writer: w}
}

func (r *TextReporter) Write(s *schemas.RunSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", s.RunID, s.ScanMode)
	fmt.Fprintf(&b, "  authenticated:      %t\n", s.Authenticated)
	fmt.Fprintf(&b, "  reveal stabilized:  %t\n", s.RevealStabilized)
	fmt.Fprintf(&b, "  invocations:        %d\n", s.Invocations)
	fmt.Fprintf(&b, "  applied actions:    %d of %d\n", s.AppliedActions, s.Quota)
	fmt.Fprintf(&b, "  quota skipped:      %d\n", s.QuotaSkipped)
	fmt.Fprintf(&b, "  unverified actions: %d\n", s.UnverifiedActions)
	fmt.Fprintf(&b, "  elapsed:            %s\n", s.Elapsed.Round(time.Millisecond))
	if s.Aborted {
		fmt.Fprintf(&b, "  aborted:            %s\n", s.AbortReason)
	}
	b.WriteString("  outcomes:\n")
	for _, o := range schemas.AllOutcomes {
		fmt.Fprintf(&b, "    %-28s %d\n", o, s.Outcomes[o])
	}
	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if len(s.Items) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(r.writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\n#\tOUTCOME\tAPPLIED\tBRANCH\tDURATION\tLABEL\tERROR")
	for _, it := range s.Items {
		branch := it.Branch
		if branch == "" {
			branch = "-"
		}
		if it.Unverified {
			branch += " (unverified)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			it.Index, it.Outcome, it.Applied, branch, it.Duration.Round(time.Millisecond), it.Label, it.Error)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write item table: %w", err)
	}
	return nil
}

func (r *TextReporter) Close() error {
	return r.writer.Close()
}
