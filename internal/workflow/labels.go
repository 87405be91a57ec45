// internal/workflow/labels.go
package workflow

import (
	"fmt"

	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/locator"
)

// Labels are the text predicates that identify each affordance the driver
// interacts with.
type Labels struct {
	Open         locator.LabelPredicate
	Primary      locator.LabelPredicate
	DialogAction locator.LabelPredicate
	Dismiss      locator.LabelPredicate
	// Done marks an item the remote side already acted upon. Optional.
	Done locator.LabelPredicate
	// Confirmation must appear in the page text before an inline follow-up
	// action is counted. Optional.
	Confirmation locator.LabelPredicate
}

// DefaultLabels mirrors the configuration defaults.
func DefaultLabels() Labels {
	return Labels{
		Open:         locator.StartsWith("View"),
		Primary:      locator.StartsWith("Apply"),
		DialogAction: locator.StartsWith("Apply"),
		Dismiss:      locator.Contains("Close", "Cancel", "Back"),
		Done:         locator.StartsWith("Applied"),
	}
}

// LabelsFromConfig parses the labels section of the configuration.
func LabelsFromConfig(cfg config.LabelsConfig) (Labels, error) {
	var l Labels
	for _, f := range []struct {
		name     string
		expr     string
		dst      *locator.LabelPredicate
		required bool
	}{
		{"open", cfg.Open, &l.Open, true},
		{"primary", cfg.Primary, &l.Primary, true},
		{"dialog_action", cfg.DialogAction, &l.DialogAction, false},
		{"dismiss", cfg.Dismiss, &l.Dismiss, false},
		{"done", cfg.Done, &l.Done, false},
		{"confirmation", cfg.Confirmation, &l.Confirmation, false},
	} {
		p, err := locator.ParsePredicate(f.expr)
		if err != nil {
			return Labels{}, fmt.Errorf("labels.%s: %w", f.name, err)
		}
		if f.required && p.IsZero() {
			return Labels{}, fmt.Errorf("labels.%s must not be empty", f.name)
		}
		*f.dst = p
	}
	return l, nil
}
