// internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// JUnitReporter renders a run as a JUnit XML test suite so CI dashboards can
// chart outcomes. Each item is a test case; recoverable and fatal failures
// become <failure> and <error> elements, skips become <skipped>.
type JUnitReporter struct {
	writer io.WriteCloser
}

// NewJUnitReporter takes ownership of w.
func NewJUnitReporter(w io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (r *JUnitReporter) Write(s *schemas.RunSummary) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", "autoapply")
	suite.CreateAttr("id", s.RunID)
	suite.CreateAttr("tests", strconv.Itoa(s.Invocations))
	suite.CreateAttr("failures", strconv.Itoa(s.Outcomes[schemas.OutcomeFailedRecoverable]))
	suite.CreateAttr("errors", strconv.Itoa(s.Outcomes[schemas.OutcomeFailedFatal]))
	suite.CreateAttr("skipped", strconv.Itoa(
		s.Outcomes[schemas.OutcomeSkippedNoAction]+s.Outcomes[schemas.OutcomeSkippedAlreadyDone]))
	suite.CreateAttr("time", seconds(s.Elapsed))
	if !s.StartedAt.IsZero() {
		suite.CreateAttr("timestamp", s.StartedAt.UTC().Format("2006-01-02T15:04:05"))
	}

	props := suite.CreateElement("properties")
	addProp := func(name, value string) {
		p := props.CreateElement("property")
		p.CreateAttr("name", name)
		p.CreateAttr("value", value)
	}
	addProp("scan_mode", string(s.ScanMode))
	addProp("quota", strconv.Itoa(s.Quota))
	addProp("applied_actions", strconv.Itoa(s.AppliedActions))
	addProp("unverified_actions", strconv.Itoa(s.UnverifiedActions))
	addProp("authenticated", strconv.FormatBool(s.Authenticated))
	if s.Aborted {
		addProp("abort_reason", s.AbortReason)
	}

	for _, it := range s.Items {
		tc := suite.CreateElement("testcase")
		name := it.Label
		if name == "" {
			name = fmt.Sprintf("item %d", it.Index)
		}
		tc.CreateAttr("name", name)
		tc.CreateAttr("classname", "item."+strconv.Itoa(it.Index))
		tc.CreateAttr("time", seconds(it.Duration))

		switch it.Outcome {
		case schemas.OutcomeSkippedNoAction, schemas.OutcomeSkippedAlreadyDone:
			tc.CreateElement("skipped").CreateAttr("message", string(it.Outcome))
		case schemas.OutcomeFailedRecoverable:
			f := tc.CreateElement("failure")
			f.CreateAttr("type", string(it.Outcome))
			f.CreateAttr("message", it.Error)
		case schemas.OutcomeFailedFatal:
			e := tc.CreateElement("error")
			e.CreateAttr("type", string(it.Outcome))
			e.CreateAttr("message", it.Error)
		default:
			if it.Branch != "" {
				tc.CreateElement("system-out").SetText(fmt.Sprintf("applied=%d branch=%s unverified=%t", it.Applied, it.Branch, it.Unverified))
			}
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	return r.writer.Close()
}
