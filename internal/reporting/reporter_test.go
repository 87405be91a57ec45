// internal/reporting/reporter_test.go
package reporting

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func sampleSummary() *schemas.RunSummary {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := schemas.NewRunSummary("run-42", schemas.ScanFixedCount, 3, start)
	s.Authenticated = true
	s.RevealStabilized = true
	s.Record(schemas.ItemRecord{Index: 0, Label: "Backend Engineer", Outcome: schemas.OutcomeApplied, Applied: 2, Branch: "DialogHandled", Duration: 1500 * time.Millisecond})
	s.Record(schemas.ItemRecord{Index: 1, Label: "Data Engineer", Outcome: schemas.OutcomeSkippedAlreadyDone})
	s.Record(schemas.ItemRecord{Index: 2, Outcome: schemas.OutcomeFailedRecoverable, Error: "unexpected driver failure: boom"})
	s.Finalize(start.Add(9 * time.Second))
	return s
}

func TestNew_StdoutAndUnsupported(t *testing.T) {
	for _, format := range []string{"json", "text", "junit"} {
		r, err := New(format, "")
		require.NoError(t, err, format)
		assert.NoError(t, r.Close(), "closing the stdout wrapper is a no-op")
	}

	r, err := New("sarif", "stdout")
	assert.Nil(t, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")
}

func TestNew_FileIsClosedOnUnsupportedFormat(t *testing.T) {
	w := &bufferCloser{}
	_, err := NewWithWriter("yaml", w)
	require.Error(t, err)
	assert.True(t, w.closed)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	r, err := New("json", path)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleSummary()))
	require.NoError(t, r.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded schemas.RunSummary
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-42", decoded.RunID)
	assert.Equal(t, 2, decoded.AppliedActions)
	assert.Equal(t, 1, decoded.Outcomes[schemas.OutcomeSkippedAlreadyDone])
	assert.Len(t, decoded.Items, 3)
}

func TestNew_BadPath(t *testing.T) {
	_, err := New("json", filepath.Join(t.TempDir(), "missing", "dir", "out.json"))
	assert.Error(t, err)
}

func TestTextReporter(t *testing.T) {
	w := &bufferCloser{}
	r := NewTextReporter(w)
	s := sampleSummary()
	s.Abort("cancelled")
	require.NoError(t, r.Write(s))
	require.NoError(t, r.Close())
	assert.True(t, w.closed)

	out := w.String()
	assert.Contains(t, out, "Run run-42 (fixed-count)")
	assert.Contains(t, out, "applied actions:    2 of 3")
	assert.Contains(t, out, "aborted:            cancelled")
	assert.Contains(t, out, "Backend Engineer")
	assert.Contains(t, out, "unexpected driver failure: boom")
	for _, o := range schemas.AllOutcomes {
		assert.Contains(t, out, string(o))
	}
	// Items without a branch render a placeholder.
	lines := strings.Split(out, "\n")
	var dataRow string
	for _, l := range lines {
		if strings.HasPrefix(l, "1 ") {
			dataRow = l
		}
	}
	assert.Contains(t, dataRow, " - ")
}

func TestJUnitReporter(t *testing.T) {
	w := &bufferCloser{}
	require.NoError(t, NewJUnitReporter(w).Write(sampleSummary()))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(w.Bytes()))
	suite := doc.FindElement("//testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, "0", suite.SelectAttrValue("errors", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("skipped", ""))
	assert.Equal(t, "9.000", suite.SelectAttrValue("time", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 3)
	assert.Equal(t, "Backend Engineer", cases[0].SelectAttrValue("name", ""))
	assert.NotNil(t, cases[0].SelectElement("system-out"))
	assert.NotNil(t, cases[1].SelectElement("skipped"))
	assert.Equal(t, "item 2", cases[2].SelectAttrValue("name", ""))
	failure := cases[2].SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "unexpected driver failure: boom", failure.SelectAttrValue("message", ""))

	prop := doc.FindElement("//property[@name='applied_actions']")
	require.NotNil(t, prop)
	assert.Equal(t, "2", prop.SelectAttrValue("value", ""))
}
