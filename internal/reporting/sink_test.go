// internal/reporting/sink_test.go
package reporting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/mocks"
)

type storeFunc func(ctx context.Context, s *schemas.RunSummary) error

func (f storeFunc) SaveRun(ctx context.Context, s *schemas.RunSummary) error { return f(ctx, s) }

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Emit(context.Background(), sampleSummary()))
	entries := logs.FilterMessage("Run summary.").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "run-42", ctx["run_id"])
	assert.EqualValues(t, 2, ctx["applied_actions"])
	outcomes, ok := ctx["outcomes"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, outcomes[string(schemas.OutcomeFailedRecoverable)])

	aborted := sampleSummary()
	aborted.Abort("browsing context lost")
	require.NoError(t, sink.Emit(context.Background(), aborted))
	warn := logs.FilterMessage("Run aborted.").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "browsing context lost", warn[0].ContextMap()["reason"])
}

func TestReporterSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xml")
	sink := NewReporterSink("junit", path)
	assert.Equal(t, "report:junit", sink.Name())
	require.NoError(t, sink.Emit(context.Background(), sampleSummary()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<testsuite")

	bad := NewReporterSink("pdf", "")
	assert.Error(t, bad.Emit(context.Background(), sampleSummary()))
}

func TestStoreSink(t *testing.T) {
	var saved *schemas.RunSummary
	sink := NewStoreSink(storeFunc(func(_ context.Context, s *schemas.RunSummary) error {
		saved = s
		return nil
	}))
	summary := sampleSummary()
	require.NoError(t, sink.Emit(context.Background(), summary))
	assert.Same(t, summary, saved)
}

func TestFanout(t *testing.T) {
	summary := sampleSummary()
	ok := new(mocks.MockSink)
	ok.On("Name").Return("ok").Maybe()
	ok.On("Emit", mock.Anything, summary).Return(nil).Once()

	failing := new(mocks.MockSink)
	failing.On("Name").Return("failing")
	failing.On("Emit", mock.Anything, summary).Return(errors.New("disk full")).Once()

	core, logs := observer.New(zap.ErrorLevel)
	err := Fanout(context.Background(), zap.New(core), summary, ok, nil, failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink failing: disk full")
	assert.Equal(t, 1, logs.FilterMessage("Summary sink failed.").Len())
	ok.AssertExpectations(t)
	failing.AssertExpectations(t)

	assert.Error(t, Fanout(context.Background(), zaptest.NewLogger(t), nil, ok))
	assert.NoError(t, Fanout(context.Background(), zaptest.NewLogger(t), summary))
}
