// internal/reporting/sink.go
package reporting

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// Sink receives the final run summary.
type Sink interface {
	Name() string
	Emit(ctx context.Context, summary *schemas.RunSummary) error
}

// RunStore persists run summaries. *store.Store implements it.
type RunStore interface {
	SaveRun(ctx context.Context, summary *schemas.RunSummary) error
}

// LogSink writes the summary to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("summary")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(_ context.Context, summary *schemas.RunSummary) error {
	outcomes := make([]zap.Field, 0, len(schemas.AllOutcomes))
	for _, o := range schemas.AllOutcomes {
		outcomes = append(outcomes, zap.Int(string(o), summary.Outcomes[o]))
	}
	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("scan_mode", string(summary.ScanMode)),
		zap.Bool("authenticated", summary.Authenticated),
		zap.Bool("reveal_stabilized", summary.RevealStabilized),
		zap.Int("invocations", summary.Invocations),
		zap.Int("applied_actions", summary.AppliedActions),
		zap.Int("quota", summary.Quota),
		zap.Int("quota_skipped", summary.QuotaSkipped),
		zap.Int("unverified_actions", summary.UnverifiedActions),
		zap.Namespace("outcomes"),
	}
	fields = append(fields, outcomes...)

	if summary.Aborted {
		s.logger.Warn("Run aborted.", append([]zap.Field{zap.String("reason", summary.AbortReason), zap.Duration("elapsed", summary.Elapsed)}, fields...)...)
		return nil
	}
	s.logger.Info("Run summary.", append([]zap.Field{zap.Duration("elapsed", summary.Elapsed)}, fields...)...)
	return nil
}

// ReporterSink renders the summary with a Reporter created per emit.
type ReporterSink struct {
	format string
	output string
	open   func(format, output string) (Reporter, error)
}

func NewReporterSink(format, output string) *ReporterSink {
	return &ReporterSink{format: format, output: output, open: New}
}

func (s *ReporterSink) Name() string { return "report:" + s.format }

func (s *ReporterSink) Emit(_ context.Context, summary *schemas.RunSummary) (err error) {
	r, err := s.open(s.format, s.output)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close report: %w", closeErr)
		}
	}()
	return r.Write(summary)
}

// StoreSink appends the summary to the run history.
type StoreSink struct {
	store RunStore
}

func NewStoreSink(store RunStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Emit(ctx context.Context, summary *schemas.RunSummary) error {
	return s.store.SaveRun(ctx, summary)
}

// Fanout emits the summary to every sink concurrently. All sinks run to
// completion; the first failure is returned and each one is logged.
func Fanout(ctx context.Context, logger *zap.Logger, summary *schemas.RunSummary, sinks ...Sink) error {
	if summary == nil {
		return fmt.Errorf("cannot emit a nil run summary")
	}
	var g errgroup.Group
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		g.Go(func() error {
			if err := sink.Emit(ctx, summary); err != nil {
				logger.Error("Summary sink failed.", zap.String("sink", sink.Name()), zap.Error(err))
				return fmt.Errorf("sink %s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
