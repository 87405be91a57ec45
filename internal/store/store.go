package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const schemaSQL = `
    CREATE TABLE IF NOT EXISTS runs (
        run_id             TEXT PRIMARY KEY,
        scan_mode          TEXT NOT NULL,
        quota              INTEGER NOT NULL,
        started_at         TIMESTAMPTZ NOT NULL,
        finished_at        TIMESTAMPTZ NOT NULL,
        invocations        INTEGER NOT NULL,
        applied_actions    INTEGER NOT NULL,
        quota_skipped      INTEGER NOT NULL,
        unverified_actions INTEGER NOT NULL,
        reveal_stabilized  BOOLEAN NOT NULL,
        authenticated      BOOLEAN NOT NULL,
        aborted            BOOLEAN NOT NULL,
        abort_reason       TEXT NOT NULL DEFAULT '',
        outcomes           JSONB NOT NULL
    );
    CREATE TABLE IF NOT EXISTS run_items (
        run_id        TEXT NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
        item_index    INTEGER NOT NULL,
        position      INTEGER NOT NULL,
        label         TEXT NOT NULL,
        outcome       TEXT NOT NULL,
        applied       INTEGER NOT NULL,
        branch        TEXT NOT NULL,
        quota_skipped BOOLEAN NOT NULL,
        unverified    BOOLEAN NOT NULL,
        duration_ms   BIGINT NOT NULL,
        error         TEXT NOT NULL,
        PRIMARY KEY (run_id, position)
    );
`

const insertRunSQL = `
    INSERT INTO runs (run_id, scan_mode, quota, started_at, finished_at, invocations, applied_actions,
        quota_skipped, unverified_actions, reveal_stabilized, authenticated, aborted, abort_reason, outcomes)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
`

var runItemColumns = []string{
	"run_id", "item_index", "position", "label", "outcome", "applied", "branch",
	"quota_skipped", "unverified", "duration_ms", "error",
}

// Store persists run history in PostgreSQL. It is append-only and is never
// consulted to decide whether an item should be processed.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the run history tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveRun writes a run summary and its items in one transaction.
func (s *Store) SaveRun(ctx context.Context, summary *schemas.RunSummary) error {
	if summary == nil {
		return fmt.Errorf("cannot save a nil run summary")
	}
	outcomes, err := json.Marshal(summary.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, insertRunSQL,
		summary.RunID, string(summary.ScanMode), summary.Quota,
		summary.StartedAt.UTC(), summary.FinishedAt.UTC(),
		summary.Invocations, summary.AppliedActions, summary.QuotaSkipped, summary.UnverifiedActions,
		summary.RevealStabilized, summary.Authenticated, summary.Aborted, summary.AbortReason,
		outcomes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", summary.RunID, err)
	}

	if len(summary.Items) > 0 {
		if err := s.persistItems(ctx, tx, summary.RunID, summary.Items); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run saved.", zap.String("run_id", summary.RunID), zap.Int("items", len(summary.Items)))
	return nil
}

func (s *Store) persistItems(ctx context.Context, tx pgx.Tx, runID string, items []schemas.ItemRecord) error {
	rows := make([][]interface{}, len(items))
	for i, it := range items {
		rows[i] = []interface{}{
			runID, it.Index, i, it.Label, string(it.Outcome), it.Applied, it.Branch,
			it.QuotaSkipped, it.Unverified, it.Duration.Milliseconds(), it.Error,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"run_items"}, runItemColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy run items: %w", err)
	}
	if int(copyCount) != len(items) {
		return fmt.Errorf("mismatch in copied run items count: expected %d, got %d", len(items), copyCount)
	}
	return nil
}

// RecentRuns returns the newest run headers, most recent first. Items are not
// loaded.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]schemas.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
        SELECT run_id, scan_mode, quota, started_at, finished_at, invocations, applied_actions,
            quota_skipped, unverified_actions, reveal_stabilized, authenticated, aborted, abort_reason, outcomes
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunSummary
	for rows.Next() {
		var (
			r        schemas.RunSummary
			mode     string
			outcomes []byte
		)
		err := rows.Scan(
			&r.RunID, &mode, &r.Quota, &r.StartedAt, &r.FinishedAt,
			&r.Invocations, &r.AppliedActions, &r.QuotaSkipped, &r.UnverifiedActions,
			&r.RevealStabilized, &r.Authenticated, &r.Aborted, &r.AbortReason,
			&outcomes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.ScanMode = schemas.ScanMode(mode)
		r.Elapsed = r.FinishedAt.Sub(r.StartedAt)
		if err := json.Unmarshal(outcomes, &r.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes for run %s: %w", r.RunID, err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// AppliedSince sums applied actions across runs started at or after since.
func (s *Store) AppliedSince(ctx context.Context, since time.Time) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT COALESCE(SUM(applied_actions), 0) FROM runs WHERE started_at >= $1;`, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to query applied actions: %w", err)
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("failed to scan applied actions: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error during row iteration: %w", err)
	}
	return int(total), nil
}
