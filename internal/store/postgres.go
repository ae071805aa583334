package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/refine-cli/internal/db"
	"github.com/sells-group/refine-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, ticker, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, ticker, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_artifact":   `INSERT INTO artifacts (id, run_id, ticker, artifact, approved, final_score, terminal, completed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"latest_artifact":   `SELECT artifact, approved, final_score, terminal, completed_at FROM artifacts WHERE ticker = $1 ORDER BY completed_at DESC LIMIT 1`,
	"get_draft":         `SELECT artifact FROM draft_artifacts WHERE ticker = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	ticker     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS artifacts (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	ticker       TEXT NOT NULL,
	artifact     JSONB NOT NULL,
	approved     BOOLEAN NOT NULL DEFAULT false,
	final_score  INTEGER NOT NULL DEFAULT 0,
	terminal     TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (ticker, completed_at)
);

CREATE TABLE IF NOT EXISTS artifact_iterations (
	artifact_id      TEXT NOT NULL REFERENCES artifacts(id),
	iteration        INTEGER NOT NULL,
	score_before     INTEGER NOT NULL,
	score_after      INTEGER NOT NULL,
	issues_addressed INTEGER NOT NULL,
	issues_remaining INTEGER NOT NULL,
	failed           BOOLEAN NOT NULL DEFAULT false,
	duration_ms      BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (artifact_id, iteration)
);

CREATE TABLE IF NOT EXISTS draft_artifacts (
	ticker     TEXT PRIMARY KEY,
	artifact   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_ticker ON runs(ticker);
CREATE INDEX IF NOT EXISTS idx_artifacts_ticker ON artifacts(ticker, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_artifacts_run_id ON artifacts(run_id);
`

// iterationColumns matches artifact_iterations for COPY inserts.
var iterationColumns = []string{
	"artifact_id", "iteration", "score_before", "score_after",
	"issues_addressed", "issues_remaining", "failed", "duration_ms",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) CreateRun(ctx context.Context, ticker string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, ticker, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, ticker, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Ticker:    ticker,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, ticker, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Ticker, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, ticker, status, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Ticker != "" {
		query += fmt.Sprintf(` AND ticker = $%d`, argIdx)
		args = append(args, filter.Ticker)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var resultNull *[]byte

		if err := rows.Scan(&r.ID, &r.Ticker, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if resultNull != nil {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(*resultNull, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveArtifact persists a finished artifact and its iteration history.
// History rows go through COPY since a run can carry many of them.
func (s *PostgresStore) SaveArtifact(ctx context.Context, runID string, final *model.FinalArtifact) (string, error) {
	id := uuid.New().String()

	artifactJSON, err := json.Marshal(final.Artifact)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal artifact")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO artifacts (id, run_id, ticker, artifact, approved, final_score, terminal, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, runID, final.Artifact.Ticker, artifactJSON,
		final.Approved, final.FinalScore, final.Terminal, final.CompletedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert artifact")
	}

	if len(final.Artifact.RefinementHistory) > 0 {
		rows := make([][]any, 0, len(final.Artifact.RefinementHistory))
		for _, rec := range final.Artifact.RefinementHistory {
			rows = append(rows, []any{
				id, rec.IterationIndex, rec.ScoreBefore, rec.ScoreAfter,
				rec.IssuesAddressed, rec.IssuesRemaining, rec.Failed, rec.Duration,
			})
		}
		if _, err := db.CopyFrom(ctx, s.pool, "artifact_iterations", iterationColumns, rows); err != nil {
			return "", eris.Wrap(err, "postgres: copy iterations")
		}
	}
	return id, nil
}

func (s *PostgresStore) LatestArtifact(ctx context.Context, ticker string) (*model.FinalArtifact, error) {
	var fa model.FinalArtifact
	var artifactJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT artifact, approved, final_score, terminal, completed_at FROM artifacts
		 WHERE ticker = $1 ORDER BY completed_at DESC LIMIT 1`,
		ticker,
	).Scan(&artifactJSON, &fa.Approved, &fa.FinalScore, &fa.Terminal, &fa.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest artifact")
	}

	fa.Artifact = &model.Artifact{}
	if err := json.Unmarshal(artifactJSON, fa.Artifact); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal artifact")
	}
	return &fa, nil
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, ticker string, limit int) ([]model.FinalArtifact, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT artifact, approved, final_score, terminal, completed_at FROM artifacts
		 WHERE ticker = $1 ORDER BY completed_at DESC LIMIT $2`,
		ticker, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list artifacts")
	}
	defer rows.Close()

	var out []model.FinalArtifact
	for rows.Next() {
		var fa model.FinalArtifact
		var artifactJSON []byte

		if err := rows.Scan(&artifactJSON, &fa.Approved, &fa.FinalScore, &fa.Terminal, &fa.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan artifact")
		}
		fa.Artifact = &model.Artifact{}
		if err := json.Unmarshal(artifactJSON, fa.Artifact); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal artifact")
		}
		out = append(out, fa)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list artifacts iterate")
}

func (s *PostgresStore) SaveDraft(ctx context.Context, a *model.Artifact) error {
	artifactJSON, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal draft")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO draft_artifacts (ticker, artifact, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (ticker) DO UPDATE SET artifact = $2, updated_at = $3`,
		a.Ticker, artifactJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save draft")
}

// BulkSaveDrafts upserts a batch of drafts in one transaction via a temp
// table. Used by the import command, where a directory of drafts lands at
// once.
func (s *PostgresStore) BulkSaveDrafts(ctx context.Context, drafts []*model.Artifact) (int64, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(drafts))
	for _, a := range drafts {
		artifactJSON, err := json.Marshal(a)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal draft %s", a.Ticker)
		}
		rows = append(rows, []any{a.Ticker, artifactJSON, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "draft_artifacts",
		Columns:      []string{"ticker", "artifact", "updated_at"},
		ConflictKeys: []string{"ticker"},
	}, rows)
	return n, eris.Wrap(err, "postgres: bulk save drafts")
}

func (s *PostgresStore) GetDraft(ctx context.Context, ticker string) (*model.Artifact, error) {
	var artifactJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT artifact FROM draft_artifacts WHERE ticker = $1`,
		ticker,
	).Scan(&artifactJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get draft")
	}

	var a model.Artifact
	if err := json.Unmarshal(artifactJSON, &a); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal draft")
	}
	return &a, nil
}
