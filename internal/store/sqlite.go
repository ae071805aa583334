package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/refine-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	ticker     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS artifacts (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	ticker       TEXT NOT NULL,
	artifact     TEXT NOT NULL,
	approved     INTEGER NOT NULL DEFAULT 0,
	final_score  INTEGER NOT NULL DEFAULT 0,
	terminal     TEXT NOT NULL,
	completed_at DATETIME NOT NULL,
	UNIQUE (ticker, completed_at)
);

CREATE TABLE IF NOT EXISTS draft_artifacts (
	ticker     TEXT PRIMARY KEY,
	artifact   TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_ticker ON runs(ticker);
CREATE INDEX IF NOT EXISTS idx_artifacts_ticker ON artifacts(ticker, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_artifacts_run_id ON artifacts(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, ticker string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, ticker, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, ticker, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Ticker:    ticker,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ticker, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, ticker, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Ticker != "" {
		query += ` AND ticker = ?`
		args = append(args, filter.Ticker)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveArtifact(ctx context.Context, runID string, final *model.FinalArtifact) (string, error) {
	id := uuid.New().String()

	artifactJSON, err := json.Marshal(final.Artifact)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal artifact")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, run_id, ticker, artifact, approved, final_score, terminal, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID, final.Artifact.Ticker, string(artifactJSON),
		final.Approved, final.FinalScore, final.Terminal, final.CompletedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert artifact")
	}
	return id, nil
}

func (s *SQLiteStore) LatestArtifact(ctx context.Context, ticker string) (*model.FinalArtifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT artifact, approved, final_score, terminal, completed_at FROM artifacts
		 WHERE ticker = ? ORDER BY completed_at DESC LIMIT 1`,
		ticker,
	)
	fa, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return fa, err
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, ticker string, limit int) ([]model.FinalArtifact, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact, approved, final_score, terminal, completed_at FROM artifacts
		 WHERE ticker = ? ORDER BY completed_at DESC LIMIT ?`,
		ticker, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list artifacts")
	}
	defer rows.Close()

	var out []model.FinalArtifact
	for rows.Next() {
		fa, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fa)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list artifacts iterate")
}

func (s *SQLiteStore) SaveDraft(ctx context.Context, a *model.Artifact) error {
	artifactJSON, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal draft")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO draft_artifacts (ticker, artifact, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (ticker) DO UPDATE SET artifact = excluded.artifact, updated_at = excluded.updated_at`,
		a.Ticker, string(artifactJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save draft")
}

// BulkSaveDrafts upserts drafts one at a time; SQLite has no COPY
// protocol worth batching for.
func (s *SQLiteStore) BulkSaveDrafts(ctx context.Context, drafts []*model.Artifact) (int64, error) {
	var n int64
	for _, a := range drafts {
		if err := s.SaveDraft(ctx, a); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) GetDraft(ctx context.Context, ticker string) (*model.Artifact, error) {
	var artifactJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT artifact FROM draft_artifacts WHERE ticker = ?`,
		ticker,
	).Scan(&artifactJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get draft")
	}

	var a model.Artifact
	if err := json.Unmarshal([]byte(artifactJSON), &a); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal draft")
	}
	return &a, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.Ticker, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

func scanArtifact(row scannable) (*model.FinalArtifact, error) {
	var fa model.FinalArtifact
	var artifactJSON string

	err := row.Scan(&artifactJSON, &fa.Approved, &fa.FinalScore, &fa.Terminal, &fa.CompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan artifact")
	}

	fa.Artifact = &model.Artifact{}
	if err := json.Unmarshal([]byte(artifactJSON), fa.Artifact); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal artifact")
	}
	return &fa, nil
}
