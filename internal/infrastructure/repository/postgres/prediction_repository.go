package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

const schemaLockID int64 = 2026101901

// PredictionRepository stores export documents and model parses of one run.
// It satisfies both ports.PredictionSink and ports.ParseSink.
type PredictionRepository struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

func NewPredictionRepository(db *sql.DB, runID string) *PredictionRepository {
	return &PredictionRepository{
		db:    db,
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PredictionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Concurrent runs share the tables.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS predictions (
	run_id TEXT NOT NULL,
	arxiv_id TEXT NOT NULL,
	doi TEXT NOT NULL,
	prediction JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, arxiv_id)
);

CREATE INDEX IF NOT EXISTS idx_predictions_arxiv_id ON predictions(arxiv_id);

CREATE TABLE IF NOT EXISTS affiliation_parses (
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	prediction JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, source)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *PredictionRepository) Write(ctx context.Context, doc domain.PredictionDocument) error {
	predictionJSON, err := json.Marshal(doc.Normalized().Prediction)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO predictions (run_id, arxiv_id, doi, prediction, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (run_id, arxiv_id) DO UPDATE
SET doi = EXCLUDED.doi, prediction = EXCLUDED.prediction, created_at = EXCLUDED.created_at
`, r.runID, doc.ArxivID, doc.DOI, predictionJSON, r.now())
	if err != nil {
		return fmt.Errorf("upsert prediction %s: %w", doc.ArxivID, err)
	}
	return nil
}

func (r *PredictionRepository) WriteParse(ctx context.Context, parse domain.AffiliationParse) error {
	predictionJSON, err := json.Marshal(parse.Prediction)
	if err != nil {
		return fmt.Errorf("marshal parse: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO affiliation_parses (run_id, source, prediction, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (run_id, source) DO UPDATE
SET prediction = EXCLUDED.prediction, created_at = EXCLUDED.created_at
`, r.runID, parse.Source, predictionJSON, r.now())
	if err != nil {
		return fmt.Errorf("upsert affiliation parse %s: %w", parse.Source, err)
	}
	return nil
}

func (r *PredictionRepository) Close() error {
	return r.db.Close()
}
