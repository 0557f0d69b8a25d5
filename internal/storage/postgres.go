/**
 * PostgreSQL result store for the docproc worker.
 *
 * Persists job status transitions and finished processing results. Results
 * are stored as the canonical JSON report next to per-field rows so both
 * whole-document and per-field queries stay cheap.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/docuflow/docproc-worker/internal/pipeline"
)

// PostgresStore handles database operations
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// sanitizeConfidence rounds confidence to 4 decimal places. Float64 noise
// like 0.9632000000000001 trips NUMERIC casts on the database side.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// UpdateJobStatus upserts the job record so the worker can create it when
// the enqueuer did not.
func (p *PostgresStore) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO docproc.processing_jobs (
			id, document_id, status, processing_time_ms,
			error_code, error_message, engine_used, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, NULLIF($4, 0),
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
			COALESCE($8::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			processing_time_ms = COALESCE(NULLIF(EXCLUDED.processing_time_ms, 0), docproc.processing_jobs.processing_time_ms),
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			engine_used = COALESCE(NULLIF(EXCLUDED.engine_used, ''), docproc.processing_jobs.engine_used),
			metadata = COALESCE(EXCLUDED.metadata, docproc.processing_jobs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,
		update.DocumentID,
		update.Status,
		update.ProcessingTimeMs,
		update.ErrorCode,
		update.ErrorMessage,
		update.EngineUsed,
		metadataJSON,
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// SaveResult stores the finished result: the canonical JSON report plus one
// row per extracted field. All writes share a transaction so a crash never
// leaves a half-saved result.
func (p *PostgresStore) SaveResult(ctx context.Context, jobID string, result *pipeline.ProcessingResult) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if result == nil {
		return fmt.Errorf("result is required")
	}

	reportJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO docproc.processing_results (
			job_id, document_id, status, region_count, warning_count, report, created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			region_count = EXCLUDED.region_count,
			warning_count = EXCLUDED.warning_count,
			report = EXCLUDED.report,
			created_at = NOW()
	`, jobID, result.DocumentID, string(result.Status), len(result.Regions), len(result.Warnings), reportJSON)
	if err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}

	// Re-saving a result replaces its fields wholesale.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM docproc.extracted_fields WHERE job_id = $1::uuid`, jobID); err != nil {
		return fmt.Errorf("failed to clear previous fields: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO docproc.extracted_fields (
			job_id, position, name, raw_text, value, confidence, source_region_id
		) VALUES ($1::uuid, $2, $3, $4, $5, $6::NUMERIC(5,4), $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare field insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range result.Fields {
		if _, err := stmt.ExecContext(ctx, jobID, i, f.Name, f.RawText,
			f.Value.String(), sanitizeConfidence(f.Confidence), f.SourceRegionID); err != nil {
			return fmt.Errorf("failed to store field %s at %d: %w", f.Name, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}

	return nil
}

// GetResult retrieves the stored JSON report for a job.
func (p *PostgresStore) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	var report []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT report FROM docproc.processing_results WHERE job_id = $1::uuid`, jobID,
	).Scan(&report)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("result not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return report, nil
}

// Ping checks database connectivity
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresStore) GetStats() sql.DBStats {
	return p.db.Stats()
}
