package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/runboard/internal/domain/job"
	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

// PGStoreOptions configures a PGStore.
type PGStoreOptions struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// PGStore keeps one row per job in job_records with the whole record as JSONB.
// Mutations lock the row with SELECT ... FOR UPDATE and rewrite it inside one transaction, so
// readers observe either the committed state before or after a mutation.
type PGStore struct {
	DB     *sql.DB
	tp     TimeProvider
	logger *slog.Logger
}

// NewPGStore creates a PGStore over db.
func NewPGStore(db *sql.DB, opts PGStoreOptions) (*PGStore, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = SystemTime
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{DB: db, tp: tp, logger: logger.With("component", "pg_store")}, nil
}

// CreateJob allocates an id from the job_records sequence and inserts a pending record.
func (s *PGStore) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error) {
	var id int64
	if err := s.DB.QueryRowContext(ctx,
		`SELECT nextval(pg_get_serial_sequence('job_records', 'id'))`,
	).Scan(&id); err != nil {
		return nil, apperrors.StoreWriteFailed(apperrors.MapDBError(err), "allocate job id")
	}

	rec := job.NewRecord(model.JobID(id), req, s.tp.Now())
	data, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO job_records (id, label, name, plan, status, created_at, updated_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.DB.ExecContext(ctx, q,
		id, rec.Job.Label, rec.Job.Name, rec.Job.Plan, string(rec.Job.Status),
		rec.Job.CreatedAt, rec.Job.UpdatedAt, data,
	); err != nil {
		return nil, apperrors.StoreWriteFailed(apperrors.MapDBError(err), fmt.Sprintf("insert job %d", id))
	}
	return rec, nil
}

// AppendStep appends a step to the job's record.
func (s *PGStore) AppendStep(ctx context.Context, jobID model.JobID, step model.Step) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplyAppendStep(rec, step, s.tp.Now())
	})
}

// UpdateStep patches a step in the job's record.
func (s *PGStore) UpdateStep(ctx context.Context, jobID model.JobID, stepID string, patch model.StepPatch) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplyUpdateStep(rec, stepID, patch, s.tp.Now())
	})
}

// SetJobStatus moves the job forward.
func (s *PGStore) SetJobStatus(ctx context.Context, jobID model.JobID, status model.JobStatus) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplySetStatus(rec, status, s.tp.Now())
	})
}

// ReadJob returns the committed record.
func (s *PGStore) ReadJob(ctx context.Context, jobID model.JobID) (*model.JobRecord, error) {
	var data []byte
	err := s.DB.QueryRowContext(ctx, `SELECT record FROM job_records WHERE id = $1`, int64(jobID)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("job %s not found", jobID)
		}
		return nil, apperrors.MapDBError(err)
	}
	return decodeRecord(jobID, data)
}

// ListJobs returns the job index sorted by id.
func (s *PGStore) ListJobs(ctx context.Context) ([]model.JobSummary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, label, name, status, created_at FROM job_records ORDER BY id`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	out := []model.JobSummary{}
	for rows.Next() {
		var (
			j      model.Job
			id     int64
			status string
		)
		if err := rows.Scan(&id, &j.Label, &j.Name, &status, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job index row: %w", err)
		}
		j.ID = model.JobID(id)
		j.Status = model.JobStatus(status)
		out = append(out, model.Summarize(&j))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// JobsByStatus returns the headers of every job in status, oldest first.
func (s *PGStore) JobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, record FROM job_records WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		rec, decErr := decodeRecord(model.JobID(id), data)
		if decErr != nil {
			return nil, decErr
		}
		out = append(out, rec.Job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

func (s *PGStore) mutate(ctx context.Context, jobID model.JobID, fn mutation) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.ErrorContext(ctx, "failed to rollback transaction", "job_id", jobID, "error", rbErr)
		}
	}()

	var data []byte
	err = tx.QueryRowContext(ctx,
		`SELECT record FROM job_records WHERE id = $1 FOR UPDATE`, int64(jobID),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFoundf("job %s not found", jobID)
		}
		return apperrors.MapDBError(err)
	}
	rec, err := decodeRecord(jobID, data)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	out, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE job_records SET status = $2, updated_at = $3, record = $4 WHERE id = $1`,
		int64(jobID), string(rec.Job.Status), rec.Job.UpdatedAt, out,
	); err != nil {
		return apperrors.StoreWriteFailed(apperrors.MapDBError(err), fmt.Sprintf("update job %s", jobID))
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StoreWriteFailed(apperrors.MapDBError(err), fmt.Sprintf("commit job %s", jobID))
	}
	return nil
}
