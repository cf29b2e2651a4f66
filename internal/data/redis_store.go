package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/runboard/internal/domain/job"
	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

const (
	defaultRedisKeyPrefix = "runboard:"
	defaultRedisRetries   = 10
)

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	// KeyPrefix namespaces every key (default "runboard:").
	KeyPrefix string
	// MaxRetries bounds optimistic transaction retries on WATCH conflicts (default 10).
	MaxRetries   int
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// RedisStore keeps each record as a JSON string under <prefix>job:<id>, allocates ids with
// INCR on <prefix>jobs:next_id, and mirrors index entries into the <prefix>jobs:index hash.
// Mutations run as WATCH/MULTI transactions; a GET observes either the old or the new record.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	tp         TimeProvider
	logger     *slog.Logger
}

// NewRedisStore creates a RedisStore over client.
func NewRedisStore(client redis.UniversalClient, opts RedisStoreOptions) (*RedisStore, error) {
	if client == nil {
		return nil, ErrRedisRequired
	}
	prefix := opts.KeyPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisKeyPrefix
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultRedisRetries
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = SystemTime
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxRetries: retries,
		tp:         tp,
		logger:     logger.With("component", "redis_store"),
	}, nil
}

func (s *RedisStore) jobKey(id model.JobID) string { return s.prefix + "job:" + id.String() }
func (s *RedisStore) nextIDKey() string            { return s.prefix + "jobs:next_id" }
func (s *RedisStore) indexKey() string             { return s.prefix + "jobs:index" }

// CreateJob allocates an id with INCR and stores the pending record and its index entry.
func (s *RedisStore) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error) {
	n, err := s.client.Incr(ctx, s.nextIDKey()).Result()
	if err != nil {
		return nil, apperrors.StoreWriteFailed(err, "allocate job id")
	}
	rec := job.NewRecord(model.JobID(n), req, s.tp.Now())
	data, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	entry, err := json.Marshal(model.Summarize(&rec.Job))
	if err != nil {
		return nil, fmt.Errorf("encode index entry: %w", err)
	}
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.jobKey(rec.Job.ID), data, 0)
		pipe.HSet(ctx, s.indexKey(), rec.Job.ID.String(), entry)
		return nil
	}); err != nil {
		return nil, apperrors.StoreWriteFailed(err, fmt.Sprintf("store job %s", rec.Job.ID))
	}
	return rec, nil
}

// AppendStep appends a step to the job's record.
func (s *RedisStore) AppendStep(ctx context.Context, jobID model.JobID, step model.Step) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplyAppendStep(rec, step, s.tp.Now())
	})
}

// UpdateStep patches a step in the job's record.
func (s *RedisStore) UpdateStep(ctx context.Context, jobID model.JobID, stepID string, patch model.StepPatch) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplyUpdateStep(rec, stepID, patch, s.tp.Now())
	})
}

// SetJobStatus moves the job forward.
func (s *RedisStore) SetJobStatus(ctx context.Context, jobID model.JobID, status model.JobStatus) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplySetStatus(rec, status, s.tp.Now())
	})
}

// ReadJob returns the stored record.
func (s *RedisStore) ReadJob(ctx context.Context, jobID model.JobID) (*model.JobRecord, error) {
	return s.get(ctx, s.client, jobID)
}

// ListJobs returns the job index sorted by id.
func (s *RedisStore) ListJobs(ctx context.Context) ([]model.JobSummary, error) {
	raw, err := s.client.HGetAll(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]model.JobSummary, 0, len(raw))
	for field, v := range raw {
		var entry model.JobSummary
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			s.logger.WarnContext(ctx, "skipping corrupt index entry", "job_id", field, "error", err)
			continue
		}
		out = append(out, entry)
	}
	sortSummaries(out)
	return out, nil
}

// JobsByStatus returns the headers of every job in status, oldest first.
func (s *RedisStore) JobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	index, err := s.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	var ids []model.JobID
	for _, entry := range index {
		if matchesStatus(entry, status) {
			keys = append(keys, s.jobKey(entry.ID))
			ids = append(ids, entry.ID)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	var out []model.Job
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, decErr := decodeRecord(ids[i], []byte(str))
		if decErr != nil {
			return nil, decErr
		}
		if rec.Job.Status == status {
			out = append(out, rec.Job)
		}
	}
	return out, nil
}

// redisGetter is satisfied by both the client and a WATCH transaction.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c redisGetter, jobID model.JobID) (*model.JobRecord, error) {
	data, err := c.Get(ctx, s.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFoundf("job %s not found", jobID)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeRecord(jobID, data)
}

func (s *RedisStore) mutate(ctx context.Context, jobID model.JobID, fn mutation) error {
	key := s.jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		rec, err := s.get(ctx, tx, jobID)
		if err != nil {
			return err
		}
		before := rec.Job.Status
		if err := fn(rec); err != nil {
			return err
		}
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		var entry []byte
		if rec.Job.Status != before {
			if entry, err = json.Marshal(model.Summarize(&rec.Job)); err != nil {
				return fmt.Errorf("encode index entry: %w", err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if entry != nil {
				pipe.HSet(ctx, s.indexKey(), jobID.String(), entry)
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return apperrors.StoreWriteFailed(err, fmt.Sprintf("store job %s", jobID))
		}
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.DebugContext(ctx, "job record changed during update; retrying", "job_id", jobID, "attempt", attempt+1)
			continue
		}
		return err
	}
	return apperrors.Conflictf("job %s: too many concurrent updates", jobID)
}
