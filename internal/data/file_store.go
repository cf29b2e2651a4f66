package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/target/runboard/internal/domain/job"
	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

const (
	indexFileName    = "processes.json"
	recordFilePrefix = "process_"
	recordFileSuffix = ".json"
)

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	Dir          string
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// FileStore keeps one JSON document per job (process_<id>.json) plus the job index
// (processes.json) in a directory. Every write goes to a temporary file in the same directory,
// is fsynced, and is then renamed over the target, so readers in any process see either the
// old or the new document.
//
// Writers are serialized by an in-process mutex; a directory supports one writing process and
// any number of reading processes.
//
// The record file is published before the index. When the index publish fails (or a previous
// process died between the two), the index lags the record files: this store then lists jobs
// from the record files and rewrites the whole index on its next write. Other processes see the
// lagging processes.json until that write lands.
type FileStore struct {
	dir    string
	logger *slog.Logger
	tp     TimeProvider

	mu     sync.Mutex
	lastID model.JobID
	// indexStale is set while processes.json is missing entries for published records.
	indexStale bool
}

// NewFileStore opens (creating if needed) the data directory and scans it for the highest
// allocated job id.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, ErrStoreDirRequired
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", opts.Dir, err)
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = SystemTime
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		dir:    opts.Dir,
		logger: logger.With("component", "file_store"),
		tp:     tp,
	}
	last, err := s.scanLastID()
	if err != nil {
		return nil, err
	}
	s.lastID = last
	return s, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

// CreateJob allocates the next id and persists a pending record, then adds it to the index.
func (s *FileStore) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.lastID + 1
	rec := job.NewRecord(id, req, s.tp.Now())
	if err := s.writeRecord(rec); err != nil {
		return nil, err
	}
	s.lastID = id
	if err := s.syncIndex(model.Summarize(&rec.Job)); err != nil {
		return nil, err
	}
	return rec, nil
}

// AppendStep appends a step to the job's record.
func (s *FileStore) AppendStep(ctx context.Context, jobID model.JobID, step model.Step) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplyAppendStep(rec, step, s.tp.Now())
	})
}

// UpdateStep patches a step in the job's record.
func (s *FileStore) UpdateStep(ctx context.Context, jobID model.JobID, stepID string, patch model.StepPatch) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplyUpdateStep(rec, stepID, patch, s.tp.Now())
	})
}

// SetJobStatus moves the job forward and refreshes its index entry.
func (s *FileStore) SetJobStatus(ctx context.Context, jobID model.JobID, status model.JobStatus) error {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return job.ApplySetStatus(rec, status, s.tp.Now())
	})
}

// ReadJob reads the job's record from disk.
func (s *FileStore) ReadJob(ctx context.Context, jobID model.JobID) (*model.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readRecord(jobID)
}

// ListJobs reads the job index from disk. A missing index is an empty list. While the index
// lags the record files it is derived from the records instead.
func (s *FileStore) ListJobs(ctx context.Context) ([]model.JobSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	stale := s.indexStale
	s.mu.Unlock()
	if stale {
		index, err := s.indexFromRecords()
		if err != nil {
			return nil, err
		}
		sortSummaries(index)
		return index, nil
	}
	return s.readIndex()
}

// JobsByStatus returns the headers of jobs whose index entry shows status.
func (s *FileStore) JobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	index, err := s.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Job
	for _, entry := range index {
		if !matchesStatus(entry, status) {
			continue
		}
		rec, readErr := s.readRecord(entry.ID)
		if readErr != nil {
			if apperrors.IsNotFound(readErr) {
				continue
			}
			return nil, readErr
		}
		if rec.Job.Status == status {
			out = append(out, rec.Job)
		}
	}
	return out, nil
}

// RebuildIndex regenerates processes.json from the record files in the directory.
func (s *FileStore) RebuildIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rebuildIndexLocked()
}

func (s *FileStore) rebuildIndexLocked() error {
	index, err := s.indexFromRecords()
	if err != nil {
		return apperrors.StoreWriteFailed(err, "rebuild job index")
	}
	if err := s.writeIndex(index); err != nil {
		s.indexStale = true
		return err
	}
	s.indexStale = false
	return nil
}

// syncIndex publishes entry, or the whole index rebuilt from the records while it is stale.
// A failed publish leaves the index marked stale.
func (s *FileStore) syncIndex(entry model.JobSummary) error {
	if s.indexStale {
		return s.rebuildIndexLocked()
	}
	err := s.upsertIndex(entry)
	s.indexStale = err != nil
	return err
}

func (s *FileStore) indexFromRecords() ([]model.JobSummary, error) {
	ids, err := s.recordIDs()
	if err != nil {
		return nil, err
	}
	index := make([]model.JobSummary, 0, len(ids))
	for _, id := range ids {
		rec, readErr := s.readRecord(id)
		if readErr != nil {
			s.logger.Warn("skipping unreadable job record", "job_id", id, "error", readErr)
			continue
		}
		index = append(index, model.Summarize(&rec.Job))
	}
	return index, nil
}

func (s *FileStore) mutate(ctx context.Context, jobID model.JobID, fn mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord(jobID)
	if err != nil {
		return err
	}
	before := rec.Job.Status
	if err := fn(rec); err != nil {
		return err
	}
	if err := s.writeRecord(rec); err != nil {
		return err
	}
	if rec.Job.Status != before || s.indexStale {
		return s.syncIndex(model.Summarize(&rec.Job))
	}
	return nil
}

func (s *FileStore) recordPath(id model.JobID) string {
	return filepath.Join(s.dir, recordFilePrefix+id.String()+recordFileSuffix)
}

func (s *FileStore) readRecord(id model.JobID) (*model.JobRecord, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "read job %s", id)
	}
	return decodeRecord(id, data)
}

func (s *FileStore) writeRecord(rec *model.JobRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.recordPath(rec.Job.ID), data); err != nil {
		return apperrors.StoreWriteFailed(err, fmt.Sprintf("publish job %s", rec.Job.ID))
	}
	return nil
}

func (s *FileStore) readIndex() ([]model.JobSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.JobSummary{}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read job index")
	}
	var index []model.JobSummary
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("%w: %w", ErrRecordCorrupt, err), apperrors.ErrCodeInternal,
			"decode job index")
	}
	sortSummaries(index)
	return index, nil
}

func (s *FileStore) upsertIndex(entry model.JobSummary) error {
	index, err := s.readIndex()
	if err != nil {
		s.logger.Warn("job index unreadable; rebuilding from records", "error", err)
		if index, err = s.indexFromRecords(); err != nil {
			return apperrors.StoreWriteFailed(err, "rebuild job index")
		}
	}
	replaced := false
	for i := range index {
		if index[i].ID == entry.ID {
			index[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		index = append(index, entry)
	}
	return s.writeIndex(index)
}

func (s *FileStore) writeIndex(index []model.JobSummary) error {
	sortSummaries(index)
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode job index")
	}
	if err := writeFileAtomic(filepath.Join(s.dir, indexFileName), data); err != nil {
		return apperrors.StoreWriteFailed(err, "publish job index")
	}
	return nil
}

func (s *FileStore) recordIDs() ([]model.JobID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir %s: %w", s.dir, err)
	}
	var ids []model.JobID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, recordFilePrefix) || !strings.HasSuffix(name, recordFileSuffix) {
			continue
		}
		id, parseErr := model.ParseJobID(strings.TrimSuffix(strings.TrimPrefix(name, recordFilePrefix), recordFileSuffix))
		if parseErr != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *FileStore) scanLastID() (model.JobID, error) {
	ids, err := s.recordIDs()
	if err != nil {
		return 0, err
	}
	var last model.JobID
	for _, id := range ids {
		last = max(last, id)
	}
	index, err := s.readIndex()
	if err != nil {
		s.indexStale = len(ids) > 0
		return last, nil
	}
	indexed := make(map[model.JobID]bool, len(index))
	for _, e := range index {
		last = max(last, e.ID)
		indexed[e.ID] = true
	}
	for _, id := range ids {
		if !indexed[id] {
			s.indexStale = true
			break
		}
	}
	return last, nil
}

// writeFileAtomic writes data to a temporary file beside path, fsyncs it, and renames it over
// path. The directory is fsynced afterwards so the rename survives a crash.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			err = errors.Join(err, removeIfExists(tmpName))
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return errors.Join(fmt.Errorf("write temp file: %w", err), tmp.Close())
	}
	if err = tmp.Sync(); err != nil {
		return errors.Join(fmt.Errorf("sync temp file: %w", err), tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	syncDir(dir)
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// syncDir is best effort: some platforms do not support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
