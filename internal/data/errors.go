package data

import "errors"

// Shared sentinel errors for the job record stores.
var (
	// ErrRecordCorrupt is wrapped when a persisted record cannot be decoded.
	ErrRecordCorrupt = errors.New("job record is corrupt")
	// ErrStoreDirRequired is returned when the file store has no data directory.
	ErrStoreDirRequired = errors.New("data directory is required")
	// ErrDBRequired is returned when the postgres store has no database handle.
	ErrDBRequired = errors.New("database handle is required")
	// ErrRedisRequired is returned when the redis store has no client.
	ErrRedisRequired = errors.New("redis client is required")
)
