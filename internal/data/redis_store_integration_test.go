package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/testutil"
)

func TestRedisStore_Conformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	runStoreConformance(t, func(t *testing.T, tp TimeProvider) jobStore {
		client := testutil.SetupTestRedis(t)
		t.Cleanup(func() { _ = client.Close() })
		s, err := NewRedisStore(client, RedisStoreOptions{TimeProvider: tp})
		require.NoError(t, err)
		return s
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	s, err := NewRedisStore(client, RedisStoreOptions{KeyPrefix: "rb-test:"})
	require.NoError(t, err)
	rec, err := s.CreateJob(ctx, testutil.NewJobRequest().Build())
	require.NoError(t, err)

	exists, err := client.Exists(ctx, "rb-test:job:"+rec.Job.ID.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	n, err := client.HLen(ctx, "rb-test:jobs:index").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.SetJobStatus(ctx, rec.Job.ID, model.JobStatusVoid))
	index, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "Void", index[0].Status)
}

func TestNewRedisStore_RequiresClient(t *testing.T) {
	_, err := NewRedisStore(nil, RedisStoreOptions{})
	require.ErrorIs(t, err, ErrRedisRequired)
}
