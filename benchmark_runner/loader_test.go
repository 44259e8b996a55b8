package benchmark_runner

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isabella232/bench-1/keyspace"
	"github.com/isabella232/bench-1/store"
)

func TestLoaderBatches(t *testing.T) {
	rs := newRecordingStore()
	gen, err := keyspace.New(2500, keyspace.Options{Keys: keyspace.SeqReverse, ValueSize: 8})
	require.NoError(t, err)

	res, err := NewLoader(zaptest.NewLogger(t)).Load(context.Background(), rs, 2500, gen)
	require.NoError(t, err)

	assert.Equal(t, []batchCall{{1000, false}, {1000, false}, {500, true}}, rs.batches)
	assert.Equal(t, 2500, res.Writes)
	assert.Equal(t, 3, res.Batches)
	assert.EqualValues(t, 2500*(4+8), res.Bytes)
	assert.EqualValues(t, 3, res.Histogram.TotalCount())

	// Every index was written, the first batch starting at the top.
	for _, k := range []string{"0000", "1500", "2499"} {
		_, err := rs.db.Get(context.Background(), []byte(k), store.GetOptions{})
		assert.NoError(t, err, "key %s", k)
	}
}

type failingBatchStore struct {
	*recordingStore
	failAt int
	calls  int
}

func (f *failingBatchStore) Batch(ctx context.Context, ops []store.Op, opts store.WriteOptions) error {
	f.calls++
	if f.calls == f.failAt {
		return errors.New("write stall")
	}
	return f.recordingStore.Batch(ctx, ops, opts)
}

func TestLoaderStopsAtFirstFailure(t *testing.T) {
	fs := &failingBatchStore{recordingStore: newRecordingStore(), failAt: 2}
	gen, err := keyspace.New(5000, keyspace.Options{Keys: keyspace.SeqReverse})
	require.NoError(t, err)

	res, err := NewLoader(zaptest.NewLogger(t)).Load(context.Background(), fs, 5000, gen)
	require.True(t, errors.Is(err, ErrBackend), "got %v", err)
	assert.Equal(t, 2, fs.calls)
	assert.Equal(t, 1, res.Batches)
	assert.Len(t, fs.batches, 1)
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{0, 100, 0},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
		{0, 0, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}
