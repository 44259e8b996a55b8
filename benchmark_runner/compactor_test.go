package benchmark_runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isabella232/bench-1/store"
)

func TestCompactorWithoutCapabilities(t *testing.T) {
	rs := newRecordingStore()
	size, err := NewCompactor(zaptest.NewLogger(t), 0).Compact(context.Background(), bareStore{rs}, []byte("a"), []byte("z"))
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Empty(t, rs.compactions, "capabilities hidden by the wrapper must not be found")
}

func TestCompactorReportsDiskUsage(t *testing.T) {
	rs := newRecordingStore()
	require.NoError(t, rs.Batch(context.Background(), []store.Op{{Key: []byte("k"), Value: []byte("value")}}, store.WriteOptions{}))

	size, err := NewCompactor(zaptest.NewLogger(t), time.Millisecond).Compact(context.Background(), rs, []byte("a"), []byte("z"))
	require.NoError(t, err)
	assert.EqualValues(t, 6, size)
	assert.Equal(t, [][2]string{{"a", "z"}}, rs.compactions)
}

func TestCompactorThroughSublevel(t *testing.T) {
	rs := newRecordingStore()
	db := store.NewThrottled(store.NewSublevel(rs, "ns"), 0, 1)

	_, err := NewCompactor(zaptest.NewLogger(t), 0).Compact(context.Background(), db, []byte("0"), []byte("9"))
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"!ns!0", "!ns!9"}}, rs.compactions)
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, wait(context.Background(), time.Millisecond))
}
