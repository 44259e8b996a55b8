package redisdb

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isabella232/bench-1/store"
)

func Test_parseUsedMemory(t *testing.T) {
	tests := []struct {
		name    string
		info    string
		want    uint64
		wantErr bool
	}{
		{"present", "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n", 1048576, false},
		{"missing", "# Memory\r\nused_memory_rss:10\r\n", 0, true},
		{"garbage", "used_memory:lots\r\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUsedMemory(tt.info)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseUsedMemory() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parseUsedMemory() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_globEscape(t *testing.T) {
	if got := globEscape([]byte("!a*b!")); got != `!a\*b!` {
		t.Errorf("globEscape() = %q", got)
	}
	if got := string(commonPrefix([]byte("!bench!0"), []byte("!bench\""))); got != "!bench" {
		t.Errorf("commonPrefix() = %q", got)
	}
}

// TestAgainstServer needs a live server, e.g. REDIS_HOST=localhost:6379.
func TestAgainstServer(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set")
	}
	ctx := context.Background()
	db, err := Open(Options{Host: host, PoolSize: 2})
	require.NoError(t, err)
	defer db.Close()

	ops := make([]store.Op, 0, 50)
	for i := 0; i < 50; i++ {
		ops = append(ops, store.Op{Key: []byte(fmt.Sprintf("!redisdbtest!%02d", i)), Value: []byte("v")})
	}
	require.NoError(t, db.Batch(ctx, ops, store.WriteOptions{Sync: true}))

	v, err := db.Get(ctx, []byte("!redisdbtest!07"), store.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
	_, err = db.Get(ctx, []byte("!redisdbtest!missing"), store.GetOptions{})
	require.ErrorIs(t, err, store.ErrNotFound)

	it, err := db.NewIterator(ctx, store.IteratorOptions{Start: []byte("!redisdbtest!"), End: []byte("!redisdbtest\"")})
	require.NoError(t, err)
	n := 0
	for it.Next() {
		n++
	}
	require.NoError(t, it.Error())
	require.NoError(t, it.Close())
	require.Equal(t, 50, n)

	size, err := db.DiskUsage(ctx)
	require.NoError(t, err)
	require.Greater(t, size, uint64(0))
}
