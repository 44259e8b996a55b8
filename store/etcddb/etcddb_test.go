package etcddb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isabella232/bench-1/store"
)

func TestOpenWithoutEndpoints(t *testing.T) {
	_, err := Open(Options{})
	require.Error(t, err)
}

// TestAgainstCluster needs a live cluster, e.g. ETCD_ENDPOINTS=localhost:2379.
func TestAgainstCluster(t *testing.T) {
	eps := os.Getenv("ETCD_ENDPOINTS")
	if eps == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	ctx := context.Background()
	db, err := Open(Options{Endpoints: strings.Split(eps, ","), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer db.Close()

	// More than one transaction's worth of puts.
	ops := make([]store.Op, 0, 300)
	for i := 0; i < 300; i++ {
		ops = append(ops, store.Op{Key: []byte(fmt.Sprintf("etcddbtest/%03d", i)), Value: []byte("v")})
	}
	require.NoError(t, db.Batch(ctx, ops, store.WriteOptions{Sync: true}))

	v, err := db.Get(ctx, []byte("etcddbtest/123"), store.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "v", string(v))

	it, err := db.NewIterator(ctx, store.IteratorOptions{Start: []byte("etcddbtest/"), End: []byte("etcddbtest0")})
	require.NoError(t, err)
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Len(t, keys, 300)
	require.Equal(t, "etcddbtest/000", keys[0])

	require.NoError(t, db.CompactRange(ctx, nil, nil))
	size, err := db.DiskUsage(ctx)
	require.NoError(t, err)
	require.Greater(t, size, uint64(0))
}
