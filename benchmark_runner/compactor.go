package benchmark_runner

import (
	"context"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"go.uber.org/zap"

	"github.com/isabella232/bench-1/store"
)

// prefixer is implemented by namespacing wrappers such as store.Sublevel.
type prefixer interface {
	Prefix() []byte
}

// Compactor compacts the written key range on the underlying engine and
// reports its disk usage. Engines without either capability are skipped.
type Compactor struct {
	logger *zap.Logger
	settle time.Duration
}

func NewCompactor(logger *zap.Logger, settle time.Duration) *Compactor {
	return &Compactor{logger: logger, settle: settle}
}

// Compact compacts [start, end] and returns the reported disk usage, 0 when
// unknown. start and end are keys as seen through db.
func (c *Compactor) Compact(ctx context.Context, db store.Store, start, end []byte) (uint64, error) {
	if p, ok := store.ReachdownType[prefixer](db); ok {
		start = withPrefix(p.Prefix(), start)
		end = withPrefix(p.Prefix(), end)
	}

	if rc, ok := store.ReachdownType[store.RangeCompacter](db); ok {
		if err := rc.CompactRange(ctx, start, end); err != nil {
			return 0, backendError(err, "compacting [%q, %q]", start, end)
		}
	} else {
		c.logger.Info("store does not support range compaction, skipping")
	}

	if err := wait(ctx, c.settle); err != nil {
		return 0, err
	}

	du, ok := store.ReachdownType[store.DiskUsager](db)
	if !ok {
		return 0, nil
	}
	size, err := du.DiskUsage(ctx)
	if err != nil {
		return 0, backendError(err, "querying disk usage")
	}
	if size > 0 {
		c.logger.Info("size", zap.String("size", bytefmt.ByteSize(size)))
	}
	return size, nil
}

func withPrefix(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// wait sleeps for d unless ctx is done first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
