package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/polyview/polyview/pkg/geo"
	"github.com/polyview/polyview/pkg/polygon"
)

// Sentinel errors wrapped by every Fetch failure.
var (
	// ErrNetwork covers transport failures, non-200 statuses, rate-limiter
	// waits cut short by the context, and request construction.
	ErrNetwork = errors.New("fetch: network failure")

	// ErrDecode covers response bodies that polygon.Decode rejects.
	ErrDecode = errors.New("fetch: decode failure")
)

// Fetcher requests the polygons covering one bounding box.
type Fetcher interface {
	Fetch(ctx context.Context, box geo.BoundingBox) ([]polygon.Record, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, box geo.BoundingBox) ([]polygon.Record, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, box geo.BoundingBox) ([]polygon.Record, error) {
	return f(ctx, box)
}

// Gate reports whether the map is being manipulated. Responses that arrive
// while the gate is active are thrown away.
type Gate interface {
	Active() bool
}

// FanOut tunes All.
type FanOut struct {
	// Concurrency caps in-flight fetches; <= 0 means one goroutine per box.
	Concurrency int

	// Gate is polled as each response arrives. Nil never discards.
	Gate Gate

	// Logger receives per-sub-box failures. Nil uses slog.Default().
	Logger *slog.Logger
}

// Result is the joined outcome of one fan-out.
type Result struct {
	// Records holds every decoded record, grouped by sub-box in the order
	// the boxes were given.
	Records []polygon.Record

	// Failed counts sub-boxes whose fetch returned an error.
	Failed int

	// Discarded counts sub-boxes whose response arrived while the gate was
	// active.
	Discarded int
}

// All fetches every box and waits for all of them. It never returns an
// error: failures are absorbed into Result.Failed.
func All(ctx context.Context, f Fetcher, boxes []geo.BoundingBox, opt FanOut) Result {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	perBox := make([][]polygon.Record, len(boxes))
	var failed, discarded atomic.Int32

	var g errgroup.Group
	if opt.Concurrency > 0 {
		g.SetLimit(opt.Concurrency)
	}
	for i, box := range boxes {
		g.Go(func() error {
			recs, err := f.Fetch(ctx, box)
			if err != nil {
				failed.Add(1)
				logger.Warn("fetch: sub-box failed", "box", box.String(), "err", err)
				return nil
			}
			if opt.Gate != nil && opt.Gate.Active() {
				discarded.Add(1)
				logger.Debug("fetch: discarding response, map is moving", "box", box.String())
				return nil
			}
			perBox[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, recs := range perBox {
		total += len(recs)
	}
	merged := make([]polygon.Record, 0, total)
	for _, recs := range perBox {
		merged = append(merged, recs...)
	}
	return Result{
		Records:   merged,
		Failed:    int(failed.Load()),
		Discarded: int(discarded.Load()),
	}
}
