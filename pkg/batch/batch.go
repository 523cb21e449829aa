package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/polyview/polyview/pkg/polygon"
)

const (
	DefaultBatchSize     = 500
	DefaultSettleDelay   = 100 * time.Millisecond
	DefaultBatchInterval = 300 * time.Millisecond
)

// Outcome is how a Run ended.
type Outcome int

const (
	// Completed means every chunk was offered to the display.
	Completed Outcome = iota
	// Aborted means the gate reported an interaction before a chunk.
	Aborted
	// Canceled means ctx ended the run.
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Display receives polygon chunks. Implementations must not retain recs
// beyond the call unless they copy it.
type Display interface {
	PolygonsReady(ctx context.Context, recs []polygon.Record)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(ctx context.Context, recs []polygon.Record)

// PolygonsReady calls f.
func (f DisplayFunc) PolygonsReady(ctx context.Context, recs []polygon.Record) { f(ctx, recs) }

// Rendered is the set of ids already handed to the display.
// *cache.Cache satisfies it.
type Rendered interface {
	IsRendered(id string) bool
	MarkRendered(id string)
}

// Gate reports an interaction in progress.
type Gate interface {
	Active() bool
}

// Loader paces chunk delivery. Zero-valued durations and sizes fall back to
// the package defaults; use a negative duration to disable a wait.
type Loader struct {
	BatchSize     int
	SettleDelay   time.Duration
	BatchInterval time.Duration

	Display  Display
	Rendered Rendered
	Gate     Gate
	Logger   *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Stats summarises one Run.
type Stats struct {
	Chunks    int // chunks handed to the display
	Delivered int // polygons handed to the display
	Skipped   int // polygons dropped as already rendered or repeated
}

// Run delivers recs and reports how the sequence ended.
func (l *Loader) Run(ctx context.Context, recs []polygon.Record) (Outcome, Stats) {
	var st Stats
	logger := l.logger()
	size := l.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := Chunks(recs, size)
	seen := make(map[string]struct{}, len(recs))

	for i, chunk := range chunks {
		if i > 0 {
			if err := l.wait(ctx, orDefault(l.BatchInterval, DefaultBatchInterval)); err != nil {
				return Canceled, st
			}
		}
		if l.interacting() {
			logger.Debug("batch: aborted", "chunk", i, "of", len(chunks))
			return Aborted, st
		}

		fresh := make([]polygon.Record, 0, len(chunk))
		for _, r := range chunk {
			if _, dup := seen[r.ID]; dup {
				st.Skipped++
				continue
			}
			seen[r.ID] = struct{}{}
			if l.Rendered != nil && l.Rendered.IsRendered(r.ID) {
				st.Skipped++
				continue
			}
			fresh = append(fresh, r)
		}

		if err := l.wait(ctx, orDefault(l.SettleDelay, DefaultSettleDelay)); err != nil {
			return Canceled, st
		}
		if l.interacting() {
			logger.Debug("batch: aborted before delivery", "chunk", i, "of", len(chunks))
			return Aborted, st
		}

		if len(fresh) > 0 && l.Display != nil {
			l.Display.PolygonsReady(ctx, fresh)
			st.Chunks++
			st.Delivered += len(fresh)
		}
		if l.Rendered != nil {
			for _, r := range fresh {
				l.Rendered.MarkRendered(r.ID)
			}
		}
	}
	return Completed, st
}

// Chunks splits recs into consecutive slices of at most size elements.
// The slices share recs' backing array.
func Chunks(recs []polygon.Record, size int) [][]polygon.Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]polygon.Record, 0, (len(recs)+size-1)/size)
	for start := 0; start < len(recs); start += size {
		end := start + size
		if end > len(recs) {
			end = len(recs)
		}
		out = append(out, recs[start:end:end])
	}
	return out
}

func (l *Loader) interacting() bool {
	return l.Gate != nil && l.Gate.Active()
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Loader) wait(ctx context.Context, d time.Duration) error {
	if l.sleep != nil {
		return l.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
