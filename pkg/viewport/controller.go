package viewport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polyview/polyview/pkg/batch"
	"github.com/polyview/polyview/pkg/cache"
	"github.com/polyview/polyview/pkg/fetch"
	"github.com/polyview/polyview/pkg/geo"
	"github.com/polyview/polyview/pkg/polygon"
)

// Viewport is the visible map rectangle and its zoom level. A Zoom <= 0
// means the caller does not know it; the level is then approximated from
// the latitude span. Fractional levels are truncated, so 7.9 counts as 7.
type Viewport struct {
	Bounds geo.BoundingBox `json:"bounds"`
	Zoom   float64         `json:"zoom"`
}

// Config tunes a Controller. Zero fields take the defaults of
// DefaultConfig. Negative SettleDelay or BatchInterval disables that wait.
// MinZoom 0 also means the default of 7; a negative MinZoom turns the zoom
// gate off.
type Config struct {
	Divisions     int
	MinZoom       int
	Debounce      time.Duration
	Concurrency   int
	BatchSize     int
	SettleDelay   time.Duration
	BatchInterval time.Duration
}

// DefaultConfig returns the stock loader tuning.
func DefaultConfig() Config {
	return Config{
		Divisions:     geo.DefaultDivisions,
		MinZoom:       7,
		Debounce:      500 * time.Millisecond,
		Concurrency:   4,
		BatchSize:     batch.DefaultBatchSize,
		SettleDelay:   batch.DefaultSettleDelay,
		BatchInterval: batch.DefaultBatchInterval,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Divisions <= 0 {
		c.Divisions = def.Divisions
	}
	if c.MinZoom == 0 {
		c.MinZoom = def.MinZoom
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = def.SettleDelay
	}
	if c.BatchInterval == 0 {
		c.BatchInterval = def.BatchInterval
	}
	return c
}

// Outcome is where a fetch cycle stopped.
type Outcome int

const (
	SkippedNoViewport Outcome = iota // no viewport has settled yet
	SkippedInteracting
	SkippedZoom
	SkippedCached
	SkippedContained
	SkippedVisited
	Aborted   // interaction began after the fetch started
	Canceled  // context ended
	Partial   // delivered, but a sub-box failed so nothing was committed
	Completed // delivered and committed
)

var outcomeNames = [...]string{
	SkippedNoViewport:  "skipped_no_viewport",
	SkippedInteracting: "skipped_interacting",
	SkippedZoom:        "skipped_zoom",
	SkippedCached:      "skipped_cached",
	SkippedContained:   "skipped_contained",
	SkippedVisited:     "skipped_visited",
	Aborted:            "aborted",
	Canceled:           "canceled",
	Partial:            "partial",
	Completed:          "completed",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Outcomes lists every Outcome in declaration order.
func Outcomes() []Outcome {
	out := make([]Outcome, len(outcomeNames))
	for i := range out {
		out[i] = Outcome(i)
	}
	return out
}

// Fetched reports whether the cycle reached the fan-out.
func (o Outcome) Fetched() bool { return o >= Aborted }

// Report describes one Load.
type Report struct {
	Key       geo.SpatialKey
	Bounds    geo.BoundingBox
	Zoom      int
	Outcome   Outcome
	SubBoxes  int
	Failed    int
	Discarded int
	Fetched   int // records returned by the fan-out
	Stored    int // records new to the store
	Delivered int // records handed to the display
	Duration  time.Duration
}

// Stats is a snapshot of the session state.
type Stats struct {
	cache.Stats
	Stored     int              `json:"stored"`
	LastBounds *geo.BoundingBox `json:"last_bounds,omitempty"`
	Viewport   *Viewport        `json:"viewport,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// OnCycle registers fn to receive every Report, including skipped cycles.
func OnCycle(fn func(Report)) Option {
	return func(c *Controller) { c.onCycle = fn }
}

// Controller runs fetch cycles for one map session.
type Controller struct {
	cfg     Config
	fetcher fetch.Fetcher
	display batch.Display
	logger  *slog.Logger
	onCycle func(Report)

	cache       *cache.Cache
	store       *polygon.Store
	interaction Interaction
	debounce    *Debouncer

	mu         sync.Mutex
	current    Viewport
	hasCurrent bool
	lastBounds geo.BoundingBox
	hasLast    bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Controller with empty session state. display receives
// every delivered chunk.
func New(cfg Config, f fetch.Fetcher, display batch.Display, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		fetcher:  f,
		display:  display,
		logger:   slog.Default(),
		cache:    cache.New(),
		store:    polygon.NewStore(),
		debounce: NewDebouncer(cfg.Debounce),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ViewportSettled records v as the current viewport and schedules a
// debounced Load. While an interaction is in progress the viewport is
// recorded but nothing is scheduled.
func (c *Controller) ViewportSettled(v Viewport) {
	v.Bounds = v.Bounds.Normalize()
	c.mu.Lock()
	c.current = v
	c.hasCurrent = true
	c.mu.Unlock()

	if c.interaction.Active() || c.ctx.Err() != nil {
		return
	}
	c.debounce.Arm(func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.wg.Add(1)
		c.mu.Unlock()
		defer c.wg.Done()
		c.Load(c.ctx)
	})
}

// InteractionChanged sets the interaction flag. Starting an interaction
// cancels a pending debounced Load.
func (c *Controller) InteractionChanged(active bool) {
	c.interaction.Set(active)
	if active {
		c.debounce.Stop()
	}
}

// Interacting reports the interaction flag.
func (c *Controller) Interacting() bool { return c.interaction.Active() }

// Load runs one fetch cycle against the current viewport and blocks until
// it ends.
func (c *Controller) Load(ctx context.Context) Report {
	start := time.Now()
	rep := c.load(ctx)
	rep.Duration = time.Since(start)

	c.logger.Debug("viewport: cycle finished",
		"key", string(rep.Key),
		"outcome", rep.Outcome.String(),
		"sub_boxes", rep.SubBoxes,
		"failed", rep.Failed,
		"fetched", rep.Fetched,
		"delivered", rep.Delivered,
		"duration", rep.Duration)
	if c.onCycle != nil {
		c.onCycle(rep)
	}
	return rep
}

func (c *Controller) load(ctx context.Context) Report {
	c.mu.Lock()
	v, ok := c.current, c.hasCurrent
	last, hasLast := c.lastBounds, c.hasLast
	c.mu.Unlock()

	if !ok {
		return Report{Outcome: SkippedNoViewport}
	}

	box := v.Bounds
	key := geo.KeyOf(box)
	zoom := int(v.Zoom)
	if v.Zoom <= 0 {
		zoom = geo.ApproxZoom(box)
	}
	rep := Report{Key: key, Bounds: box, Zoom: zoom}

	switch {
	case c.interaction.Active():
		rep.Outcome = SkippedInteracting
		return rep
	case zoom <= c.cfg.MinZoom:
		rep.Outcome = SkippedZoom
		return rep
	case c.cache.Has(key):
		rep.Outcome = SkippedCached
		return rep
	case hasLast && box.Within(last):
		rep.Outcome = SkippedContained
		return rep
	case c.cache.Visited(key):
		rep.Outcome = SkippedVisited
		return rep
	}

	boxes := geo.Split(box, c.cfg.Divisions)
	rep.SubBoxes = len(boxes)
	res := fetch.All(ctx, c.fetcher, boxes, fetch.FanOut{
		Concurrency: c.cfg.Concurrency,
		Gate:        &c.interaction,
		Logger:      c.logger,
	})
	// The untiled box becomes the LastBounds candidate once every sub-box
	// has answered.
	candidate := box
	rep.Failed = res.Failed
	rep.Discarded = res.Discarded
	rep.Fetched = len(res.Records)

	if ctx.Err() != nil {
		rep.Outcome = Canceled
		return rep
	}
	if res.Discarded > 0 || c.interaction.Active() {
		rep.Outcome = Aborted
		return rep
	}

	rep.Stored = c.store.Append(res.Records...)

	c.mu.Lock()
	visible := c.current.Bounds
	c.mu.Unlock()
	// A polygon straddling sub-box edges comes back once per sub-box;
	// the first copy wins, as in the store.
	inView := make([]polygon.Record, 0, len(res.Records))
	merged := make(map[string]struct{}, len(res.Records))
	for _, r := range res.Records {
		if _, dup := merged[r.ID]; dup {
			continue
		}
		merged[r.ID] = struct{}{}
		if r.Bounds.Intersects(visible) {
			inView = append(inView, r)
		}
	}

	loader := &batch.Loader{
		BatchSize:     c.cfg.BatchSize,
		SettleDelay:   c.cfg.SettleDelay,
		BatchInterval: c.cfg.BatchInterval,
		Display:       c.display,
		Rendered:      c.cache,
		Gate:          &c.interaction,
		Logger:        c.logger,
	}
	out, st := loader.Run(ctx, inView)
	rep.Delivered = st.Delivered

	switch out {
	case batch.Aborted:
		rep.Outcome = Aborted
		return rep
	case batch.Canceled:
		rep.Outcome = Canceled
		return rep
	}
	if res.Failed > 0 {
		rep.Outcome = Partial
		return rep
	}

	c.cache.Commit(key)
	c.mu.Lock()
	c.lastBounds, c.hasLast = candidate, true
	c.mu.Unlock()
	rep.Outcome = Completed
	return rep
}

// Tapped returns the rendered polygon under the coordinate, if any.
func (c *Controller) Tapped(lat, lng float64) (polygon.Record, bool) {
	return c.store.HitTest(lat, lng, c.cache.IsRendered)
}

// LastBounds returns the box of the most recent completed cycle.
func (c *Controller) LastBounds() (geo.BoundingBox, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBounds, c.hasLast
}

// Stats returns a snapshot of the session state.
func (c *Controller) Stats() Stats {
	st := Stats{Stats: c.cache.Stats(), Stored: c.store.Len()}
	c.mu.Lock()
	if c.hasLast {
		lb := c.lastBounds
		st.LastBounds = &lb
	}
	if c.hasCurrent {
		v := c.current
		st.Viewport = &v
	}
	c.mu.Unlock()
	return st
}

// Close cancels pending and running cycles and waits for them to return.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.debounce.Stop()
	c.cancel()
	c.wg.Wait()
}
