package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/polyview/polyview/pkg/fetch"
	"github.com/polyview/polyview/pkg/polygon"
	"github.com/polyview/polyview/pkg/viewport"
	"github.com/polyview/polyview/server/internal/metrics"
	"github.com/polyview/polyview/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// readLimit bounds one inbound frame.
	readLimit = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// Allow all origins; apply CORS at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options configures a Hub.
type Options struct {
	// Loader tunes the controller of each new session.
	Loader viewport.Config

	// StatsInterval is how often each session is sent a stats event.
	// Zero disables periodic stats.
	StatsInterval time.Duration

	// Palette colors outbound polygons. Defaults to DefaultPalette.
	Palette Palette

	Logger *slog.Logger
}

// Hub serves one map session per WebSocket connection. All sessions share
// the fetcher; each has its own controller, cache and polygon store.
type Hub struct {
	fetcher  fetch.Fetcher
	store    *store.Store
	metrics  *metrics.Registry
	palette  Palette
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	loader   viewport.Config
	sessions map[*session]struct{}
}

// New creates a Hub. st and reg may be nil.
func New(f fetch.Fetcher, st *store.Store, reg *metrics.Registry, opts Options) *Hub {
	h := &Hub{
		fetcher:  f,
		store:    st,
		metrics:  reg,
		palette:  opts.Palette,
		interval: opts.StatsInterval,
		logger:   opts.Logger,
		loader:   opts.Loader,
		sessions: make(map[*session]struct{}),
	}
	if h.palette == nil {
		h.palette = DefaultPalette{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// SetLoaderConfig replaces the tuning used for sessions opened afterwards.
func (h *Hub) SetLoaderConfig(cfg viewport.Config) {
	h.mu.Lock()
	h.loader = cfg
	h.mu.Unlock()
}

// Run pushes periodic stats to every session. It blocks until ctx is
// cancelled, then closes all active sessions.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.interval > 0 {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-tick:
			h.broadcastStats()
		}
	}
}

// ServeHTTP upgrades the connection and runs a session on it. Blocks until
// the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	s := &session{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
		done:    make(chan struct{}),
		palette: h.palette,
	}
	h.mu.RLock()
	cfg := h.loader
	h.mu.RUnlock()

	logger := h.logger.With("session", s.id)
	s.ctrl = viewport.New(cfg, h.fetcher, s,
		viewport.WithLogger(logger),
		viewport.OnCycle(s.observe),
	)

	h.register(s, r.RemoteAddr)
	defer h.unregister(s)
	logger.Info("ws: session opened", "remote", r.RemoteAddr)

	s.enqueue(Message{Event: EventHello, Data: HelloData{Session: s.id}})

	go s.writePump()
	s.readPump()
	logger.Info("ws: session closed")
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(s *session, remote string) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	if h.store != nil {
		h.store.Open(s.id, remote)
	}
	if h.metrics != nil {
		h.metrics.SessionOpened()
	}
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if !ok {
		return
	}
	s.shutdown()
	if h.store != nil {
		h.store.UpdateStats(s.id, s.ctrl.Stats())
		h.store.Close(s.id)
	}
	if h.metrics != nil {
		h.metrics.SessionClosed()
	}
}

func (h *Hub) broadcastStats() {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		st := s.ctrl.Stats()
		if h.store != nil {
			h.store.UpdateStats(s.id, st)
		}
		// Stats are advisory; drop them for a slow client.
		s.offer(Message{Event: EventStats, Data: StatsData{
			Session:     s.id,
			Interacting: s.ctrl.Interacting(),
			Stats:       st,
		}})
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.conn.Close()
	}
}

// session is one connected map client.
type session struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	ctrl    *viewport.Controller
	palette Palette

	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

// PolygonsReady implements batch.Display. It blocks until the batch is
// queued for writing or the session ends.
func (s *session) PolygonsReady(ctx context.Context, recs []polygon.Record) {
	data, err := json.Marshal(Message{
		Event: EventPolygons,
		Data:  PolygonsData{Batch: toPolygons(recs, s.palette)},
	})
	if err != nil {
		s.hub.logger.Error("ws: encode polygons", "session", s.id, "err", err)
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	case <-ctx.Done():
	}
}

func (s *session) observe(rep viewport.Report) {
	if s.hub.store != nil {
		s.hub.store.RecordCycle(s.id, rep)
	}
	if s.hub.metrics != nil {
		s.hub.metrics.ObserveCycle(rep)
	}
}

// enqueue blocks like PolygonsReady; offer drops when the buffer is full.
func (s *session) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	}
}

func (s *session) offer(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

func (s *session) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
	s.ctrl.Close()
}

func (s *session) handle(raw []byte) error {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch in.Event {
	case EventViewportSettled:
		var v viewport.Viewport
		if err := json.Unmarshal(in.Data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", in.Event, err)
		}
		s.ctrl.ViewportSettled(v)
	case EventInteraction:
		var d InteractionData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return fmt.Errorf("decode %s: %w", in.Event, err)
		}
		s.ctrl.InteractionChanged(d.Active)
	case EventTap:
		var d TapData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return fmt.Errorf("decode %s: %w", in.Event, err)
		}
		reply := TappedData{}
		if rec, ok := s.ctrl.Tapped(d.Lat, d.Lng); ok {
			reply = TappedData{
				ID:     rec.ID,
				Status: rec.Status,
				Title:  s.palette.Title(rec.Status),
				Color:  s.palette.Color(rec.Status),
			}
		}
		s.enqueue(Message{Event: EventTapped, Data: reply})
	default:
		return fmt.Errorf("unknown event %q", in.Event)
	}
	return nil
}

// writePump drains the send channel to the connection and sends periodic
// pings. Runs in its own goroutine per session.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return
		}
	}
}

// readPump dispatches inbound events until the connection closes.
func (s *session) readPump() {
	defer s.conn.Close()
	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := s.handle(raw); err != nil {
			s.hub.logger.Warn("ws: bad message", "session", s.id, "err", err)
			s.offer(Message{Event: EventError, Data: ErrorData{Error: err.Error()}})
		}
	}
}
