package ws

import (
	"encoding/json"

	"github.com/polyview/polyview/pkg/polygon"
	"github.com/polyview/polyview/pkg/viewport"
)

// Inbound event names.
const (
	EventViewportSettled = "viewport_settled"
	EventInteraction     = "interaction"
	EventTap             = "tap"
)

// Outbound event names.
const (
	EventHello    = "hello"
	EventPolygons = "polygons"
	EventTapped   = "tapped"
	EventStats    = "stats"
	EventError    = "error"
)

// Inbound is the JSON envelope a client sends.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InteractionData is the payload of an interaction event.
type InteractionData struct {
	Active bool `json:"active"`
}

// TapData is the payload of a tap event.
type TapData struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Polygon is one overlay in a polygons batch. Ring points are [lng, lat].
type Polygon struct {
	ID     string       `json:"id"`
	Status int          `json:"status"`
	Ring   [][2]float64 `json:"ring"`
	Color  string       `json:"color"`
	Title  string       `json:"title"`
}

// PolygonsData is the payload of a polygons event.
type PolygonsData struct {
	Batch []Polygon `json:"batch"`
}

// TappedData is the payload of a tapped event. All fields are empty on a miss.
type TappedData struct {
	ID     string `json:"id,omitempty"`
	Status int    `json:"status,omitempty"`
	Title  string `json:"title,omitempty"`
	Color  string `json:"color,omitempty"`
}

// HelloData is sent once when a session opens.
type HelloData struct {
	Session string `json:"session"`
}

// StatsData is the payload of a stats event.
type StatsData struct {
	Session     string `json:"session"`
	Interacting bool   `json:"interacting"`
	viewport.Stats
}

// ErrorData reports a rejected inbound message.
type ErrorData struct {
	Error string `json:"error"`
}

func toPolygons(recs []polygon.Record, p Palette) []Polygon {
	out := make([]Polygon, len(recs))
	for i, r := range recs {
		ring := make([][2]float64, len(r.Ring))
		for j, pt := range r.Ring {
			ring[j] = [2]float64{pt[0], pt[1]}
		}
		out[i] = Polygon{
			ID:     r.ID,
			Status: r.Status,
			Ring:   ring,
			Color:  p.Color(r.Status),
			Title:  p.Title(r.Status),
		}
	}
	return out
}
