// Package hub fans change events out to websocket subscribers by scope.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultBuffer = 64

type Metrics struct {
	Connected prometheus.Gauge
	Relayed   *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "groombook",
			Subsystem: "realtime",
			Name:      "connected_clients",
			Help:      "Open websocket subscriptions.",
		}),
		Relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groombook",
			Subsystem: "realtime",
			Name:      "relayed_total",
			Help:      "Change frames queued to subscribers.",
		}, []string{"table"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groombook",
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Change frames dropped because a subscriber was too slow.",
		}, []string{"table"}),
	}
}

// Client is one subscription. Frames arrive on Frames until Close.
type Client struct {
	Scope changefeed.Scope

	send   chan []byte
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

func (c *Client) Frames() <-chan []byte { return c.send }

// Close unsubscribes the client and closes its frame channel. Safe to call twice.
func (c *Client) Close() {
	c.hub.unregister(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

type Hub struct {
	mu      sync.RWMutex
	byScope map[string]map[*Client]struct{}
	buffer  int
	metrics *Metrics
}

// New returns a hub whose clients buffer up to buffer frames before dropping.
func New(buffer int, metrics *Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{byScope: map[string]map[*Client]struct{}{}, buffer: buffer, metrics: metrics}
}

func (h *Hub) Subscribe(scope changefeed.Scope) *Client {
	c := &Client{Scope: scope, send: make(chan []byte, h.buffer), hub: h}
	key := scope.String()

	h.mu.Lock()
	if h.byScope[key] == nil {
		h.byScope[key] = map[*Client]struct{}{}
	}
	h.byScope[key][c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connected.Inc()
	}
	return c
}

func (h *Hub) unregister(c *Client) {
	key := c.Scope.String()
	h.mu.Lock()
	m := h.byScope[key]
	_, ok := m[c]
	if ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byScope, key)
		}
	}
	h.mu.Unlock()

	if ok && h.metrics != nil {
		h.metrics.Connected.Dec()
	}
}

// Publish queues change for every subscriber of each scope and returns how
// many frames were queued. A subscriber whose buffer is full misses the frame
// and is closed so it reconnects and reloads.
func (h *Hub) Publish(table string, scopes []changefeed.Scope, change json.RawMessage) int {
	queued := 0
	var slow []*Client
	for _, scope := range scopes {
		key := scope.String()
		h.mu.RLock()
		m := h.byScope[key]
		clients := make([]*Client, 0, len(m))
		for c := range m {
			clients = append(clients, c)
		}
		h.mu.RUnlock()
		if len(clients) == 0 {
			continue
		}

		frame, err := json.Marshal(changefeed.Message{Table: table, Scope: key, Change: change})
		if err != nil {
			continue
		}
		for _, c := range clients {
			ok, full := c.offer(frame)
			switch {
			case ok:
				queued++
				if h.metrics != nil {
					h.metrics.Relayed.WithLabelValues(table).Inc()
				}
			case full:
				slow = append(slow, c)
				if h.metrics != nil {
					h.metrics.Dropped.WithLabelValues(table).Inc()
				}
			}
		}
	}
	for _, c := range slow {
		c.Close()
	}
	return queued
}

// offer queues frame without blocking. full reports a drop caused by a
// saturated buffer rather than a closed client.
func (c *Client) offer(frame []byte) (ok, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- frame:
		return true, false
	default:
		return false, true
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byScope {
		n += len(m)
	}
	return n
}
