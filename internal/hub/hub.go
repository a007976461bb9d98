// Package hub fans sequenced snapshot and command messages out to
// long-lived streaming subscribers, partitioned into independent kiosk
// and staff pools.
//
// Sequence numbers are per-connection, monotonic from 1, and consumed
// only by delivered frames: a snapshot structurally equal to the last one
// sent on a connection is suppressed and costs nothing. Staff-bound
// connections re-check their session against "now" before every delivery,
// so a message computed under one staff session can never leak onto a
// connection whose own session has lapsed.
package hub

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/observability/metrics"
)

// Audience partitions the subscriber pools.
type Audience string

const (
	AudienceKiosk Audience = "kiosk"
	AudienceStaff Audience = "staff"
)

// subscriber channel depth; a consumer this far behind is closed rather
// than allowed to stall every other delivery.
const frameBuffer = 64

// SessionCheck reports whether a staff token is still valid right now.
type SessionCheck func(token string) bool

// Subscriber is one persistent streaming connection.
type Subscriber struct {
	audience     Audience
	staffToken   string
	seq          uint64
	lastSnapshot []byte

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Frames is the channel of encoded frames to write to the connection.
func (s *Subscriber) Frames() <-chan []byte { return s.frames }

// Done is closed when the hub has terminated this subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Audience returns the pool this subscriber belongs to.
func (s *Subscriber) Audience() Audience { return s.audience }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub owns the subscriber pools.
type Hub struct {
	mu           sync.Mutex
	subs         map[*Subscriber]struct{}
	sessionValid SessionCheck
	metrics      *metrics.Metrics
	log          zerolog.Logger
	closed       bool
}

// New creates an empty hub. sessionValid guards staff-bound deliveries;
// nil means staff subscriptions are never expired (tests only).
func New(sessionValid SessionCheck, logger zerolog.Logger) *Hub {
	return &Hub{
		subs:         make(map[*Subscriber]struct{}),
		sessionValid: sessionValid,
		metrics:      metrics.DefaultMetrics,
		log:          logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers a new connection. staffToken binds a staff
// subscriber to its session and must be empty for kiosk subscribers.
func (h *Hub) Subscribe(aud Audience, staffToken string) *Subscriber {
	sub := &Subscriber{
		audience:   aud,
		staffToken: staffToken,
		frames:     make(chan []byte, frameBuffer),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub] = struct{}{}
	h.metrics.SubscribersActive.WithLabelValues(string(aud)).Inc()
	h.log.Debug().Str("audience", string(aud)).Int("subscribers", len(h.subs)).Msg("Subscriber connected")
	return sub
}

// Unsubscribe removes a connection, typically when its handler returns.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	h.metrics.SubscribersActive.WithLabelValues(string(sub.audience)).Dec()
	sub.close()
}

// SendSnapshot delivers the connect-time snapshot to a single subscriber.
// It seeds the suppression state, so an immediately following broadcast of
// the same body is not re-sent.
func (h *Hub) SendSnapshot(sub *Subscriber, msgType string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(sub, msgType, data, true)
}

// BroadcastSnapshot recomputes and pushes a snapshot to every live
// subscriber of aud, suppressing per-connection where unchanged.
func (h *Hub) BroadcastSnapshot(aud Audience, msgType string, data any) {
	h.broadcast(aud, msgType, data, true)
}

// Broadcast pushes a non-suppressible message (commands, list updates) to
// every live subscriber of aud.
func (h *Hub) Broadcast(aud Audience, msgType string, data any) {
	h.broadcast(aud, msgType, data, false)
}

func (h *Hub) broadcast(aud Audience, msgType string, data any, snapshot bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.audience == aud {
			h.deliverLocked(sub, msgType, data, snapshot)
		}
	}
}

func (h *Hub) deliverLocked(sub *Subscriber, msgType string, data any, snapshot bool) {
	// A subscriber the hub no longer tracks (refused after CloseAll, or
	// already removed) gets nothing.
	if _, ok := h.subs[sub]; !ok {
		return
	}

	// Expiry is enforced against "now" immediately before delivery, even
	// for messages computed while the session was still live.
	if sub.staffToken != "" && h.sessionValid != nil && !h.sessionValid(sub.staffToken) {
		h.metrics.FramesExpiredDrop.Inc()
		h.log.Debug().Msg("Dropping frame for expired staff session")
		h.removeLocked(sub)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("Failed to marshal broadcast payload")
		return
	}

	if snapshot {
		if bytes.Equal(body, sub.lastSnapshot) {
			h.metrics.FramesSuppressed.Inc()
			return
		}
		sub.lastSnapshot = body
	}

	sub.seq++
	frame, err := Encode(Message{Type: msgType, Seq: sub.seq, Data: body})
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("Failed to encode frame")
		return
	}

	select {
	case sub.frames <- frame:
		h.metrics.FramesSent.WithLabelValues(string(sub.audience)).Inc()
	default:
		h.log.Warn().Str("audience", string(sub.audience)).Msg("Closing slow subscriber")
		h.removeLocked(sub)
	}
}

// Count returns the live subscriber count for aud.
func (h *Hub) Count(aud Audience) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for sub := range h.subs {
		if sub.audience == aud {
			n++
		}
	}
	return n
}

// CloseAll terminates every tracked connection so teardown is bounded in
// time. Idempotent; the hub accepts no subscribers afterwards.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}
