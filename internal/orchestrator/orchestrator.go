// Package orchestrator owns the live session context and ties the state
// machine, pending store, session buffer, broadcast hub, and providers
// together. All state mutation happens synchronously within one logical
// turn under a single lock; provider calls run as detached tasks whose
// completion re-enters the state machine exactly once.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/clock"
	"kiosk-orchestrator-service/internal/hub"
	"kiosk-orchestrator-service/internal/machine"
	"kiosk-orchestrator-service/internal/models"
	"kiosk-orchestrator-service/internal/observability/metrics"
	"kiosk-orchestrator-service/internal/provider/llm"
	"kiosk-orchestrator-service/internal/provider/stt"
	"kiosk-orchestrator-service/internal/store"
)

// Boundary-level validation errors surfaced to the transport layer.
// Anything else that goes wrong inside an accepted event is logged and
// swallowed; the orchestrator never throws to its caller.
var (
	ErrInvalidEvent   = errors.New("invalid event type")
	ErrUploadMismatch = errors.New("upload does not match the pending stt_request_id")
)

const providerTimeout = 60 * time.Second

// Config wires an Orchestrator.
type Config struct {
	Store             *store.Store
	Hub               *hub.Hub
	STT               stt.Transcriber
	LLM               llm.Engine
	Clock             clock.Clock
	IDs               clock.IDGenerator
	Logger            zerolog.Logger
	BufferLimits      buffer.Limits
	InactivityTimeout time.Duration
}

// Orchestrator is the single owner of the live conversation state.
type Orchestrator struct {
	mu    sync.Mutex
	state machine.State
	buf   *buffer.Buffer

	store   *store.Store
	hub     *hub.Hub
	stt     stt.Transcriber
	llm     llm.Engine
	clk     clock.Clock
	ids     clock.IDGenerator
	limits  buffer.Limits
	idleMax time.Duration

	lastActivity time.Time

	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates an orchestrator in the initial session state.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		state:   machine.Initial(),
		buf:     buffer.New(),
		store:   cfg.Store,
		hub:     cfg.Hub,
		stt:     cfg.STT,
		llm:     cfg.LLM,
		clk:     cfg.Clock,
		ids:     cfg.IDs,
		limits:  cfg.BufferLimits,
		idleMax: cfg.InactivityTimeout,
		metrics: metrics.DefaultMetrics,
		log:     cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// HandleClientEvent validates and applies one client-submitted event.
// Validation failures are the only errors returned; an accepted event
// always succeeds from the caller's point of view.
func (o *Orchestrator) HandleClientEvent(evType string) error {
	t := models.EventType(evType)
	if t == models.EventConsentDecision {
		// Backward-compatibility stub: always rejected, never reaches
		// the state machine.
		o.metrics.EventsRejected.WithLabelValues("deprecated").Inc()
		return ErrInvalidEvent
	}
	if !t.ClientEvent() {
		o.metrics.EventsRejected.WithLabelValues("unknown_type").Inc()
		return ErrInvalidEvent
	}
	o.apply(models.Event{Type: t})
	return nil
}

// AcceptAudio validates the correlation token and hands the captured blob
// to a detached transcription task. The caller returns immediately.
func (o *Orchestrator) AcceptAudio(sttRequestID string, audio []byte) error {
	o.mu.Lock()
	if o.state.Session.Phase != models.PhaseTranscribing || sttRequestID == "" || sttRequestID != o.state.SttRequestID {
		o.mu.Unlock()
		o.metrics.EventsRejected.WithLabelValues("upload_mismatch").Inc()
		return ErrUploadMismatch
	}
	mode := string(o.state.Session.Mode)
	o.mu.Unlock()

	go o.runTranscription(sttRequestID, audio, mode)
	return nil
}

// apply runs one event through the state machine and performs the
// resulting side effects. Any internal failure is caught, logged, and
// treated as a no-op so one bad event cannot take down a stream or the
// process.
func (o *Orchestrator) apply(ev models.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			o.metrics.EventsDropped.WithLabelValues("panic").Inc()
			o.log.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("Recovered while processing event; treated as no-op")
		}
	}()

	now := o.clk.Now()
	res := machine.Step(o.state, ev, now, o.ids)
	if res.Stale {
		o.metrics.EventsDropped.WithLabelValues("stale").Inc()
		o.log.Debug().Str("event", string(ev.Type)).Str("sttRequestId", ev.SttRequestID).Msg("Dropping stale completion")
		return
	}

	o.state = res.State
	o.lastActivity = now
	o.metrics.EventsAccepted.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case models.EventTranscriptionComplete:
		if res.Dispatch != nil {
			o.buf.Append(buffer.Message{Role: "user", Text: res.Dispatch.UserText}, o.limits)
		}
	case models.EventLLMComplete:
		if ev.Assistant != nil && ev.Assistant.Text != "" {
			o.buf.Append(buffer.Message{Role: "assistant", Text: ev.Assistant.Text}, o.limits)
		}
	case models.EventStaffResetSession:
		o.buf.Reset()
	case models.EventToolCallsReceived:
		o.capturePendingLocked(ev.ToolCalls)
	}

	for _, cmd := range res.Commands {
		o.hub.Broadcast(hub.AudienceKiosk, "kiosk.command."+string(cmd.Type), cmd)
	}
	o.broadcastSnapshotsLocked()

	if res.Dispatch != nil {
		history := o.buf.BuildSessionSummaryMessages(o.limits)
		go o.runChat(*res.Dispatch, history)
	}
}

// factToolName is the dialogue tool the engine calls to propose a guest
// fact for later staff approval.
const factToolName = "propose_guest_fact"

type factArgs struct {
	PersonalName string `json:"personal_name"`
	Kind         string `json:"kind"`
	Value        string `json:"value"`
	SourceQuote  string `json:"source_quote"`
}

// capturePendingLocked turns fact-proposing tool calls into pending
// approval items. Arguments are consumed here and only here; the broadcast
// command carries call ids and names, never the arguments.
func (o *Orchestrator) capturePendingLocked(calls []models.ToolCall) {
	for _, tc := range calls {
		if tc.Name != factToolName {
			continue
		}
		var args factArgs
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil || args.Kind == "" || args.Value == "" {
			o.log.Warn().Str("tool", tc.Name).Msg("Discarding malformed fact proposal")
			continue
		}
		id, err := o.store.CreatePending(models.PendingItem{
			PersonalName: args.PersonalName,
			Kind:         args.Kind,
			Value:        args.Value,
			SourceQuote:  args.SourceQuote,
		})
		if err != nil {
			o.log.Error().Err(err).Msg("Failed to store pending item")
			continue
		}
		o.metrics.PendingCreated.Inc()
		o.log.Info().Str("id", id).Str("kind", args.Kind).Msg("Fact proposal stored for staff approval")
	}
}

// runTranscription is a detached task; its completion event re-enters the
// state machine exactly once.
func (o *Orchestrator) runTranscription(sttRequestID string, audio []byte, mode string) {
	ctx, cancel := context.WithTimeout(context.Background(), providerTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.stt.Transcribe(ctx, audio, mode)
	o.metrics.RecordProviderCall("stt", err, time.Since(start).Seconds())

	if err != nil {
		o.log.Warn().Err(err).Msg("Transcription failed, falling back to apology")
		o.apply(models.Event{Type: models.EventTranscriptionFailed, SttRequestID: sttRequestID})
		return
	}
	o.apply(models.Event{Type: models.EventTranscriptionComplete, SttRequestID: sttRequestID, Text: res.Text})
}

// runChat is a detached dialogue turn; exactly one completion event comes
// back regardless of outcome.
func (o *Orchestrator) runChat(d machine.Dispatch, history []buffer.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), providerTimeout)
	defer cancel()

	start := time.Now()
	turn, err := o.llm.Chat(ctx, history)
	o.metrics.RecordProviderCall("llm", err, time.Since(start).Seconds())

	if err != nil {
		o.log.Warn().Err(err).Msg("Dialogue turn failed, falling back to apology")
		o.apply(models.Event{Type: models.EventLLMComplete, SttRequestID: d.SttRequestID})
		return
	}
	if len(turn.ToolCalls) > 0 {
		o.apply(models.Event{Type: models.EventToolCallsReceived, SttRequestID: d.SttRequestID, ToolCalls: turn.ToolCalls})
		return
	}
	o.apply(models.Event{Type: models.EventLLMComplete, SttRequestID: d.SttRequestID, Assistant: &turn})
}

// Health reports the STT provider's reachability; it never touches the
// session lock, so a slow provider call can't block it.
func (o *Orchestrator) Health(ctx context.Context) error {
	return o.stt.Health(ctx)
}

// Session returns a copy of the live session state.
func (o *Orchestrator) Session() models.KioskSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Session
}
