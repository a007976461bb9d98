// Package machine implements the conversation state machine as a pure
// transition function over (state, event, now). It never performs I/O and
// never panics to its caller; anything it wants done comes back as
// commands to broadcast or a dispatch to hand to the task coordinator.
package machine

import (
	"strings"
	"time"

	"kiosk-orchestrator-service/internal/clock"
	"kiosk-orchestrator-service/internal/models"
)

// FallbackApology is spoken verbatim whenever transcription fails or
// produces nothing usable.
const FallbackApology = "Sorry, I couldn't catch that. Could you say it again?"

// State is the full machine state: the live session plus the correlation
// token of the in-flight capture, if any.
type State struct {
	Session models.KioskSession

	// SttRequestID is minted on record_stop and is the only token the
	// subsequent audio upload and async completions may reference.
	SttRequestID string
}

// Initial returns the machine's starting state.
func Initial() State {
	return State{Session: models.NewKioskSession()}
}

// DispatchKind names an asynchronous provider call the orchestrator
// should launch as a result of a transition.
type DispatchKind int

const (
	// DispatchChat asks the task coordinator to run a dialogue turn.
	DispatchChat DispatchKind = iota
)

// Dispatch is a provider call requested by a transition.
type Dispatch struct {
	Kind         DispatchKind
	UserText     string
	SttRequestID string
}

// Result is the outcome of one transition.
type Result struct {
	State    State
	Commands []models.Command
	Dispatch *Dispatch

	// Stale marks a completion event whose correlation token no longer
	// matches the current capture; the orchestrator drops it silently.
	Stale bool
}

// Step applies one event. It is deterministic given the injected id
// generator and never mutates its input.
func Step(s State, ev models.Event, now time.Time, ids clock.IDGenerator) Result {
	switch ev.Type {
	case models.EventKioskPTTDown, models.EventStaffPTTDown:
		return pttDown(s)
	case models.EventKioskPTTUp, models.EventStaffPTTUp:
		return pttUp(s, ids)
	case models.EventStaffResetSession:
		return Result{State: Initial()}
	case models.EventStaffResume:
		return resume(s)
	case models.EventTranscriptionComplete:
		return transcriptionComplete(s, ev)
	case models.EventTranscriptionFailed:
		return transcriptionFailed(s, ev)
	case models.EventLLMComplete:
		return llmComplete(s, ev)
	case models.EventToolCallsReceived:
		return toolCallsReceived(s, ev)
	case models.EventInactivityTimeout:
		return inactivityTimeout(s)
	}
	// Unknown types are rejected at the boundary; reaching here is a no-op.
	return Result{State: s}
}

func pttDown(s State) Result {
	switch s.Session.Phase {
	case models.PhaseIdle, models.PhaseSpeaking:
		// Starting a new capture implicitly ends any playback.
		s.Session.Phase = models.PhaseListening
		return Result{
			State:    s,
			Commands: []models.Command{{Type: models.CmdRecordStart}},
		}
	}
	return Result{State: s}
}

func pttUp(s State, ids clock.IDGenerator) Result {
	if s.Session.Phase != models.PhaseListening {
		return Result{State: s}
	}
	s.Session.Phase = models.PhaseTranscribing
	s.SttRequestID = ids.NewID()
	return Result{
		State: s,
		Commands: []models.Command{
			{Type: models.CmdRecordStop, SttRequestID: s.SttRequestID},
		},
	}
}

func resume(s State) Result {
	if s.Session.Phase == models.PhaseIdle {
		return Result{State: s}
	}
	s.Session.Phase = models.PhaseIdle
	s.SttRequestID = ""
	return Result{State: s}
}

func transcriptionComplete(s State, ev models.Event) Result {
	if stale(s, ev, models.PhaseTranscribing) {
		return Result{State: s, Stale: true}
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return apology(s)
	}
	s.Session.Phase = models.PhaseThinking
	return Result{
		State: s,
		Dispatch: &Dispatch{
			Kind:         DispatchChat,
			UserText:     text,
			SttRequestID: s.SttRequestID,
		},
	}
}

func transcriptionFailed(s State, ev models.Event) Result {
	if stale(s, ev, models.PhaseTranscribing) {
		return Result{State: s, Stale: true}
	}
	return apology(s)
}

func llmComplete(s State, ev models.Event) Result {
	if stale(s, ev, models.PhaseThinking) {
		return Result{State: s, Stale: true}
	}
	if ev.Assistant == nil || strings.TrimSpace(ev.Assistant.Text) == "" {
		return apology(s)
	}
	s.Session.Phase = models.PhaseSpeaking
	s.SttRequestID = ""
	return Result{State: s, Commands: speakBurst(*ev.Assistant)}
}

func toolCallsReceived(s State, ev models.Event) Result {
	if stale(s, ev, models.PhaseThinking) {
		return Result{State: s, Stale: true}
	}
	refs := make([]models.ToolCallRef, 0, len(ev.ToolCalls))
	for _, tc := range ev.ToolCalls {
		// Call arguments never reach the wire.
		refs = append(refs, models.ToolCallRef{
			ID:       tc.ID,
			Function: models.ToolFunction{Name: tc.Name},
		})
	}
	s.Session.Phase = models.PhaseIdle
	s.SttRequestID = ""
	return Result{
		State:    s,
		Commands: []models.Command{{Type: models.CmdToolCalls, ToolCalls: refs}},
	}
}

func inactivityTimeout(s State) Result {
	if s.Session.Phase != models.PhaseSpeaking {
		return Result{State: s}
	}
	s.Session.Phase = models.PhaseIdle
	return Result{State: s}
}

// stale reports whether a completion event belongs to a superseded capture:
// either the machine has left the phase that produced it, or the event's
// correlation token no longer matches the current one.
func stale(s State, ev models.Event, want models.Phase) bool {
	return s.Session.Phase != want || s.SttRequestID == "" || ev.SttRequestID != s.SttRequestID
}

// apology ends the turn with the fixed spoken fallback.
func apology(s State) Result {
	s.Session.Phase = models.PhaseSpeaking
	s.SttRequestID = ""
	return Result{
		State: s,
		Commands: speakBurst(models.AssistantTurn{
			Text:       FallbackApology,
			Expression: "sad",
		}),
	}
}

// speakBurst is the fixed speak + speech.start/segment/end sequence for
// one assistant utterance.
func speakBurst(turn models.AssistantTurn) []models.Command {
	return []models.Command{
		{Type: models.CmdSpeak, Text: turn.Text, Expression: turn.Expression, MotionID: turn.MotionID},
		{Type: models.CmdSpeechStart},
		{Type: models.CmdSpeechSegment, Text: turn.Text},
		{Type: models.CmdSpeechEnd},
	}
}
