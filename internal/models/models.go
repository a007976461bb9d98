// Package models defines the data structures shared across the orchestrator:
// the live kiosk session, events, commands, and pending-approval records.
package models

// Mode selects whose conversation the kiosk is holding.
type Mode string

const (
	ModeRoom     Mode = "ROOM"
	ModePersonal Mode = "PERSONAL"
)

// Phase is the conversation phase of the live kiosk session.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseListening    Phase = "listening"
	PhaseTranscribing Phase = "transcribing"
	PhaseThinking     Phase = "thinking"
	PhaseSpeaking     Phase = "speaking"
)

// KioskSession is the single live conversation state. It is reset, never
// destroyed, by a staff reset event.
type KioskSession struct {
	Mode         Mode   `json:"mode"`
	PersonalName string `json:"personal_name"`
	Phase        Phase  `json:"phase"`
}

// NewKioskSession returns the initial session state.
func NewKioskSession() KioskSession {
	return KioskSession{Mode: ModeRoom, Phase: PhaseIdle}
}

// EventType identifies an inbound event. Client-submitted events use the
// uppercase wire names; async completion events use lowercase names and are
// only ever minted internally.
type EventType string

const (
	EventKioskPTTDown      EventType = "KIOSK_PTT_DOWN"
	EventKioskPTTUp        EventType = "KIOSK_PTT_UP"
	EventStaffPTTDown      EventType = "STAFF_PTT_DOWN"
	EventStaffPTTUp        EventType = "STAFF_PTT_UP"
	EventStaffResetSession EventType = "STAFF_RESET_SESSION"
	EventStaffResume       EventType = "STAFF_RESUME"

	// EventConsentDecision is a deprecated client event kept only so old
	// kiosk builds get a clean rejection instead of an unknown-type error.
	EventConsentDecision EventType = "KIOSK_CONSENT_DECISION"

	EventTranscriptionComplete EventType = "transcription_complete"
	EventTranscriptionFailed   EventType = "transcription_failed"
	EventLLMComplete           EventType = "llm_complete"
	EventToolCallsReceived     EventType = "tool_calls_received"
	EventInactivityTimeout     EventType = "inactivity_timeout"
)

// ClientEvent reports whether t may be submitted over the event endpoints.
// Completion events re-enter the state machine internally only.
func (t EventType) ClientEvent() bool {
	switch t {
	case EventKioskPTTDown, EventKioskPTTUp,
		EventStaffPTTDown, EventStaffPTTUp,
		EventStaffResetSession, EventStaffResume:
		return true
	}
	return false
}

// ToolCall is a dialogue-engine function invocation request. Arguments stay
// server-side; only id and name ever reach the wire.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// AssistantTurn is the result of one dialogue-engine call.
type AssistantTurn struct {
	Text       string
	Expression string
	MotionID   string
	ToolCalls  []ToolCall
}

// Event is one inbound occurrence fed to the state machine. Exactly one of
// the payload fields is meaningful depending on Type.
type Event struct {
	Type EventType

	// SttRequestID correlates async completions with the capture that
	// produced them; stale completions are discarded.
	SttRequestID string

	Text      string         // transcription_complete
	Assistant *AssistantTurn // llm_complete
	ToolCalls []ToolCall     // tool_calls_received
}

// CommandType identifies a command pushed to kiosk subscribers.
type CommandType string

const (
	CmdRecordStart   CommandType = "record_start"
	CmdRecordStop    CommandType = "record_stop"
	CmdSpeak         CommandType = "speak"
	CmdSpeechStart   CommandType = "speech.start"
	CmdSpeechSegment CommandType = "speech.segment"
	CmdSpeechEnd     CommandType = "speech.end"
	CmdToolCalls     CommandType = "tool_calls"
)

// ToolCallRef is the wire form of a tool call: id and function name only.
type ToolCallRef struct {
	ID       string       `json:"id"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name string `json:"name"`
}

// Command is one instruction emitted by the state machine for broadcast.
type Command struct {
	Type         CommandType   `json:"type"`
	SttRequestID string        `json:"stt_request_id,omitempty"`
	Text         string        `json:"text,omitempty"`
	Expression   string        `json:"expression,omitempty"`
	MotionID     string        `json:"motion_id,omitempty"`
	ToolCalls    []ToolCallRef `json:"tool_calls,omitempty"`
}

// ApprovalStatus is the lifecycle state of a pending approval record.
type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusConfirmed ApprovalStatus = "confirmed"
	StatusRejected  ApprovalStatus = "rejected"
)

// PendingItem is a proposed fact awaiting staff sign-off.
type PendingItem struct {
	ID           string         `json:"id"`
	PersonalName string         `json:"personal_name"`
	Kind         string         `json:"kind"`
	Value        string         `json:"value"`
	SourceQuote  string         `json:"source_quote,omitempty"`
	Status       ApprovalStatus `json:"status"`
	CreatedAtMs  int64          `json:"created_at_ms"`
	ExpiresAtMs  *int64         `json:"expires_at_ms"`
}

// SummaryPayload is the only shape a stored summary blob is ever read back
// as. Reading through this fixed shape is what redacts transcript, raw
// audio, and STT text fields regardless of what was written.
type SummaryPayload struct {
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics"`
	StaffNotes []string `json:"staff_notes"`
}

// EmptySummaryPayload is the normalized form of a malformed stored blob.
func EmptySummaryPayload() SummaryPayload {
	return SummaryPayload{Topics: []string{}, StaffNotes: []string{}}
}

// PendingSessionSummary is a conversation digest awaiting staff sign-off.
// ExpiresAtMs is nil if and only if Status is confirmed.
type PendingSessionSummary struct {
	ID            string         `json:"id"`
	SchemaVersion int            `json:"schema_version"`
	Trigger       string         `json:"trigger"`
	Title         string         `json:"title"`
	Summary       SummaryPayload `json:"summary_json"`
	Status        ApprovalStatus `json:"status"`
	CreatedAtMs   int64          `json:"created_at_ms"`
	UpdatedAtMs   int64          `json:"updated_at_ms"`
	ExpiresAtMs   *int64         `json:"expires_at_ms"`
}
