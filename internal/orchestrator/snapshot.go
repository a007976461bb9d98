package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/hub"
	"kiosk-orchestrator-service/internal/models"
)

// KioskState is the kiosk-audience view of the live session.
type KioskState struct {
	Mode             models.Mode  `json:"mode"`
	PersonalName     string       `json:"personal_name"`
	Phase            models.Phase `json:"phase"`
	ConsentUIVisible bool         `json:"consent_ui_visible"`
}

// KioskSnapshotPayload is the kiosk.snapshot data body.
type KioskSnapshotPayload struct {
	State KioskState `json:"state"`
}

// StaffState is the staff-audience view of the live session.
type StaffState struct {
	Mode         models.Mode  `json:"mode"`
	PersonalName string       `json:"personal_name"`
	Phase        models.Phase `json:"phase"`
}

// PendingCounts summarizes what awaits staff sign-off.
type PendingCounts struct {
	Count               int `json:"count"`
	SessionSummaryCount int `json:"session_summary_count"`
}

// StaffSnapshotPayload is the staff.snapshot data body.
type StaffSnapshotPayload struct {
	State   StaffState    `json:"state"`
	Pending PendingCounts `json:"pending"`
}

// SummariesListPayload is the staff.session_summaries_pending_list body.
type SummariesListPayload struct {
	Summaries []models.PendingSessionSummary `json:"summaries"`
}

// KioskSnapshot builds the kiosk-audience snapshot from current state.
func (o *Orchestrator) KioskSnapshot() KioskSnapshotPayload {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.kioskSnapshotLocked()
}

func (o *Orchestrator) kioskSnapshotLocked() KioskSnapshotPayload {
	s := o.state.Session
	return KioskSnapshotPayload{State: KioskState{
		Mode:         s.Mode,
		PersonalName: s.PersonalName,
		Phase:        s.Phase,
		// The consent UI was retired; old kiosk builds still read the flag.
		ConsentUIVisible: false,
	}}
}

// StaffSnapshot builds the staff-audience snapshot, including pending
// counts, from current state.
func (o *Orchestrator) StaffSnapshot() StaffSnapshotPayload {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.staffSnapshotLocked()
}

func (o *Orchestrator) staffSnapshotLocked() StaffSnapshotPayload {
	s := o.state.Session
	counts := o.pendingCounts()
	return StaffSnapshotPayload{
		State:   StaffState{Mode: s.Mode, PersonalName: s.PersonalName, Phase: s.Phase},
		Pending: counts,
	}
}

// pendingCounts reads the store; a storage failure degrades to zeros
// rather than failing the snapshot.
func (o *Orchestrator) pendingCounts() PendingCounts {
	items, err := o.store.CountPendingItems()
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to count pending items")
	}
	summaries, err := o.store.CountPendingSessionSummaries()
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to count pending session summaries")
	}
	return PendingCounts{Count: items, SessionSummaryCount: summaries}
}

func (o *Orchestrator) broadcastSnapshotsLocked() {
	o.hub.BroadcastSnapshot(hub.AudienceKiosk, "kiosk.snapshot", o.kioskSnapshotLocked())
	o.hub.BroadcastSnapshot(hub.AudienceStaff, "staff.snapshot", o.staffSnapshotLocked())
}

// NotifyPendingChanged pushes fresh pending counts and the summary list
// to staff subscribers after a confirm/deny or a new summary.
func (o *Orchestrator) NotifyPendingChanged() {
	list, err := o.store.ListPendingSessionSummaries()
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to list pending session summaries")
		list = []models.PendingSessionSummary{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.hub.BroadcastSnapshot(hub.AudienceStaff, "staff.snapshot", o.staffSnapshotLocked())
	o.hub.Broadcast(hub.AudienceStaff, "staff.session_summaries_pending_list", SummariesListPayload{Summaries: list})
}

// CheckInactivity folds an idle conversation into a pending session
// summary. Called from the tick scheduler.
func (o *Orchestrator) CheckInactivity() {
	o.mu.Lock()
	now := o.clk.Now()
	if o.buf.Empty() || o.lastActivity.IsZero() || now.Sub(o.lastActivity) < o.idleMax {
		o.mu.Unlock()
		return
	}

	fallback, title := o.digestLocked()
	history := o.buf.BuildSessionSummaryMessages(o.limits)
	o.buf.Reset()
	o.lastActivity = now
	o.mu.Unlock()

	payload := o.summarize(history, fallback)

	id, err := o.store.CreateSessionSummary("inactivity", title, payload)
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to store session summary")
		return
	}
	o.metrics.PendingCreated.Inc()
	o.log.Info().Str("id", id).Msg("Conversation folded into pending session summary")

	o.apply(models.Event{Type: models.EventInactivityTimeout})
	o.NotifyPendingChanged()
}

// summarize asks the dialogue engine to condense the conversation. Any
// failure, or a digest that parses but says nothing, falls back to the
// local string digest.
func (o *Orchestrator) summarize(history []buffer.Message, fallback models.SummaryPayload) models.SummaryPayload {
	ctx, cancel := context.WithTimeout(context.Background(), providerTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Condense this kiosk conversation into JSON with keys summary, topics, staff_notes:\n")
	for _, m := range history {
		sb.WriteString(rolePrefix(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}

	start := time.Now()
	raw, err := o.llm.InnerTask(ctx, sb.String())
	o.metrics.RecordProviderCall("llm", err, time.Since(start).Seconds())
	if err != nil {
		o.log.Warn().Err(err).Msg("Digest task failed, using local digest")
		return fallback
	}

	var payload models.SummaryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || strings.TrimSpace(payload.Summary) == "" {
		o.log.Warn().Msg("Digest task returned an unusable payload, using local digest")
		return fallback
	}
	if payload.Topics == nil {
		payload.Topics = []string{}
	}
	if payload.StaffNotes == nil {
		payload.StaffNotes = []string{}
	}
	return payload
}

// digestLocked builds the local summary payload: the running fold digest,
// if any, followed by every retained turn. The digest is lossy; staff
// review it before anything becomes permanent.
func (o *Orchestrator) digestLocked() (models.SummaryPayload, string) {
	payload := models.EmptySummaryPayload()

	title := "Conversation summary"
	for _, m := range o.buf.Messages {
		if m.Role == "user" {
			title = m.Text
			break
		}
	}
	if len([]rune(title)) > 60 {
		title = string([]rune(title)[:60])
	}

	parts := make([]string, 0, len(o.buf.Messages)+1)
	if o.buf.RunningSummary != "" {
		parts = append(parts, o.buf.RunningSummary)
	}
	for _, m := range o.buf.Messages {
		parts = append(parts, rolePrefix(m.Role)+": "+m.Text)
	}
	payload.Summary = strings.Join(parts, " | ")
	return payload, title
}

func rolePrefix(role string) string {
	if role == "assistant" {
		return "A"
	}
	return "U"
}
