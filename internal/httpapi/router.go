// Package httpapi exposes the kiosk and staff REST + streaming surface.
// Handlers stay thin: decode, validate, call into the orchestrator or
// store, encode. All domain decisions live below this layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/events"
	"kiosk-orchestrator-service/internal/hub"
	"kiosk-orchestrator-service/internal/observability/metrics"
	"kiosk-orchestrator-service/internal/orchestrator"
	"kiosk-orchestrator-service/internal/provider/tts"
	"kiosk-orchestrator-service/internal/staff"
	"kiosk-orchestrator-service/internal/store"
)

const staffCookieName = "staff_session"

// Deps carries everything the handlers need.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Hub          *hub.Hub
	Store        *store.Store
	Staff        *staff.Registry
	Publisher    *events.Publisher
	TTS          tts.Synthesizer
	Logger       zerolog.Logger

	MaxAudioBytes int64
	SSEKeepalive  time.Duration
}

type api struct {
	Deps
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewRouter builds the HTTP handler tree for the service.
func NewRouter(deps Deps) http.Handler {
	a := &api{
		Deps:    deps,
		metrics: metrics.DefaultMetrics,
		log:     deps.Logger.With().Str("component", "httpapi").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, CodeMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, CodeNotFound, "no such route")
	})

	r.Get("/v1/health", a.handleHealth)

	r.Route("/v1/kiosk", func(r chi.Router) {
		r.Post("/event", a.handleKioskEvent)
		r.Post("/audio/{sttRequestID}", a.handleAudioUpload)
		r.Post("/tts", a.handleTTS)
		r.Get("/stream", a.handleKioskStream)
	})

	r.Route("/v1/staff", func(r chi.Router) {
		r.Use(requireLAN)
		r.Post("/login", a.handleStaffLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireStaffSession)
			r.Post("/keepalive", a.handleStaffKeepalive)
			r.Post("/event", a.handleStaffEvent)
			r.Get("/stream", a.handleStaffStream)

			r.Get("/pending/items", a.handleListItems)
			r.Post("/pending/items/{id}/confirm", a.handleItemDecision("confirmed"))
			r.Post("/pending/items/{id}/deny", a.handleItemDecision("denied"))

			r.Get("/pending/session-summaries", a.handleListSummaries)
			r.Post("/pending/session-summaries/{id}/confirm", a.handleSummaryDecision("confirmed"))
			r.Post("/pending/session-summaries/{id}/deny", a.handleSummaryDecision("denied"))
		})
	})

	return r
}

// staffToken reads the bearer session from the login cookie.
func staffToken(r *http.Request) string {
	if c, err := r.Cookie(staffCookieName); err == nil {
		return c.Value
	}
	return ""
}

// requireStaffSession runs after the LAN check and enforces a live
// session. It never extends the session; only an explicit keepalive does.
func (a *api) requireStaffSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := staffToken(r)
		if token == "" || !a.Staff.Valid(token) {
			a.metrics.StaffAuthFailures.Inc()
			writeError(w, CodeUnauthorized, "missing or expired staff session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := a.Orchestrator.Health(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"phase":  a.Orchestrator.Session().Phase,
	})
}

type eventRequest struct {
	Type string `json:"type"`
}

func (a *api) handleKioskEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeInvalidJSON, "request body is not valid JSON")
		return
	}
	if err := a.Orchestrator.HandleClientEvent(req.Type); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Staff controls share the kiosk event path; the split endpoint exists so
// the LAN + session middleware applies.
func (a *api) handleStaffEvent(w http.ResponseWriter, r *http.Request) {
	a.handleKioskEvent(w, r)
}

func (a *api) handleAudioUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sttRequestID")

	r.Body = http.MaxBytesReader(w, r.Body, a.MaxAudioBytes)
	audio, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, CodePayloadTooLarge, "audio upload exceeds the configured limit")
			return
		}
		writeError(w, CodeInvalidRequest, "failed to read audio body")
		return
	}

	if err := a.Orchestrator.AcceptAudio(id, audio); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "stt_request_id": id})
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (a *api) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeInvalidJSON, "request body is not valid JSON")
		return
	}
	if req.Text == "" {
		writeError(w, CodeInvalidRequest, "text is required")
		return
	}

	audio, err := a.TTS.Synthesize(r.Context(), req.Text)
	if err != nil {
		a.log.Error().Err(err).Msg("TTS synthesis failed")
		writeError(w, CodeUnavailable, "speech synthesis is unavailable")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

type loginRequest struct {
	Passcode string `json:"passcode"`
}

type sessionResponse struct {
	Token       string `json:"token"`
	ExpiresAtMs int64  `json:"expires_at_ms"`
}

func (a *api) handleStaffLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeInvalidJSON, "request body is not valid JSON")
		return
	}

	sess, err := a.Staff.Login(req.Passcode)
	if err != nil {
		a.metrics.StaffAuthFailures.Inc()
		writeDomainError(w, err)
		return
	}
	a.metrics.StaffLogins.Inc()

	http.SetCookie(w, &http.Cookie{
		Name:     staffCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   a.Staff.MaxAgeSeconds(),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Token: sess.Token, ExpiresAtMs: sess.ExpiresAtMs})
}

func (a *api) handleStaffKeepalive(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Staff.Keepalive(staffToken(r))
	if err != nil {
		a.metrics.StaffAuthFailures.Inc()
		writeDomainError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     staffCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   a.Staff.MaxAgeSeconds(),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Token: sess.Token, ExpiresAtMs: sess.ExpiresAtMs})
}

func (a *api) handleListItems(w http.ResponseWriter, _ *http.Request) {
	items, err := a.Store.ListPendingItems()
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to list pending items")
		writeError(w, CodeInternal, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *api) handleListSummaries(w http.ResponseWriter, _ *http.Request) {
	summaries, err := a.Store.ListPendingSessionSummaries()
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to list pending session summaries")
		writeError(w, CodeInternal, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

func (a *api) handleItemDecision(outcome string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var changed bool
		var err error
		if outcome == "confirmed" {
			changed, err = a.Store.ConfirmItem(id)
		} else {
			changed, err = a.Store.DenyItem(id)
		}
		if err != nil {
			a.log.Error().Err(err).Str("id", id).Msg("Pending item decision failed")
			writeError(w, CodeInternal, "internal error")
			return
		}
		if !changed {
			writeError(w, CodeNotFound, "no pending item with that id")
			return
		}

		a.metrics.PendingClosed.WithLabelValues("item", outcome).Inc()
		a.auditDecision(r, "item", id, outcome)
		a.Orchestrator.NotifyPendingChanged()
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": outcome})
	}
}

func (a *api) handleSummaryDecision(outcome string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var changed bool
		var err error
		if outcome == "confirmed" {
			changed, err = a.Store.ConfirmSessionSummary(id)
		} else {
			changed, err = a.Store.DenySessionSummary(id)
		}
		if err != nil {
			a.log.Error().Err(err).Str("id", id).Msg("Session summary decision failed")
			writeError(w, CodeInternal, "internal error")
			return
		}
		if !changed {
			writeError(w, CodeNotFound, "no pending session summary with that id")
			return
		}

		a.metrics.PendingClosed.WithLabelValues("session_summary", outcome).Inc()
		a.auditDecision(r, "session_summary", id, outcome)
		a.Orchestrator.NotifyPendingChanged()
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": outcome})
	}
}

// auditDecision publishes the decision to Kafka. Publish failures are
// logged inside the publisher and never fail the staff request.
func (a *api) auditDecision(r *http.Request, kind, id, outcome string) {
	ev := events.AuditEvent{
		Kind:      kind,
		ID:        id,
		Outcome:   outcome,
		Timestamp: time.Now().UnixMilli(),
	}
	if kind == "item" {
		_ = a.Publisher.PublishApproval(r.Context(), ev)
	} else {
		_ = a.Publisher.PublishSummary(r.Context(), ev)
	}
}
