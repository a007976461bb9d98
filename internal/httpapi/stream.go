package httpapi

import (
	"net/http"
	"time"

	"kiosk-orchestrator-service/internal/hub"
)

// handleKioskStream opens the kiosk-facing event stream.
func (a *api) handleKioskStream(w http.ResponseWriter, r *http.Request) {
	sub := a.Hub.Subscribe(hub.AudienceKiosk, "")
	a.Hub.SendSnapshot(sub, "kiosk.snapshot", a.Orchestrator.KioskSnapshot())
	a.serveStream(w, r, sub)
}

// handleStaffStream opens the staff stream bound to the caller's session.
// The hub re-checks that session before every delivery.
func (a *api) handleStaffStream(w http.ResponseWriter, r *http.Request) {
	sub := a.Hub.Subscribe(hub.AudienceStaff, staffToken(r))
	a.Hub.SendSnapshot(sub, "staff.snapshot", a.Orchestrator.StaffSnapshot())
	a.serveStream(w, r, sub)
}

// serveStream pumps hub frames and keepalives until the client leaves,
// the subscriber is closed, or the hub shuts down.
func (a *api) serveStream(w http.ResponseWriter, r *http.Request, sub *hub.Subscriber) {
	defer a.Hub.Unsubscribe(sub)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, CodeUnavailable, "streaming is not supported on this connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(a.SSEKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			// Flush whatever was queued before the close, then stop.
			for {
				select {
				case frame := <-sub.Frames():
					if _, err := w.Write(frame); err != nil {
						return
					}
					flusher.Flush()
				default:
					return
				}
			}
		case frame := <-sub.Frames():
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := w.Write(hub.Keepalive()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
