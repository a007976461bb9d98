package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/clock"
	"kiosk-orchestrator-service/internal/events"
	"kiosk-orchestrator-service/internal/hub"
	"kiosk-orchestrator-service/internal/models"
	"kiosk-orchestrator-service/internal/orchestrator"
	llmstub "kiosk-orchestrator-service/internal/provider/llm/stub"
	sttstub "kiosk-orchestrator-service/internal/provider/stt/stub"
	"kiosk-orchestrator-service/internal/provider/tts"
	"kiosk-orchestrator-service/internal/staff"
	"kiosk-orchestrator-service/internal/store"
)

type fixture struct {
	router http.Handler
	store  *store.Store
	staff  *staff.Registry
	orch   *orchestrator.Orchestrator
	hub    *hub.Hub
	clk    *clock.Fake
}

func newFixture(t *testing.T, passcode string) *fixture {
	return newFixtureKeepalive(t, passcode, 15*time.Second)
}

func newFixtureKeepalive(t *testing.T, passcode string, keepalive time.Duration) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	clk := clock.NewFake(time.Unix(1700000000, 0))
	ids := &clock.SeqIDs{Prefix: "id"}

	st, err := store.Open(filepath.Join(t.TempDir(), "kiosk.db"), clk, ids, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := staff.NewRegistry(passcode, staff.DefaultTTL, clk, ids, logger)
	h := hub.New(reg.Valid, logger)
	t.Cleanup(h.CloseAll)

	orch := orchestrator.New(orchestrator.Config{
		Store:             st,
		Hub:               h,
		STT:               sttstub.New(),
		LLM:               llmstub.New(),
		Clock:             clk,
		IDs:               ids,
		Logger:            logger,
		BufferLimits:      buffer.DefaultLimits(),
		InactivityTimeout: 90 * time.Second,
	})

	router := NewRouter(Deps{
		Orchestrator:  orch,
		Hub:           h,
		Store:         st,
		Staff:         reg,
		Publisher:     events.New(nil),
		TTS:           &tts.Stub{},
		Logger:        logger,
		MaxAudioBytes: 1024,
		SSEKeepalive:  keepalive,
	})
	return &fixture{router: router, store: st, staff: reg, orch: orch, hub: h, clk: clk}
}

func (f *fixture) do(method, path, remote string, body []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if remote != "" {
		req.RemoteAddr = remote
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an error envelope: %s", rec.Body.String())
	}
	return env.Error.Code
}

func (f *fixture) login(t *testing.T, passcode string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"passcode": passcode})
	rec := f.do(http.MethodPost, "/v1/staff/login", "127.0.0.1:9999", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "staff_session" {
			return c
		}
	}
	t.Fatal("login response set no session cookie")
	return nil
}

func TestKioskEvent_Accepted(t *testing.T) {
	f := newFixture(t, "pass")
	body, _ := json.Marshal(map[string]string{"type": string(models.EventKioskPTTDown)})
	rec := f.do(http.MethodPost, "/v1/kiosk/event", "", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.orch.Session().Phase != models.PhaseListening {
		t.Errorf("event did not reach the orchestrator, phase = %s", f.orch.Session().Phase)
	}
}

func TestKioskEvent_UnknownType(t *testing.T) {
	f := newFixture(t, "pass")
	body, _ := json.Marshal(map[string]string{"type": "NOT_A_THING"})
	rec := f.do(http.MethodPost, "/v1/kiosk/event", "", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if code := errCode(t, rec); code != CodeInvalidRequest {
		t.Errorf("expected invalid_request, got %s", code)
	}
}

func TestKioskEvent_DeprecatedConsent(t *testing.T) {
	f := newFixture(t, "pass")
	body, _ := json.Marshal(map[string]string{"type": string(models.EventConsentDecision)})
	rec := f.do(http.MethodPost, "/v1/kiosk/event", "", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("deprecated consent event must be rejected, got %d", rec.Code)
	}
}

func TestKioskEvent_BadJSON(t *testing.T) {
	f := newFixture(t, "pass")
	rec := f.do(http.MethodPost, "/v1/kiosk/event", "", []byte("{nope"), nil)
	if code := errCode(t, rec); code != CodeInvalidJSON {
		t.Errorf("expected invalid_json, got %s", code)
	}
}

func TestAudioUpload_WrongToken(t *testing.T) {
	f := newFixture(t, "pass")
	rec := f.do(http.MethodPost, "/v1/kiosk/audio/bogus", "", []byte("pcm"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAudioUpload_TooLarge(t *testing.T) {
	f := newFixture(t, "pass")
	huge := bytes.Repeat([]byte{0}, 2048) // fixture limit is 1024
	rec := f.do(http.MethodPost, "/v1/kiosk/audio/bogus", "", huge, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if code := errCode(t, rec); code != CodePayloadTooLarge {
		t.Errorf("expected payload_too_large, got %s", code)
	}
}

func TestTTS_ReturnsAudio(t *testing.T) {
	f := newFixture(t, "pass")
	body, _ := json.Marshal(map[string]string{"text": "hello"})
	rec := f.do(http.MethodPost, "/v1/kiosk/tts", "", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("RIFF")) {
		t.Error("body is not a WAV")
	}
}

func TestStaffSurface_RequiresLAN(t *testing.T) {
	f := newFixture(t, "pass")
	body, _ := json.Marshal(map[string]string{"passcode": "pass"})
	rec := f.do(http.MethodPost, "/v1/staff/login", "203.0.113.7:1234", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-LAN origin, got %d", rec.Code)
	}
	if code := errCode(t, rec); code != CodeForbidden {
		t.Errorf("expected forbidden, got %s", code)
	}
}

func TestStaffLogin_Misconfigured(t *testing.T) {
	f := newFixture(t, "")
	body, _ := json.Marshal(map[string]string{"passcode": "anything"})
	rec := f.do(http.MethodPost, "/v1/staff/login", "127.0.0.1:1", body, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if code := errCode(t, rec); code != CodeMisconfigured {
		t.Errorf("expected misconfigured, got %s", code)
	}
}

func TestStaffLogin_WrongPasscode(t *testing.T) {
	f := newFixture(t, "pass")
	body, _ := json.Marshal(map[string]string{"passcode": "wrong"})
	rec := f.do(http.MethodPost, "/v1/staff/login", "127.0.0.1:1", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestStaffLogin_SetsCookie(t *testing.T) {
	f := newFixture(t, "pass")
	cookie := f.login(t, "pass")
	if cookie.Value == "" {
		t.Error("session cookie has no token")
	}
	if cookie.MaxAge != int(staff.DefaultTTL/time.Second) {
		t.Errorf("cookie Max-Age = %d, want %d", cookie.MaxAge, int(staff.DefaultTTL/time.Second))
	}
}

func TestStaffEndpoints_RequireSession(t *testing.T) {
	f := newFixture(t, "pass")
	rec := f.do(http.MethodGet, "/v1/staff/pending/items", "10.0.0.5:1", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestStaffKeepalive_ExtendsSession(t *testing.T) {
	f := newFixture(t, "pass")
	cookie := f.login(t, "pass")

	f.clk.Advance(100 * time.Second)
	rec := f.do(http.MethodPost, "/v1/staff/keepalive", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("keepalive failed: %d %s", rec.Code, rec.Body.String())
	}

	// Past the original expiry but inside the renewed window.
	f.clk.Advance(100 * time.Second)
	rec = f.do(http.MethodGet, "/v1/staff/pending/items", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Errorf("renewed session rejected: %d", rec.Code)
	}
}

func TestStaffSession_ExpiresWithoutKeepalive(t *testing.T) {
	f := newFixture(t, "pass")
	cookie := f.login(t, "pass")
	f.clk.Advance(staff.DefaultTTL + time.Second)
	rec := f.do(http.MethodGet, "/v1/staff/pending/items", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after expiry, got %d", rec.Code)
	}
}

func TestPendingItem_ConfirmAndDeny(t *testing.T) {
	f := newFixture(t, "pass")
	cookie := f.login(t, "pass")

	id, err := f.store.CreatePending(models.PendingItem{PersonalName: "Aki", Kind: "preference", Value: "window seat"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := f.do(http.MethodPost, "/v1/staff/pending/items/"+id+"/confirm", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d %s", rec.Code, rec.Body.String())
	}

	// Second confirm is a no-op and therefore not found.
	rec = f.do(http.MethodPost, "/v1/staff/pending/items/"+id+"/confirm", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double confirm should be 404, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/v1/staff/pending/items/missing/deny", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id should be 404, got %d", rec.Code)
	}
}

func TestSessionSummary_RoundTrip(t *testing.T) {
	f := newFixture(t, "pass")
	cookie := f.login(t, "pass")

	id, err := f.store.CreateSessionSummary("inactivity", "T", models.SummaryPayload{
		Summary: "s", Topics: []string{}, StaffNotes: []string{},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := f.do(http.MethodGet, "/v1/staff/pending/session-summaries", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}
	var listing struct {
		Summaries []models.PendingSessionSummary `json:"summaries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Summaries) != 1 || listing.Summaries[0].Title != "T" || listing.Summaries[0].Status != models.StatusPending {
		t.Fatalf("unexpected listing: %+v", listing.Summaries)
	}
	if strings.Contains(rec.Body.String(), "full_transcript") {
		t.Error("listing leaked transcript fields")
	}

	rec = f.do(http.MethodPost, "/v1/staff/pending/session-summaries/"+id+"/confirm", "127.0.0.1:1", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/staff/pending/session-summaries", "127.0.0.1:1", nil, cookie)
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Summaries) != 0 {
		t.Errorf("confirmed summary still listed: %+v", listing.Summaries)
	}
}

func TestUnknownRoute_NotFound(t *testing.T) {
	f := newFixture(t, "pass")
	rec := f.do(http.MethodGet, "/v1/nope", "", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if code := errCode(t, rec); code != CodeNotFound {
		t.Errorf("expected not_found, got %s", code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, "pass")
	rec := f.do(http.MethodGet, "/v1/kiosk/event", "", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "pass")
	rec := f.do(http.MethodGet, "/v1/health", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["phase"] != "idle" {
		t.Errorf("unexpected health body: %v", body)
	}
}
