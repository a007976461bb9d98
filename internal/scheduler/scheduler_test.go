package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/clock"
	"kiosk-orchestrator-service/internal/hub"
	"kiosk-orchestrator-service/internal/models"
	"kiosk-orchestrator-service/internal/orchestrator"
	llmstub "kiosk-orchestrator-service/internal/provider/llm/stub"
	sttstub "kiosk-orchestrator-service/internal/provider/stt/stub"
	"kiosk-orchestrator-service/internal/staff"
	"kiosk-orchestrator-service/internal/store"
)

type fixture struct {
	sched *Scheduler
	orch  *orchestrator.Orchestrator
	store *store.Store
	staff *staff.Registry
	clk   *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	clk := clock.NewFake(time.Unix(1700000000, 0))
	ids := &clock.SeqIDs{Prefix: "id"}

	st, err := store.Open(filepath.Join(t.TempDir(), "kiosk.db"), clk, ids, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := staff.NewRegistry("pass", staff.DefaultTTL, clk, ids, logger)
	h := hub.New(reg.Valid, logger)
	t.Cleanup(h.CloseAll)

	orch := orchestrator.New(orchestrator.Config{
		Store:             st,
		Hub:               h,
		STT:               sttstub.New("remember my tea order"),
		LLM:               llmstub.New(),
		Clock:             clk,
		IDs:               ids,
		Logger:            logger,
		BufferLimits:      buffer.DefaultLimits(),
		InactivityTimeout: 90 * time.Second,
	})

	sched := New(5*time.Second, orch, st, reg, logger)
	return &fixture{sched: sched, orch: orch, store: st, staff: reg, clk: clk}
}

// runTurn drives one full voice turn so the conversation buffer is
// non-empty.
func (f *fixture) runTurn(t *testing.T) {
	t.Helper()
	_ = f.orch.HandleClientEvent(string(models.EventKioskPTTDown))
	_ = f.orch.HandleClientEvent(string(models.EventKioskPTTUp))

	// The id generator is a deterministic sequence, so the correlation
	// token minted at PTT_UP is always id-1 here.
	if err := f.orch.AcceptAudio("id-1", []byte("pcm")); err != nil {
		t.Fatalf("upload rejected: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.orch.Session().Phase == models.PhaseSpeaking {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("turn never completed, phase = %s", f.orch.Session().Phase)
}

func TestTick_InactivityCreatesPendingSummary(t *testing.T) {
	f := newFixture(t)
	f.runTurn(t)

	// Still active: nothing folds.
	f.sched.Tick()
	if n, _ := f.store.CountPendingSessionSummaries(); n != 0 {
		t.Fatalf("summary created while session was active")
	}

	f.clk.Advance(91 * time.Second)
	f.sched.Tick()

	if n, _ := f.store.CountPendingSessionSummaries(); n != 1 {
		t.Fatalf("expected one pending summary after inactivity, got %d", n)
	}
	if got := f.orch.Session().Phase; got != models.PhaseIdle {
		t.Errorf("inactivity should return the kiosk to idle, got %s", got)
	}

	// A second tick with the buffer already folded does nothing new.
	f.clk.Advance(91 * time.Second)
	f.sched.Tick()
	if n, _ := f.store.CountPendingSessionSummaries(); n != 1 {
		t.Errorf("idle ticks kept creating summaries, now %d", n)
	}
}

func TestTick_HousekeepsExpiredItems(t *testing.T) {
	f := newFixture(t)

	expiring, err := f.store.CreatePending(models.PendingItem{PersonalName: "Aki", Kind: "preference", Value: "tea"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	kept, err := f.store.CreatePending(models.PendingItem{PersonalName: "Aki", Kind: "preference", Value: "window seat"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.store.ConfirmItem(kept); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	f.clk.Advance(25 * time.Hour)
	f.sched.Tick()

	items, err := f.store.ListPendingItems()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, it := range items {
		if it.ID == expiring {
			t.Error("expired pending item survived housekeeping")
		}
	}

	if n, _ := f.store.CountPendingItems(); n != 0 {
		t.Errorf("pending count after housekeeping = %d, want 0", n)
	}
}

func TestTick_PurgesExpiredStaffSessions(t *testing.T) {
	f := newFixture(t)
	sess, err := f.staff.Login("pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.clk.Advance(staff.DefaultTTL + time.Second)
	f.sched.Tick()

	if f.staff.Valid(sess.Token) {
		t.Error("expired staff session still valid after purge")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.sched.Start()
	f.sched.Stop()
	f.sched.Stop()
}

func TestStop_WithoutStart(t *testing.T) {
	f := newFixture(t)
	f.sched.Stop()
}
