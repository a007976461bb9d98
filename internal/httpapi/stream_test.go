package httpapi

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kiosk-orchestrator-service/internal/models"
)

// streamReader feeds lines from a live SSE response without letting a
// stalled stream hang the test.
type streamReader struct {
	lines chan string
	errs  chan error
}

func newStreamReader(body *bufio.Reader) *streamReader {
	r := &streamReader{lines: make(chan string, 16), errs: make(chan error, 1)}
	go func() {
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				r.errs <- err
				return
			}
			r.lines <- line
		}
	}()
	return r
}

func (r *streamReader) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-r.lines:
		return line
	case err := <-r.errs:
		t.Fatalf("stream ended early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream line")
	}
	return ""
}

func TestKioskStream_KeepaliveOnIdleConnection(t *testing.T) {
	f := newFixtureKeepalive(t, "pass", 30*time.Millisecond)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/kiosk/stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	r := newStreamReader(bufio.NewReader(resp.Body))

	// The connect snapshot arrives first, at seq 1.
	if line := r.next(t); !strings.HasPrefix(line, "id: 1") {
		t.Fatalf("expected the connect snapshot first, got %q", line)
	}

	// With no data traffic at all, keepalive comment frames still flow.
	saw := false
	for i := 0; i < 20 && !saw; i++ {
		if strings.HasPrefix(r.next(t), ": keepalive") {
			saw = true
		}
	}
	if !saw {
		t.Fatal("no keepalive frame on an idle connection")
	}

	// Closing the hub terminates the handler and ends the response.
	f.hub.CloseAll()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-r.lines:
		case <-r.errs:
			return
		case <-deadline:
			t.Fatal("stream did not terminate after hub close")
		}
	}
}

func TestKioskStream_DeliversCommands(t *testing.T) {
	f := newFixtureKeepalive(t, "pass", time.Minute)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/kiosk/stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	r := newStreamReader(bufio.NewReader(resp.Body))
	if line := r.next(t); !strings.HasPrefix(line, "id: 1") {
		t.Fatalf("expected the connect snapshot first, got %q", line)
	}
	r.next(t) // snapshot data line
	r.next(t) // blank separator

	if err := f.orch.HandleClientEvent(string(models.EventKioskPTTDown)); err != nil {
		t.Fatalf("event: %v", err)
	}

	saw := false
	for i := 0; i < 10 && !saw; i++ {
		if strings.Contains(r.next(t), "kiosk.command.record_start") {
			saw = true
		}
	}
	if !saw {
		t.Fatal("record_start command never reached the open stream")
	}

	f.hub.CloseAll()
}
