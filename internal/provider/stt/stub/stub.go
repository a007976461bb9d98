// Package stub provides a canned STT transcriber for development and
// tests without cloud credentials.
package stub

import (
	"context"
	"sync"

	"kiosk-orchestrator-service/internal/provider/stt"
)

// DefaultReplies are cycled through by successive calls.
var DefaultReplies = []string{
	"hello there",
	"what time does the workshop start",
	"my name is Aki and I like jasmine tea",
	"thank you very much",
}

// Transcriber implements stt.Transcriber with canned responses.
type Transcriber struct {
	mu      sync.Mutex
	replies []string
	next    int

	// Err, when set, makes every call fail. Used to exercise the
	// fallback-apology path.
	Err error
}

// New creates a stub cycling through replies, or DefaultReplies if none
// are given.
func New(replies ...string) *Transcriber {
	if len(replies) == 0 {
		replies = DefaultReplies
	}
	return &Transcriber{replies: replies}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mode string) (stt.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return stt.Result{}, t.Err
	}
	text := t.replies[t.next%len(t.replies)]
	t.next++
	return stt.Result{Text: text}, nil
}

func (t *Transcriber) Health(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Err
}
