// Package buffer implements the bounded conversation-history compactor.
// It is a lossy FIFO with a running textual digest, not a semantic
// summarizer: oldest messages are folded into excerpts so the retained
// window never exceeds its configured bounds.
package buffer

import (
	"fmt"
	"strings"
)

// Message is one conversation turn.
type Message struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Limits bounds the buffer. All counts are in runes.
type Limits struct {
	MaxMessages            int
	MaxMessageChars        int
	MaxTotalChars          int
	FoldExcerptChars       int
	MaxRunningSummaryChars int
}

// DefaultLimits are the production bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxMessages:            20,
		MaxMessageChars:        600,
		MaxTotalChars:          6000,
		FoldExcerptChars:       60,
		MaxRunningSummaryChars: 1200,
	}
}

// Buffer holds the retained recent messages plus the folded digest.
type Buffer struct {
	RunningSummary string
	Messages       []Message
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append clamps msg, appends it, then folds until the buffer is back
// within lim. The bounds hold after every call, not only eventually.
func (b *Buffer) Append(msg Message, lim Limits) {
	msg.Text = clamp(msg.Text, lim.MaxMessageChars)
	b.Messages = append(b.Messages, msg)

	for len(b.Messages) > lim.MaxMessages || b.totalChars() > lim.MaxTotalChars {
		if len(b.Messages) == 0 {
			break
		}
		b.fold(lim)
	}
}

// Reset clears retained messages and the running summary.
func (b *Buffer) Reset() {
	b.RunningSummary = ""
	b.Messages = nil
}

// Empty reports whether nothing has been accumulated.
func (b *Buffer) Empty() bool {
	return len(b.Messages) == 0 && b.RunningSummary == ""
}

// fold removes the oldest message and appends its excerpt to the
// running summary, keeping the summary's most recent characters.
func (b *Buffer) fold(lim Limits) {
	oldest := b.Messages[0]
	b.Messages = b.Messages[1:]

	excerpt := clamp(strings.Join(strings.Fields(oldest.Text), " "), lim.FoldExcerptChars)
	label := "U"
	if oldest.Role == "assistant" {
		label = "A"
	}
	entry := fmt.Sprintf("%s:%s", label, excerpt)

	if b.RunningSummary == "" {
		b.RunningSummary = entry
	} else {
		b.RunningSummary = b.RunningSummary + " | " + entry
	}
	b.RunningSummary = clampTail(b.RunningSummary, lim.MaxRunningSummaryChars)
}

// BuildSessionSummaryMessages returns the retained messages with a synthetic
// assistant message carrying the running summary prepended, or the raw
// messages unchanged when nothing has been folded yet.
func (b *Buffer) BuildSessionSummaryMessages(lim Limits) []Message {
	if b.RunningSummary == "" {
		return b.Messages
	}
	out := make([]Message, 0, len(b.Messages)+1)
	out = append(out, Message{
		Role: "assistant",
		Text: "(earlier conversation, condensed: " + clamp(b.RunningSummary, lim.MaxRunningSummaryChars) + ")",
	})
	return append(out, b.Messages...)
}

func (b *Buffer) totalChars() int {
	n := 0
	for _, m := range b.Messages {
		n += len([]rune(m.Text))
	}
	return n
}

// clamp keeps the first n runes of s.
func clamp(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// clampTail keeps the last n runes of s.
func clampTail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
