package buffer

import (
	"strings"
	"testing"
)

func tinyLimits() Limits {
	return Limits{
		MaxMessages:            3,
		MaxMessageChars:        4,
		MaxTotalChars:          100,
		FoldExcerptChars:       3,
		MaxRunningSummaryChars: 50,
	}
}

func TestAppend_BoundHoldsAfterEveryAppend(t *testing.T) {
	b := New()
	lim := tinyLimits()

	for i, text := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		b.Append(Message{Role: "user", Text: text}, lim)

		if len(b.Messages) > lim.MaxMessages {
			t.Fatalf("append %d: %d messages exceeds max %d", i, len(b.Messages), lim.MaxMessages)
		}
		if got := b.totalChars(); got > lim.MaxTotalChars {
			t.Fatalf("append %d: %d chars exceeds max %d", i, got, lim.MaxTotalChars)
		}
	}

	if len(b.Messages) != 3 {
		t.Errorf("expected exactly 3 retained messages, got %d", len(b.Messages))
	}
	if b.RunningSummary == "" {
		t.Error("expected non-empty running summary after folding")
	}
}

func TestAppend_ClampsMessageText(t *testing.T) {
	b := New()
	b.Append(Message{Role: "user", Text: "abcdefgh"}, tinyLimits())

	if got := b.Messages[0].Text; got != "abcd" {
		t.Errorf("expected clamped text 'abcd', got %q", got)
	}
}

func TestFold_ExcerptAndLabel(t *testing.T) {
	b := New()
	lim := tinyLimits()
	lim.MaxMessageChars = 20
	lim.FoldExcerptChars = 10

	b.Append(Message{Role: "user", Text: "hello   there\nfriend"}, lim)
	b.Append(Message{Role: "assistant", Text: "hi"}, lim)
	b.Append(Message{Role: "user", Text: "x"}, lim)
	b.Append(Message{Role: "user", Text: "y"}, lim)

	// Oldest ("hello there friend", whitespace-normalized) was folded.
	if !strings.HasPrefix(b.RunningSummary, "U:hello the") {
		t.Errorf("unexpected running summary %q", b.RunningSummary)
	}
}

func TestFold_JoinsWithSeparatorAndKeepsTail(t *testing.T) {
	b := New()
	lim := tinyLimits()

	for _, text := range []string{"aaaa", "bbbb", "cccc", "dddd", "eeee"} {
		b.Append(Message{Role: "assistant", Text: text}, lim)
	}

	if !strings.Contains(b.RunningSummary, " | ") {
		t.Errorf("expected ' | ' separator in %q", b.RunningSummary)
	}

	// Force summary truncation and check the most recent entry survives.
	lim.MaxRunningSummaryChars = 8
	b.Append(Message{Role: "assistant", Text: "ffff"}, lim)
	if got := len([]rune(b.RunningSummary)); got > 8 {
		t.Errorf("running summary length %d exceeds max 8", got)
	}
	if !strings.Contains(b.RunningSummary, "fff") {
		t.Errorf("expected most recent excerpt retained, got %q", b.RunningSummary)
	}
}

func TestBuildSessionSummaryMessages_NoSummary(t *testing.T) {
	b := New()
	lim := tinyLimits()
	b.Append(Message{Role: "user", Text: "hi"}, lim)

	msgs := b.BuildSessionSummaryMessages(lim)
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Errorf("expected raw messages unchanged, got %+v", msgs)
	}
}

func TestBuildSessionSummaryMessages_PrependsDigest(t *testing.T) {
	b := New()
	lim := tinyLimits()
	for _, text := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		b.Append(Message{Role: "user", Text: text}, lim)
	}

	msgs := b.BuildSessionSummaryMessages(lim)
	if len(msgs) != len(b.Messages)+1 {
		t.Fatalf("expected digest message prepended, got %d messages", len(msgs))
	}
	if msgs[0].Role != "assistant" || !strings.Contains(msgs[0].Text, b.RunningSummary) {
		t.Errorf("expected synthetic assistant digest first, got %+v", msgs[0])
	}
}

func TestReset(t *testing.T) {
	b := New()
	lim := tinyLimits()
	for _, text := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		b.Append(Message{Role: "user", Text: text}, lim)
	}

	b.Reset()
	if !b.Empty() {
		t.Error("expected empty buffer after reset")
	}
}
