// Package stt defines the interface for speech-to-text providers.
package stt

import "context"

// Result is one completed transcription.
type Result struct {
	Text string
}

// Transcriber defines the call contract for STT providers. Transcribe is
// one-shot over a complete captured utterance.
type Transcriber interface {
	// Transcribe converts captured audio to text. mode hints the
	// conversation mode (ROOM or PERSONAL) for vocabulary biasing.
	Transcribe(ctx context.Context, audio []byte, mode string) (Result, error)

	// Health reports whether the provider is reachable.
	Health(ctx context.Context) error
}
