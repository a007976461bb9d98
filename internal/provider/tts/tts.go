// Package tts defines the interface for text-to-speech providers and the
// HTTP engine adapter speaking the two-call audio-query/synthesis
// protocol.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Synthesizer defines the call contract for TTS providers.
type Synthesizer interface {
	// Synthesize renders text to waveform bytes.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Engine calls a local speech-synthesis engine over HTTP: first an
// audio-query call producing synthesis parameters, then a synthesis call
// returning waveform bytes.
type Engine struct {
	baseURL string
	speaker int
	client  *http.Client
}

// NewEngine creates an adapter for the engine at baseURL using the given
// speaker voice.
func NewEngine(baseURL string, speaker int) *Engine {
	return &Engine{
		baseURL: baseURL,
		speaker: speaker,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Engine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker", fmt.Sprint(e.speaker))

	query, err := e.post(ctx, "/audio_query?"+q.Encode(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("audio query failed: %w", err)
	}

	s := url.Values{}
	s.Set("speaker", fmt.Sprint(e.speaker))
	wav, err := e.post(ctx, "/synthesis?"+s.Encode(), query, "application/json")
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return wav, nil
}

func (e *Engine) post(ctx context.Context, path string, body []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Stub synthesizes a short silent WAV, for development without an engine.
type Stub struct {
	// Err, when set, makes every call fail.
	Err error
}

func (s *Stub) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return silentWAV(), nil
}

// silentWAV builds a minimal valid 16-bit mono WAV with 100ms of silence.
func silentWAV() []byte {
	const (
		sampleRate = 16000
		samples    = sampleRate / 10
	)
	dataLen := samples * 2

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	b.Write(make([]byte, dataLen))
	return b.Bytes()
}
