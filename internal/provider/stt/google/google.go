// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"kiosk-orchestrator-service/internal/provider/stt"
)

// Transcriber implements stt.Transcriber using Google Cloud Speech.
type Transcriber struct {
	client       *speech.Client
	languageCode string
	sampleRateHz int32
}

// New creates a Google STT transcriber.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context, languageCode string, sampleRateHz int32) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &Transcriber{
		client:       c,
		languageCode: languageCode,
		sampleRateHz: sampleRateHz,
	}, nil
}

// Transcribe runs one-shot recognition over the complete utterance.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mode string) (stt.Result, error) {
	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: t.sampleRateHz,
			LanguageCode:    t.languageCode,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return stt.Result{}, fmt.Errorf("recognize failed: %w", err)
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		parts = append(parts, r.Alternatives[0].Transcript)
	}
	return stt.Result{Text: strings.Join(parts, " ")}, nil
}

func (t *Transcriber) Health(ctx context.Context) error {
	if t.client == nil {
		return errors.New("speech client is not initialized")
	}
	return nil
}

// Close releases the underlying client.
func (t *Transcriber) Close() error {
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}
