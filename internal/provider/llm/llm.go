// Package llm defines the interface for dialogue-engine providers.
package llm

import (
	"context"

	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/models"
)

// Engine defines the call contract for a dialogue engine.
type Engine interface {
	// Chat runs one dialogue turn over the conversation history and
	// returns the assistant's reply, or the tool calls it requested.
	Chat(ctx context.Context, history []buffer.Message) (models.AssistantTurn, error)

	// InnerTask runs an auxiliary prompt expected to return JSON text,
	// used for conversation digests.
	InnerTask(ctx context.Context, prompt string) (string, error)
}
