// Package stub provides a fixed-shape dialogue engine for development
// and tests.
package stub

import (
	"context"
	"sync"

	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/models"
	"kiosk-orchestrator-service/internal/provider/llm"
)

// Engine implements llm.Engine with canned turns.
type Engine struct {
	mu    sync.Mutex
	turns []models.AssistantTurn
	next  int

	// Err, when set, makes every call fail.
	Err error
}

var _ llm.Engine = (*Engine)(nil)

// New creates a stub engine cycling through turns, or a single fixed
// greeting if none are given.
func New(turns ...models.AssistantTurn) *Engine {
	if len(turns) == 0 {
		turns = []models.AssistantTurn{
			{Text: "Thanks for stopping by! How can I help?", Expression: "happy"},
		}
	}
	return &Engine{turns: turns}
}

func (e *Engine) Chat(ctx context.Context, history []buffer.Message) (models.AssistantTurn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return models.AssistantTurn{}, e.Err
	}
	turn := e.turns[e.next%len(e.turns)]
	e.next++
	return turn, nil
}

func (e *Engine) InnerTask(ctx context.Context, prompt string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	return `{"summary":"","topics":[],"staff_notes":[]}`, nil
}
