// Package gemini provides a dialogue engine backed by the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/clock"
	"kiosk-orchestrator-service/internal/models"
	"kiosk-orchestrator-service/internal/provider/llm"
)

const systemPrompt = "You are the friendly voice of an interactive kiosk. " +
	"Keep replies to one or two short spoken sentences."

// Engine implements llm.Engine using google.golang.org/genai.
// The API key is read from the GEMINI_API_KEY environment variable by the
// genai client itself.
type Engine struct {
	client *genai.Client
	model  string
	ids    clock.IDGenerator
}

var _ llm.Engine = (*Engine)(nil)

// New creates a Gemini-backed engine for the given model name.
func New(ctx context.Context, model string, ids clock.IDGenerator) (*Engine, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Engine{client: client, model: model, ids: ids}, nil
}

func (e *Engine) Chat(ctx context.Context, history []buffer.Message) (models.AssistantTurn, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, genai.Role(role)))
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
	if err != nil {
		return models.AssistantTurn{}, fmt.Errorf("generate content failed: %w", err)
	}

	turn := models.AssistantTurn{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = e.ids.NewID()
		}
		args, err := json.Marshal(fc.Args)
		if err != nil {
			args = []byte("{}")
		}
		turn.ToolCalls = append(turn.ToolCalls, models.ToolCall{
			ID:        id,
			Name:      fc.Name,
			Arguments: string(args),
		})
	}
	return turn, nil
}

func (e *Engine) InnerTask(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.Models.GenerateContent(ctx, e.model,
		genai.Text(prompt), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return "", fmt.Errorf("inner task failed: %w", err)
	}
	return resp.Text(), nil
}
