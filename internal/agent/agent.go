// Package agent drives a Gemini conversation that can call the registered
// actions and sees the readable event state.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"eventdash/internal/actions"
	"eventdash/internal/readable"

	"google.golang.org/genai"
)

const (
	// DefaultModel is used when GEMINI_MODEL is empty.
	DefaultModel = "gemini-2.5-flash"

	// MaxSteps bounds the model round trips of one Send.
	MaxSteps = 6

	systemPrompt = "You help the user manage their scheduled events. " +
		"Use the available functions to add events or look up events for a date. " +
		"Dates are YYYY-MM-DD and times are HH:mm in the user's local time."
)

// ErrTooManySteps is returned when the model keeps calling functions.
var ErrTooManySteps = errors.New("assistant exceeded the maximum number of steps")

// Generator is the content generation call of *genai.Models.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// StateSource provides the readable state shown to the model.
type StateSource interface {
	Current() readable.State
}

// NewGeminiGenerator returns the Models service of a Gemini API client.
func NewGeminiGenerator(ctx context.Context, apiKey string) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client.Models, nil
}

// Reply is the outcome of one user message.
type Reply struct {
	Text        string               `json:"text"`
	Invocations []actions.Invocation `json:"invocations"`
}

// Assistant keeps one conversation. It is safe for concurrent use; turns
// are serialized.
type Assistant struct {
	gen    Generator
	model  string
	reg    *actions.Registry
	state  StateSource
	logger *slog.Logger

	mu      sync.Mutex
	history []*genai.Content
}

// New returns an assistant using model, or DefaultModel when empty.
func New(gen Generator, model string, reg *actions.Registry, state StateSource, logger *slog.Logger) *Assistant {
	if model == "" {
		model = DefaultModel
	}
	return &Assistant{gen: gen, model: model, reg: reg, state: state, logger: logger}
}

// Send adds text to the conversation and runs model turns until the model
// answers without calling a function. ctx must carry the session cache.
func (a *Assistant) Send(ctx context.Context, text string) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := make([]*genai.Content, len(a.history), len(a.history)+1)
	copy(history, a.history)
	history = append(history, genai.NewContentFromText(text, genai.RoleUser))
	var reply Reply

	for step := 0; step < MaxSteps; step++ {
		resp, err := a.gen.GenerateContent(ctx, a.model, history, a.config())
		if err != nil {
			return reply, fmt.Errorf("failed to generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return reply, errors.New("model returned no candidates")
		}
		history = append(history, resp.Candidates[0].Content)

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			reply.Text = resp.Text()
			a.history = history
			return reply, nil
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			inv, err := a.reg.Invoke(ctx, call.Name, actions.Args(call.Args))
			if inv.ID != "" {
				reply.Invocations = append(reply.Invocations, inv)
			}
			a.logger.Debug("Function call", "name", call.Name, "step", step, "error", err)

			part := genai.NewPartFromFunctionResponse(call.Name, functionResponse(inv, err))
			part.FunctionResponse.ID = call.ID
			parts = append(parts, part)
		}
		history = append(history, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	a.history = history
	return reply, ErrTooManySteps
}

// Reset forgets the conversation.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

func (a *Assistant) config() *genai.GenerateContentConfig {
	st := a.state.Current()
	system := fmt.Sprintf("%s\n\n%s (version %d):\n%s", systemPrompt, st.Description, st.Version, st.Value)
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: Declarations(a.reg.Descriptors())}},
	}
}

func functionResponse(inv actions.Invocation, err error) map[string]any {
	resp := map[string]any{}
	if err != nil {
		resp["error"] = err.Error()
	} else {
		resp["output"] = inv.Result
	}
	if inv.ID != "" {
		resp["view"] = inv.Render().String()
	}
	return resp
}

// Declarations describes actions as Gemini function declarations.
func Declarations(descs []*actions.Action) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(descs))
	for _, a := range descs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(a.Parameters)),
		}
		for _, p := range a.Parameters {
			schema.Properties[p.Name] = &genai.Schema{
				Type:        schemaType(p.Type),
				Description: p.Description,
			}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        a.Name,
			Description: a.Description,
			Parameters:  schema,
		})
	}
	return out
}

func schemaType(t actions.ParamType) genai.Type {
	switch t {
	case actions.TypeNumber:
		return genai.TypeNumber
	case actions.TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
