// Package actions exposes named, schema-described operations that an
// external conversational agent may invoke, and tracks the lifecycle of
// each invocation so it can be rendered back to the user.
//
// Flow:
//
//	agent → Registry.Invoke(name, args) → validate params → Handler → Invocation → Renderer
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an invocation.
type Status int

const (
	// StatusPending means the handler is still running.
	StatusPending Status = iota
	// StatusComplete means the handler returned a result.
	StatusComplete
	// StatusFailed means validation or the handler returned an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParamType is the JSON type a parameter must have.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Parameter describes one argument of an action.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// Args are the raw arguments of one invocation as decoded from JSON.
type Args map[string]any

// String returns the named argument, or "" when it is absent or not a string.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// HandlerFunc executes an action with validated arguments.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// View is the presentational description of an invocation.
type View struct {
	Title   string   `json:"title"`
	Lines   []string `json:"lines,omitempty"`
	IsError bool     `json:"isError"`
}

func (v View) String() string {
	if len(v.Lines) == 0 {
		return v.Title
	}
	return v.Title + "\n" + strings.Join(v.Lines, "\n")
}

// RenderState is what a renderer sees of an invocation.
type RenderState struct {
	Status Status
	Result any
	Err    error
}

// Renderer turns an invocation state into a View. All three funcs are
// required, so every Status has exactly one rendering.
type Renderer struct {
	Pending  func() View
	Complete func(result any) View
	Failed   func(err error) View
}

// Render dispatches on state.Status.
func (r Renderer) Render(state RenderState) View {
	switch state.Status {
	case StatusPending:
		return r.Pending()
	case StatusComplete:
		return r.Complete(state.Result)
	case StatusFailed:
		return r.Failed(state.Err)
	default:
		return View{Title: fmt.Sprintf("Unknown status %q", state.Status), IsError: true}
	}
}

func (r Renderer) complete() bool {
	return r.Pending != nil && r.Complete != nil && r.Failed != nil
}

// Action is a registry entry.
type Action struct {
	// Name is the unique key the agent calls the action by.
	Name string `json:"name"`

	// Description grounds the agent on what the action does.
	Description string `json:"description"`

	// Parameters are validated in order before the handler runs.
	Parameters []Parameter `json:"parameters"`

	Handler HandlerFunc `json:"-"`
	Render  Renderer    `json:"-"`
}

// Validate checks if the action definition is valid.
func (a *Action) Validate() error {
	if a.Name == "" {
		return ErrActionNameEmpty
	}
	if a.Handler == nil {
		return ErrActionHandlerNil
	}
	if !a.Render.complete() {
		return ErrActionRenderIncomplete
	}
	return nil
}

// Invocation records one call of an action. Values are snapshots; the
// registry publishes a new one on every status change.
type Invocation struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Args       Args      `json:"args"`
	Status     Status    `json:"status"`
	Result     any       `json:"result,omitempty"`
	Err        error     `json:"-"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	render Renderer
}

// State returns the part of the invocation a renderer sees.
func (inv Invocation) State() RenderState {
	return RenderState{Status: inv.Status, Result: inv.Result, Err: inv.Err}
}

// Render describes the invocation using its action's renderer.
func (inv Invocation) Render() View {
	if !inv.render.complete() {
		return View{Title: inv.Status.String()}
	}
	return inv.render.Render(inv.State())
}

// MarshalJSON adds the error message and the rendered view.
func (inv Invocation) MarshalJSON() ([]byte, error) {
	type plain Invocation
	out := struct {
		plain
		Error string `json:"error,omitempty"`
		View  View   `json:"view"`
	}{plain: plain(inv), View: inv.Render()}
	if inv.Err != nil {
		out.Error = inv.Err.Error()
	}
	return json.Marshal(out)
}
