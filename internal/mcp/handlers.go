package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env *ops.Env
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env) *Handlers {
	return &Handlers{env: env}
}

// HydrateRequest represents the arguments for handoff_hydrate.
type HydrateRequest struct {
	ID        string `json:"id,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// PackRequest represents the arguments for handoff_pack.
type PackRequest struct {
	ID    string `json:"id,omitempty"`
	Depth string `json:"depth"`
}

// ShowRequest represents the arguments for handoff_show.
type ShowRequest struct {
	ID string `json:"id,omitempty"`
}

// ListRequest represents the arguments for handoff_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// CompactRequest represents the arguments for handoff_compact.
type CompactRequest struct {
	Root       string          `json:"root"`
	Events     []handoff.Event `json:"events,omitempty"`
	EventsPath string          `json:"events_path,omitempty"`
	RepoID     string          `json:"repo_id,omitempty"`
	WorkingDir string          `json:"working_dir,omitempty"`
	MaxRefs    int             `json:"max_refs,omitempty"`
	MaxBytes   int64           `json:"max_bytes,omitempty"`
}

// HandleHydrate handles the handoff_hydrate tool call.
func (h *Handlers) HandleHydrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HydrateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Hydrate(ctx, h.env, ops.HydrateInput{
		ID:        input.ID,
		MaxTokens: input.MaxTokens,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePack handles the handoff_pack tool call.
func (h *Handlers) HandlePack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PackRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Pack(h.env, ops.PackInput{ID: input.ID, Depth: input.Depth})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShow handles the handoff_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Show(h.env, ops.ShowInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the handoff_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(h.env, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCompact handles the handoff_compact tool call.
func (h *Handlers) HandleCompact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CompactRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Compact(ctx, h.env, ops.CompactInput{
		Root:       input.Root,
		RepoID:     input.RepoID,
		WorkingDir: input.WorkingDir,
		Events:     input.Events,
		EventsPath: input.EventsPath,
		MaxRefs:    input.MaxRefs,
		MaxBytes:   input.MaxBytes,

		RestrictEventsPath: true,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// errorResult renders err as a structured tool error. INTERNAL errors and
// errors of unknown type are reported without details.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var hErr *errors.HandoffError
	if stderrors.As(err, &hErr) {
		errorObj := map[string]any{
			"code":    hErr.Code,
			"message": hErr.Message,
			"status":  hErr.Status,
		}
		if err != error(hErr) {
			errorObj["message"] = err.Error()
		}
		if hErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if hErr.Details != nil {
			errorObj["details"] = hErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult wraps data in a JSON tool result.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
