package mcp

import (
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/handoff/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"handoff_hydrate": {
		def:     hydrateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHydrate },
	},
	"handoff_pack": {
		def:     packToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePack },
	},
	"handoff_show": {
		def:     showToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShow },
	},
	"handoff_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"handoff_compact": {
		def:     compactToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCompact },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateDisabledTools returns the names in the list that are not tools.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the handoff tools registered, except
// those listed in the config's disabled_tools.
func NewServer(env *ops.Env, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"handoff",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(env)

	disabled := make(map[string]bool)
	if env.Config != nil {
		for _, name := range env.Config.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the handoff tools over stdio until stdin closes.
func Run(env *ops.Env, version string) error {
	return server.ServeStdio(NewServer(env, version))
}
