package mcp

import "github.com/mark3labs/mcp-go/mcp"

var hydrateToolDef = mcp.NewTool("handoff_hydrate",
	mcp.WithDescription(
		"Load the most recent handoff and return the best file-reference pack that fits a token budget. "+
			"Returns item=null with a reason when there is no handoff or nothing fits.",
	),
	mcp.WithString("id",
		mcp.Description("Handoff id. Defaults to the latest handoff."),
	),
	mcp.WithNumber("max_tokens",
		mcp.Description("Token budget for the pack. Defaults to the configured max_tokens."),
	),
)

var packToolDef = mcp.NewTool("handoff_pack",
	mcp.WithDescription("Return the stored pack of one depth tier for a handoff."),
	mcp.WithString("depth",
		mcp.Required(),
		mcp.Description("Tier: shallow, medium or full (or s, m, f)"),
	),
	mcp.WithString("id",
		mcp.Description("Handoff id. Defaults to the latest handoff."),
	),
)

var showToolDef = mcp.NewTool("handoff_show",
	mcp.WithDescription("Show a handoff's header, per-tier metrics, secret exclusion tally and audit log."),
	mcp.WithString("id",
		mcp.Description("Handoff id. Defaults to the latest handoff."),
	),
)

var listToolDef = mcp.NewTool("handoff_list",
	mcp.WithDescription("List stored handoffs, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of handoffs to skip"),
	),
)

var compactToolDef = mcp.NewTool("handoff_compact",
	mcp.WithDescription(
		"Build a handoff from file-touch events, store it with its packs and make it the latest. "+
			"Secret-looking paths are counted but never recorded.",
	),
	mcp.WithString("root",
		mcp.Required(),
		mcp.Description("Absolute repository root"),
	),
	mcp.WithArray("events",
		mcp.Description("File-touch events: objects with path (relative to root) and op (read, write, edit, multi_edit)"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
				"op":   map[string]any{"type": "string"},
			},
		}),
	),
	mcp.WithString("events_path",
		mcp.Description("Path to a .jsonl file of events, read after inline events. Must be inside root, the store directory or a configured allowed_paths entry"),
	),
	mcp.WithString("repo_id",
		mcp.Description("Repository identifier recorded in the handoff header"),
	),
	mcp.WithString("working_dir",
		mcp.Description("Working directory relative to root"),
	),
	mcp.WithNumber("max_refs",
		mcp.Description("Cap on accepted references. Defaults to the configured max_refs."),
	),
	mcp.WithNumber("max_bytes",
		mcp.Description("Cap on cumulative referenced bytes. Defaults to the configured max_bytes."),
	),
)
