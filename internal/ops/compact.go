package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/pack"
	"github.com/hpungsan/handoff/internal/record"
)

// maxEvents bounds one compact batch.
const maxEvents = 100_000

// CompactInput contains parameters for the Compact operation.
type CompactInput struct {
	Root       string          // required, absolute repo root
	RepoID     string          // optional
	WorkingDir string          // optional, relative to Root
	Events     []handoff.Event // inline events
	EventsPath string          // optional .jsonl file, read after Events
	MaxRefs    int             // default: config max_refs
	MaxBytes   int64           // default: config max_bytes

	// RestrictEventsPath limits EventsPath to Root, the store directory and
	// config allowed_paths. Set for requests from MCP clients.
	RestrictEventsPath bool
}

// PackStat summarises one stored pack.
type PackStat struct {
	Count  int `json:"count"`
	Tokens int `json:"tokens"`
}

// CompactOutput contains the result of the Compact operation.
type CompactOutput struct {
	ID              string                    `json:"id"`
	Path            string                    `json:"path"`
	EventsProcessed int                       `json:"events_processed"`
	EventsFiltered  int                       `json:"events_filtered"`
	SecretsExcluded int                       `json:"secrets_excluded"`
	Metrics         handoff.Metrics           `json:"metrics"`
	Packs           map[record.Depth]PackStat `json:"packs"`
	Pruned          int                       `json:"pruned"`
}

// Compact builds a handoff from file-touch events, writes it with its packs,
// points latest at it and applies retention.
func Compact(ctx context.Context, env *Env, input CompactInput) (*CompactOutput, error) {
	root := strings.TrimSpace(input.Root)
	if root == "" {
		return nil, errors.NewInvalidRequest("root is required")
	}
	if !filepath.IsAbs(root) {
		return nil, errors.NewInvalidRequest("root must be an absolute path")
	}
	root = filepath.Clean(root)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("root is not a directory: %s", root))
	}

	events, err := collectEvents(ctx, env, root, input)
	if err != nil {
		return nil, err
	}

	cfg := env.config()
	maxRefs := input.MaxRefs
	if maxRefs <= 0 {
		maxRefs = cfg.MaxRefs
	}
	maxBytes := input.MaxBytes
	if maxBytes <= 0 {
		maxBytes = cfg.MaxBytes
	}

	res := handoff.BuildFromEvents(events,
		handoff.RepoInfo{Root: root, ID: input.RepoID},
		filepath.ToSlash(strings.TrimSpace(input.WorkingDir)),
		maxRefs, maxBytes,
		env.handoffOptions()...,
	)
	h := res.Handoff

	entry := record.Audit{
		Timestamp: env.timestamp(),
		Run:       record.RunCompact,
		OK:        true,
		Degraded:  res.EventsFiltered > 0,
	}
	h.AddAudit(entry)

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("compact")
	}

	path, err := env.Store.Save(h)
	if err != nil {
		return nil, err
	}

	set := pack.BuildAll(h)
	if err := env.Store.SavePacks(set); err != nil {
		return nil, err
	}
	if err := env.Store.UpdateLatestPointer(h.ID()); err != nil {
		return nil, err
	}
	if err := env.Store.AppendAudit(entry); err != nil {
		env.logger().Warn("audit append failed", "id", h.ID(), "error", err)
	}

	out := &CompactOutput{
		ID:              h.ID(),
		Path:            path,
		EventsProcessed: res.EventsProcessed,
		EventsFiltered:  res.EventsFiltered,
		SecretsExcluded: res.SecretsExcluded,
		Metrics:         h.Metrics(),
		Packs:           make(map[record.Depth]PackStat, 3),
	}
	for _, p := range set.All() {
		out.Packs[p.Depth()] = PackStat{Count: p.Len(), Tokens: p.Tokens()}
	}

	if cfg.RetentionCount > 0 {
		pruned, err := Prune(ctx, env, PruneInput{})
		if err != nil {
			env.logger().Warn("retention prune failed", "error", err)
		} else {
			out.Pruned = len(pruned.Pruned)
		}
	}

	env.logger().Info("compact complete",
		"id", h.ID(),
		"refs", len(h.Refs()),
		"filtered", res.EventsFiltered,
		"secrets_excluded", res.SecretsExcluded,
	)
	return out, nil
}

func collectEvents(ctx context.Context, env *Env, root string, input CompactInput) ([]handoff.Event, error) {
	events := append([]handoff.Event(nil), input.Events...)
	if input.EventsPath == "" {
		if len(events) > maxEvents {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("too many events (max %d)", maxEvents))
		}
		return events, nil
	}

	if input.RestrictEventsPath {
		allowed := append([]string{root, env.Store.Root()}, env.config().AllowedPaths...)
		if err := ValidateAllowedInputPath(input.EventsPath, allowed); err != nil {
			return nil, err
		}
	} else if err := ValidateInputPath(input.EventsPath); err != nil {
		return nil, err
	}
	f, err := os.Open(input.EventsPath)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to open events file: %w", err))
	}
	defer f.Close()

	for ev := range handoff.ReadEvents(f) {
		if len(events)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.NewCancelled("compact")
			}
		}
		events = append(events, ev)
		if len(events) > maxEvents {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("too many events (max %d)", maxEvents))
		}
	}
	return events, nil
}
