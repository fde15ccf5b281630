package ops

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hpungsan/handoff/internal/config"
	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/logging"
	"github.com/hpungsan/handoff/internal/record"
	"github.com/hpungsan/handoff/internal/store"
)

// Pagination limits
const (
	DefaultListLimit  = 20
	MaxListLimit      = 100
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Env carries the dependencies shared by every operation.
type Env struct {
	Store  *store.Store
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time // optional, defaults to time.Now
}

// NewEnv returns an Env with defaults filled in for a nil config or logger.
func NewEnv(st *store.Store, cfg *config.Config, logger *slog.Logger) *Env {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Env{Store: st, Config: cfg, Logger: logger}
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func (e *Env) config() *config.Config {
	if e.Config == nil {
		return config.DefaultConfig()
	}
	return e.Config
}

// handoffOptions returns the options every handoff built or loaded by an
// operation shares.
func (e *Env) handoffOptions() []handoff.Option {
	return []handoff.Option{
		handoff.WithClock(e.now),
		handoff.WithBudgets(TierBudgets(e.config())),
		handoff.WithLogger(e.logger()),
	}
}

// TierBudgets converts config tier overrides to handoff budgets. Unknown
// tier names are dropped.
func TierBudgets(cfg *config.Config) handoff.Budgets {
	out := handoff.Budgets{}
	for name, tb := range cfg.Tiers {
		depth, err := ParseDepth(name)
		if err != nil {
			continue
		}
		out[depth] = handoff.Budget{MaxRefs: tb.MaxRefs, MaxBytes: tb.MaxBytes}
	}
	return out
}

// ParseDepth accepts a tier name or its single-letter code, in any case.
func ParseDepth(s string) (record.Depth, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range record.Depths {
		if s == string(d) || s == d.Short() {
			return d, nil
		}
	}
	return "", errors.NewInvalidRequest("depth must be one of shallow, medium, full")
}

// resolveID returns id if set, otherwise the latest pointer target. The
// bool is false when no id was given and no latest pointer exists.
func (e *Env) resolveID(id string) (string, bool, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		if err := store.ValidateID(id); err != nil {
			return "", false, err
		}
		return id, true, nil
	}
	latest, ok := e.Store.LatestID()
	return latest, ok, nil
}

// HandoffSummary is the list and show view of one stored handoff.
type HandoffSummary struct {
	ID         string `json:"id"`
	Created    string `json:"created,omitempty"`
	Root       string `json:"root,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	RepoID     string `json:"repo_id,omitempty"`
	Refs       int    `json:"refs"`
	Excluded   int    `json:"excluded"`
	Latest     bool   `json:"latest"`
	Readable   bool   `json:"readable"`
}

func summarize(h *handoff.Handoff, latest bool) HandoffSummary {
	meta := h.Meta()
	return HandoffSummary{
		ID:         meta.ID,
		Created:    meta.Created,
		Root:       meta.Root,
		WorkingDir: meta.WorkingDir,
		RepoID:     meta.RepoID,
		Refs:       len(h.Refs()),
		Excluded:   h.Excluded(),
		Latest:     latest,
		Readable:   true,
	}
}
