// Package handoff accumulates the file references touched in a session into
// a Handoff, enforces the secret policy on every insertion, and serializes
// the result as typed records.
package handoff

import (
	"cmp"
	"crypto/rand"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/handoff/internal/policy"
	"github.com/hpungsan/handoff/internal/record"
)

// Budget bounds one pack tier.
type Budget struct {
	MaxRefs  int   `json:"max_refs"`
	MaxBytes int64 `json:"max_bytes"`
}

// Budgets maps each tier to its budget.
type Budgets map[record.Depth]Budget

// DefaultBudgets returns the built-in tier budgets.
func DefaultBudgets() Budgets {
	return Budgets{
		record.Shallow: {MaxRefs: 10, MaxBytes: 64 << 10},
		record.Medium:  {MaxRefs: 25, MaxBytes: 256 << 10},
		record.Full:    {MaxRefs: 60, MaxBytes: 1 << 20},
	}
}

type options struct {
	now     func() time.Time
	budgets Budgets
	logger  *slog.Logger
}

// Option configures New, Load and BuildFromEvents.
type Option func(*options)

// WithClock overrides time.Now for id generation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithBudgets overrides tier budgets. Missing tiers and zero fields keep
// their defaults.
func WithBudgets(b Budgets) Option {
	return func(o *options) {
		for depth, override := range b {
			cur, ok := o.budgets[depth]
			if !ok {
				continue
			}
			if override.MaxRefs > 0 {
				cur.MaxRefs = override.MaxRefs
			}
			if override.MaxBytes > 0 {
				cur.MaxBytes = override.MaxBytes
			}
			o.budgets[depth] = cur
		}
	}
}

// WithLogger sets the logger used by BuildFromEvents.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		now:     time.Now,
		budgets: DefaultBudgets(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handoff is a mutable accumulator of one session's file references.
// It is not safe for concurrent use; callers sharing one must serialize
// access themselves.
type Handoff struct {
	meta     record.Meta
	refs     []record.Ref
	excluded int
	reasons  []string
	audits   []record.Audit
	budgets  Budgets
}

// New creates an empty handoff with a fresh time-derived id.
func New(root, workingDir, repoID string, opts ...Option) *Handoff {
	o := buildOptions(opts)
	now := o.now()
	return &Handoff{
		meta: record.Meta{
			ID:            newID(now),
			Created:       now.UTC().Format(time.RFC3339),
			Root:          root,
			WorkingDir:    workingDir,
			RepoID:        repoID,
			SchemaVersion: record.SchemaVersion,
		},
		budgets: o.budgets,
	}
}

// Shared so ids minted within one millisecond still sort in creation order.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// ID returns the handoff id.
func (h *Handoff) ID() string { return h.meta.ID }

// Meta returns the header record.
func (h *Handoff) Meta() record.Meta { return h.meta }

// Refs returns a copy of the held references in insertion order.
func (h *Handoff) Refs() []record.Ref { return slices.Clone(h.refs) }

// Excluded returns the number of secret paths dropped so far.
func (h *Handoff) Excluded() int { return h.excluded }

// Reasons returns the distinct secret patterns that caused exclusions.
func (h *Handoff) Reasons() []string { return slices.Clone(h.reasons) }

// Audits returns a copy of the audit log.
func (h *Handoff) Audits() []record.Audit { return slices.Clone(h.audits) }

// Budget returns the budget for a tier.
func (h *Handoff) Budget(depth record.Depth) (Budget, bool) {
	b, ok := h.budgets[depth]
	return b, ok
}

// AddRef appends ref unless its path is a secret, in which case the
// exclusion counter is bumped and the ref is dropped. Refs that fail
// validation are dropped without counting. Reports whether ref was added.
//
// Every reference enters through here.
func (h *Handoff) AddRef(ref record.Ref) bool {
	if pattern, ok := policy.MatchSecret(ref.Path); ok {
		h.AddSecretExclusion(pattern, 1)
		return false
	}
	if err := ref.Validate(); err != nil {
		return false
	}
	h.refs = append(h.refs, ref)
	return true
}

// AddSecretExclusion adds count (minimum 1) to the exclusion counter and
// records reason once.
func (h *Handoff) AddSecretExclusion(reason string, count int) {
	h.mergeExclusion(max(count, 1), reason)
}

func (h *Handoff) mergeExclusion(count int, reasons ...string) {
	h.excluded += count
	for _, r := range reasons {
		if r != "" && !slices.Contains(h.reasons, r) {
			h.reasons = append(h.reasons, r)
		}
	}
}

// AddAudit appends an audit entry.
func (h *Handoff) AddAudit(entry record.Audit) {
	h.audits = append(h.audits, entry)
}

// ClassifyAndPack orders refs by (tier priority desc, mtime desc) and takes
// them greedily until the next one would break the tier's count or byte
// budget. Unknown tiers yield nil.
func (h *Handoff) ClassifyAndPack(depth record.Depth) []record.Ref {
	budget, ok := h.budgets[depth]
	if !ok {
		return nil
	}

	sorted := slices.Clone(h.refs)
	slices.SortStableFunc(sorted, func(a, b record.Ref) int {
		if c := cmp.Compare(b.Depth.Priority(), a.Depth.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(b.Mtime, a.Mtime)
	})

	selected := make([]record.Ref, 0, min(len(sorted), max(budget.MaxRefs, 0)))
	var total int64
	for _, ref := range sorted {
		if len(selected)+1 > budget.MaxRefs || total+ref.Size > budget.MaxBytes {
			break
		}
		selected = append(selected, ref)
		total += ref.Size
	}
	return selected
}

// Metrics summarises the held references.
type Metrics struct {
	Shallow    int   `json:"shallow"`
	Medium     int   `json:"medium"`
	Full       int   `json:"full"`
	Excluded   int   `json:"excluded"`
	TotalBytes int64 `json:"total_bytes"`
}

// Metrics counts refs per tier, the exclusion tally and total bytes.
func (h *Handoff) Metrics() Metrics {
	m := Metrics{Excluded: h.excluded}
	for _, ref := range h.refs {
		switch ref.Depth {
		case record.Shallow:
			m.Shallow++
		case record.Medium:
			m.Medium++
		case record.Full:
			m.Full++
		}
		m.TotalBytes += ref.Size
	}
	return m
}
