// Package pack derives immutable, token-budgeted views of a handoff, one per
// depth tier, and picks the one to inject into a new session.
package pack

import (
	"slices"

	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/record"
)

// MinTokensPerRef is the floor of the per-reference token estimate.
const MinTokensPerRef = 30

// BytesPerToken is the divisor of the per-reference token estimate.
const BytesPerToken = 34

// EstimateTokens returns max(30, size/34).
func EstimateTokens(size int64) int {
	return int(max(MinTokensPerRef, size/BytesPerToken))
}

// Pack is a read-only selection of refs for one tier. It never shares
// memory with the handoff it was built from.
type Pack struct {
	id         string
	created    string
	root       string
	workingDir string
	depth      record.Depth
	refs       []record.Ref
	tokens     int
}

// Build selects refs for depth from h and estimates their token cost.
func Build(h *handoff.Handoff, depth record.Depth) *Pack {
	meta := h.Meta()
	refs := h.ClassifyAndPack(depth)

	tokens := 0
	for _, r := range refs {
		tokens += EstimateTokens(r.Size)
	}

	return &Pack{
		id:         meta.ID,
		created:    meta.Created,
		root:       meta.Root,
		workingDir: meta.WorkingDir,
		depth:      depth,
		refs:       refs,
		tokens:     tokens,
	}
}

// ID, Created, Root and WorkingDir are copied from the handoff header.
func (p *Pack) ID() string { return p.id }
func (p *Pack) Created() string { return p.created }
func (p *Pack) Root() string { return p.root }
func (p *Pack) WorkingDir() string { return p.workingDir }
func (p *Pack) Depth() record.Depth { return p.depth }
func (p *Pack) Tokens() int { return p.tokens }
func (p *Pack) Len() int { return len(p.refs) }
func (p *Pack) Refs() []record.Ref { return slices.Clone(p.refs) }

// Set holds one pack per tier. Tiers overlap: a ref in Shallow may also be
// in Medium and Full.
type Set struct {
	Shallow *Pack
	Medium  *Pack
	Full    *Pack
}

// BuildAll builds every tier from h.
func BuildAll(h *handoff.Handoff) Set {
	return Set{
		Shallow: Build(h, record.Shallow),
		Medium:  Build(h, record.Medium),
		Full:    Build(h, record.Full),
	}
}

// Get returns the pack for depth, or nil.
func (s Set) Get(depth record.Depth) *Pack {
	switch depth {
	case record.Shallow:
		return s.Shallow
	case record.Medium:
		return s.Medium
	case record.Full:
		return s.Full
	}
	return nil
}

// All returns the non-nil packs in tier order.
func (s Set) All() []*Pack {
	out := make([]*Pack, 0, 3)
	for _, d := range record.Depths {
		if p := s.Get(d); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// selectionOrder is the fixed preference of SelectBest.
var selectionOrder = []record.Depth{record.Medium, record.Shallow, record.Full}

// SelectBest returns the first of medium, shallow, full whose estimate fits
// maxTokens. It reports false when none fits.
func SelectBest(s Set, maxTokens int) (*Pack, bool) {
	for _, d := range selectionOrder {
		if p := s.Get(d); p != nil && p.tokens <= maxTokens {
			return p, true
		}
	}
	return nil, false
}
