package pack

import (
	"github.com/hpungsan/handoff/internal/policy"
	"github.com/hpungsan/handoff/internal/record"
)

// InjectableRef is the per-reference projection. Size and mtime are dropped.
type InjectableRef struct {
	Path      string    `json:"path"`
	Hash      string    `json:"hash"`
	Operation record.Op `json:"operation"`
}

// Stats summarises an injectable pack.
type Stats struct {
	Count  int          `json:"count"`
	Tokens int          `json:"tokens"`
	Depth  record.Depth `json:"depth"`
}

// Injectable is the flat form handed to a session-start hook. It is also
// the on-disk pack file format.
type Injectable struct {
	ID         string          `json:"id"`
	Created    string          `json:"created"`
	Repo       string          `json:"repo"`
	WorkingDir string          `json:"working_dir"`
	Refs       []InjectableRef `json:"refs"`
	Stats      Stats           `json:"stats"`
}

// ToInjectable projects p into its injectable form.
func ToInjectable(p *Pack) Injectable {
	refs := make([]InjectableRef, 0, len(p.refs))
	for _, r := range p.refs {
		refs = append(refs, InjectableRef{Path: r.Path, Hash: r.Hash, Operation: r.Op})
	}
	return Injectable{
		ID:         p.id,
		Created:    p.created,
		Repo:       p.root,
		WorkingDir: p.workingDir,
		Refs:       refs,
		Stats: Stats{
			Count:  len(refs),
			Tokens: p.tokens,
			Depth:  p.depth,
		},
	}
}

// Valid reports whether inj is well formed: it has an id and a known tier,
// its count matches its refs, and no ref is malformed or secret.
func (inj Injectable) Valid() bool {
	if inj.ID == "" || !inj.Stats.Depth.Valid() || inj.Stats.Tokens < 0 {
		return false
	}
	if inj.Stats.Count != len(inj.Refs) {
		return false
	}
	for _, r := range inj.Refs {
		if r.Path == "" || !r.Operation.Valid() || !record.ValidHash(r.Hash) {
			return false
		}
		if policy.IsSecret(r.Path) {
			return false
		}
	}
	return true
}
