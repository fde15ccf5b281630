package handoff

import (
	"bufio"
	"io"
	"iter"

	"github.com/hpungsan/handoff/internal/policy"
	"github.com/hpungsan/handoff/internal/record"
)

// Records returns the canonical record order: Meta, every Ref in insertion
// order, at most one aggregated Ex, then every Audit. Refs matching the
// secret policy are skipped again here.
func (h *Handoff) Records() []record.Record {
	out := make([]record.Record, 0, 2+len(h.refs)+len(h.audits))
	out = append(out, h.meta)
	for _, ref := range h.refs {
		if policy.IsSecret(ref.Path) {
			continue
		}
		out = append(out, ref)
	}
	if h.excluded > 0 || len(h.reasons) > 0 {
		out = append(out, record.Ex{
			Key:     record.ExclusionKey,
			Count:   h.excluded,
			Reasons: h.Reasons(),
		})
	}
	for _, a := range h.audits {
		out = append(out, a)
	}
	return out
}

// Serialize renders Records as text lines without trailing newlines.
func (h *Handoff) Serialize() []string {
	recs := h.Records()
	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		if line := record.Serialize(rec); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// WriteTo writes the serialized handoff, one record per line.
func (h *Handoff) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, line := range h.Serialize() {
		written, err := bw.WriteString(line + "\n")
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// Load rebuilds a handoff from parsed records. The first Meta becomes the
// header and later ones are ignored; Refs go through AddRef; Ex tallies are
// merged additively; Audits are appended in order. Without a Meta, Load
// reports false.
func Load(records iter.Seq[record.Record], opts ...Option) (*Handoff, bool) {
	o := buildOptions(opts)
	h := &Handoff{budgets: o.budgets}
	haveMeta := false

	for rec := range records {
		switch r := rec.(type) {
		case record.Meta:
			if !haveMeta {
				h.meta = r
				haveMeta = true
			}
		case record.Ref:
			h.AddRef(r)
		case record.Ex:
			h.mergeExclusion(r.Count, r.Reasons...)
		case record.Audit:
			h.AddAudit(r)
		}
	}

	if !haveMeta {
		return nil, false
	}
	return h, true
}
