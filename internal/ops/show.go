package ops

import (
	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/record"
)

// ShowInput contains parameters for the Show operation.
type ShowInput struct {
	ID string // optional, default: latest pointer
}

// ShowOutput contains the result of the Show operation.
type ShowOutput struct {
	HandoffSummary
	SecretsChanged bool            `json:"secrets_changed"`
	Reasons        []string        `json:"reasons"`
	Metrics        handoff.Metrics `json:"metrics"`
	Audits         []record.Audit  `json:"audits"`
}

// Show returns the header, metrics and audit log of one handoff.
func Show(env *Env, input ShowInput) (*ShowOutput, error) {
	id, ok, err := env.resolveID(input.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("latest")
	}

	latest, _ := env.Store.LatestID()

	h, ok := env.Store.Open(id, env.handoffOptions()...)
	if !ok {
		if !env.Store.Exists(id) {
			return nil, errors.NewNotFound(id)
		}
		// Present but without a usable meta line.
		return &ShowOutput{
			HandoffSummary: HandoffSummary{ID: id, Latest: latest == id},
			Reasons:        []string{},
			Audits:         []record.Audit{},
		}, nil
	}

	reasons := h.Reasons()
	if reasons == nil {
		reasons = []string{}
	}
	audits := h.Audits()
	if audits == nil {
		audits = []record.Audit{}
	}

	return &ShowOutput{
		HandoffSummary: summarize(h, latest == id),
		SecretsChanged: h.Meta().SecretsChanged,
		Reasons:        reasons,
		Metrics:        h.Metrics(),
		Audits:         audits,
	}, nil
}
