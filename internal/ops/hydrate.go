package ops

import (
	"context"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/pack"
	"github.com/hpungsan/handoff/internal/record"
)

// Reasons a hydrate returns no item.
const (
	ReasonNoHandoff   = "no_handoff"
	ReasonNothingFits = "nothing_fits"
)

// HydrateInput contains parameters for the Hydrate operation.
type HydrateInput struct {
	ID        string // optional, default: latest pointer
	MaxTokens int    // default: config max_tokens
}

// HydrateOutput contains the result of the Hydrate operation.
type HydrateOutput struct {
	Item   *pack.Injectable `json:"item"`             // nil if nothing to inject
	Reason string           `json:"reason,omitempty"` // set when Item is nil
}

// Hydrate picks the best pack of a stored handoff for a token budget.
// Having no handoff or no pack that fits is a normal outcome, reported
// through Reason. An explicit id that does not exist is NOT_FOUND.
func Hydrate(ctx context.Context, env *Env, input HydrateInput) (*HydrateOutput, error) {
	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = env.config().MaxTokens
	}

	id, ok, err := env.resolveID(input.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &HydrateOutput{Reason: ReasonNoHandoff}, nil
	}

	h, ok := env.Store.Open(id, env.handoffOptions()...)
	if !ok {
		if input.ID != "" {
			return nil, errors.NewNotFound(id)
		}
		env.logger().Warn("latest pointer names an unreadable handoff", "id", id)
		return &HydrateOutput{Reason: ReasonNoHandoff}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("hydrate")
	}

	best, fits := pack.SelectBest(pack.BuildAll(h), maxTokens)

	entry := record.Audit{Timestamp: env.timestamp(), Run: record.RunHydrate, OK: fits}
	if fits {
		entry.Depth = best.Depth()
	} else {
		entry.Degraded = true
	}
	if err := env.Store.AppendAudit(entry); err != nil {
		env.logger().Warn("audit append failed", "id", id, "error", err)
	}

	if !fits {
		env.logger().Info("no pack fits budget", "id", id, "max_tokens", maxTokens)
		return &HydrateOutput{Reason: ReasonNothingFits}, nil
	}

	inj := pack.ToInjectable(best)
	env.logger().Info("hydrate complete", "id", id, "depth", best.Depth(), "tokens", best.Tokens())
	return &HydrateOutput{Item: &inj}, nil
}
