package ops

import (
	"context"
	"fmt"
	"slices"

	"github.com/hpungsan/handoff/internal/errors"
)

// PruneInput contains parameters for the Prune operation.
type PruneInput struct {
	Keep   *int // optional, default: config retention_count
	DryRun bool
}

// PruneOutput contains the result of the Prune operation.
type PruneOutput struct {
	Pruned  []string `json:"pruned"`
	Kept    int      `json:"kept"`
	DryRun  bool     `json:"dry_run"`
	Message string   `json:"message"`
}

// Prune removes all but the newest Keep handoffs. The latest pointer target
// is always kept and counts toward Keep.
func Prune(ctx context.Context, env *Env, input PruneInput) (*PruneOutput, error) {
	keep := env.config().RetentionCount
	if input.Keep != nil {
		if *input.Keep < 1 {
			return nil, errors.NewInvalidRequest("keep must be at least 1")
		}
		keep = *input.Keep
	}

	ids, err := env.Store.List()
	if err != nil {
		return nil, err
	}

	if keep <= 0 {
		return &PruneOutput{Pruned: []string{}, Kept: len(ids), DryRun: input.DryRun, Message: "Pruning disabled"}, nil
	}

	latest, hasLatest := env.Store.LatestID()

	kept := 0
	if hasLatest && slices.Contains(ids, latest) {
		kept = 1
	}

	pruned := []string{}
	for _, id := range ids {
		if hasLatest && id == latest {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("prune")
		}
		if !input.DryRun {
			if err := env.Store.Remove(id); err != nil && !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}
		pruned = append(pruned, id)
	}

	if len(pruned) > 0 && !input.DryRun {
		env.logger().Info("handoffs pruned", "count", len(pruned), "kept", kept)
	}

	return &PruneOutput{
		Pruned:  pruned,
		Kept:    kept,
		DryRun:  input.DryRun,
		Message: formatPruneMessage(len(pruned), kept, input.DryRun),
	}, nil
}

// formatPruneMessage creates a human-readable message for the prune result.
func formatPruneMessage(count, kept int, dryRun bool) string {
	if count == 0 {
		return fmt.Sprintf("Nothing to prune (%d kept)", kept)
	}

	word := "handoff"
	if count > 1 {
		word = "handoffs"
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	return fmt.Sprintf("%s %d %s (%d kept)", verb, count, word, kept)
}
