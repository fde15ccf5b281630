package ops

import (
	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/pack"
)

// PackInput contains parameters for the Pack operation.
type PackInput struct {
	ID    string // optional, default: latest pointer
	Depth string // required: shallow, medium, full or s, m, f
}

// PackOutput contains the result of the Pack operation.
type PackOutput struct {
	Item    pack.Injectable `json:"item"`
	Rebuilt bool            `json:"rebuilt"` // true if the stored pack file was missing or invalid
}

// Pack returns the stored pack of one tier. When the pack file is missing or
// fails to load, it is rebuilt from the handoff and written back.
func Pack(env *Env, input PackInput) (*PackOutput, error) {
	depth, err := ParseDepth(input.Depth)
	if err != nil {
		return nil, err
	}

	id, ok, err := env.resolveID(input.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("latest")
	}

	if inj, ok := env.Store.OpenPack(id, depth); ok {
		return &PackOutput{Item: inj}, nil
	}

	h, ok := env.Store.Open(id, env.handoffOptions()...)
	if !ok {
		return nil, errors.NewNotFound(id)
	}

	inj := pack.ToInjectable(pack.Build(h, depth))
	if err := env.Store.SavePack(inj); err != nil {
		env.logger().Warn("pack rewrite failed", "id", id, "depth", depth, "error", err)
	}

	return &PackOutput{Item: inj, Rebuilt: true}, nil
}
