package provision

import (
	"context"
)

// Applier runs a resource graph against the demonstration environment.
type Applier struct {
	deps      *Deps
	statePath string
}

// NewApplier creates an applier that records applied resources in the
// state file at statePath.
func NewApplier(deps *Deps, statePath string) *Applier {
	return &Applier{deps: deps, statePath: statePath}
}

// Apply plans and applies the graph. The run is all-or-nothing: the first
// failure aborts and nothing after it is attempted. Resources already in
// the state file are skipped, so a re-run converges without duplicating
// identities.
func (a *Applier) Apply(ctx context.Context, resources []Resource) error {
	ordered, err := Plan(resources)
	if err != nil {
		return err
	}

	state, err := LoadState(a.statePath)
	if err != nil {
		return err
	}

	// Non-secret outputs from previous runs feed resources that still
	// need to apply.
	for k, v := range state.Outputs {
		a.deps.SetOutput(k, v)
	}

	for _, r := range ordered {
		if state.Has(r.ID()) {
			a.deps.Logger.Debug("%s unchanged, skipping", r.ID())
			continue
		}

		a.deps.Logger.Debug("Applying %s", r.ID())
		if err := r.Apply(ctx, a.deps); err != nil {
			// Record what did succeed before aborting.
			state.Outputs = a.deps.Outputs()
			_ = state.Save(a.statePath)
			return err
		}

		state.Mark(r.ID())
		state.Outputs = a.deps.Outputs()
		if err := state.Save(a.statePath); err != nil {
			return err
		}
	}

	return nil
}
