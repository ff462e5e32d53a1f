package engine

import (
	"context"
	"fmt"

	"sevr/src/models"
)

// Phase is the point of a write operation at which a hook runs.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

const (
	// EventSave fires around Collection.Save.
	EventSave = "save"
)

// HookFunc is invoked with the document being written. Returning is the
// continuation signal; a non-nil error from a pre hook aborts the write.
type HookFunc func(ctx context.Context, doc models.Document) error

type hookKey struct {
	phase Phase
	event string
}

// hookSet holds hooks keyed by (phase, event) in attach order.
type hookSet map[hookKey][]HookFunc

func (h hookSet) add(phase Phase, event string, fn HookFunc) error {
	if phase != PhasePre && phase != PhasePost {
		return fmt.Errorf("%w: %q", ErrInvalidHookPhase, phase)
	}
	if fn == nil {
		return ErrNilHook
	}
	key := hookKey{phase: phase, event: event}
	h[key] = append(h[key], fn)
	return nil
}

func (h hookSet) run(ctx context.Context, phase Phase, event string, doc models.Document) error {
	for i, fn := range h[hookKey{phase: phase, event: event}] {
		if err := fn(ctx, doc); err != nil {
			return fmt.Errorf("%s-%s hook %d: %w", phase, event, i, err)
		}
	}
	return nil
}

func (h hookSet) count(phase Phase, event string) int {
	return len(h[hookKey{phase: phase, event: event}])
}
