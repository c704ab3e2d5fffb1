package action

import (
	"context"

	"github.com/looplab/fsm"
)

// wrapEvent adapts an error-returning fsm callback into the plain
// func(ctx, *fsm.Event) shape looplab/fsm expects, routing the error back
// onto e.Err the way internal/pkg/util/fsm.WrapEvent does.
func wrapEvent(fn func(ctx context.Context, e *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, e *fsm.Event) {
		if err := fn(ctx, e); err != nil {
			e.Err = err
		}
	}
}
