package action

import "github.com/cloupeer-io/otaupdate/internal/errcode"

// ScopedCompleter is the exactly-once completion guard: an action that may
// fail during Perform before it has arranged
// asynchronous continuation arms one of these on entry and disarms it once
// it has taken over responsibility for completion (or has completed
// synchronously). If Perform returns — via a normal return or a panic
// recovered higher up — while the guard is still armed, it fires Complete
// with a configurable default error code.
//
// Use it with defer:
//
//	g := action.NewScopedCompleter(completer, errcode.Error)
//	defer g.Fire()
//	... early-return paths simply `return`; g.Fire() completes with Error ...
//	g.Disarm() // once async continuation has been arranged
type ScopedCompleter struct {
	completer Completer
	code      errcode.ErrorCode
	armed     bool
}

// NewScopedCompleter returns an armed guard that will complete with
// defaultCode if it is never disarmed.
func NewScopedCompleter(completer Completer, defaultCode errcode.ErrorCode) *ScopedCompleter {
	return &ScopedCompleter{completer: completer, code: defaultCode, armed: true}
}

// Disarm marks the guard as no longer responsible for completion, because
// the action has either completed synchronously or arranged an async
// completion of its own.
func (g *ScopedCompleter) Disarm() {
	g.armed = false
}

// SetCode changes the code the guard will fire with, without disarming it.
// Used when Perform discovers a specific failure but still wants the guard
// (rather than a manual Complete call) to deliver it on the way out.
func (g *ScopedCompleter) SetCode(code errcode.ErrorCode) {
	g.code = code
}

// Fire completes the action with the guard's current code if the guard is
// still armed. Safe to call unconditionally via defer.
func (g *ScopedCompleter) Fire() {
	if !g.armed {
		return
	}
	g.armed = false
	g.completer.Complete(g.code)
}
