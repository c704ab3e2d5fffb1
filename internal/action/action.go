// Package action implements the Action/Processor pipeline framework: typed
// stages with one input slot, one output slot, and three lifecycle
// operations (perform, terminate, completed).
//
// Some prior art models this with an abstract base class and virtual
// dispatch; here it is re-expressed as a capability interface plus a plain
// struct the Processor holds ("inheritance -> capability typing").
package action

import (
	"context"

	"github.com/cloupeer-io/otaupdate/internal/errcode"
)

// Action is a single pipeline stage. Perform must either complete
// synchronously (by calling the Completer the Processor hands it through
// SetCompleter just before Perform) or
// arrange for an asynchronous callback to do so later — exactly once.
type Action interface {
	// Name identifies the stage for logging.
	Name() string

	// Perform begins the stage's work. ctx is cancelled when the owning
	// Processor is stopped; Perform must still eventually complete (possibly
	// with a cancellation error code) rather than leaving the pipeline
	// hanging.
	Perform(ctx context.Context)

	// TerminateProcessing requests idempotent, best-effort cancellation. The
	// action must subsequently deliver exactly one completion.
	TerminateProcessing()
}

// HasInput is implemented by actions that accept a predecessor's output.
// SetInput is called by the Processor before Perform, iff a predecessor
// produced a value.
type HasInput interface {
	SetInput(v any)
	HasInputObject() bool
}

// HasOutput is implemented by actions that hand a value to their successor
// on success. Output is read by the Processor immediately after Complete
// fires with errcode.Success.
type HasOutput interface {
	Output() any
}

// Completer is the callback surface an Action uses to report completion.
// It corresponds to action_complete(error_code), called by the
// action on the processor exactly once per Perform invocation.
type Completer interface {
	Complete(code errcode.ErrorCode)
}

// CompleterFunc adapts a plain function to a Completer.
type CompleterFunc func(code errcode.ErrorCode)

// Complete implements Completer.
func (f CompleterFunc) Complete(code errcode.ErrorCode) { f(code) }
