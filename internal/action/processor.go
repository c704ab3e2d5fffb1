package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/cloupeer-io/otaupdate/internal/errcode"
	"github.com/cloupeer-io/otaupdate/pkg/log"
)

// Delegate is notified when the whole pipeline finishes, successfully or
// not — the processor's "owner" in terms.
type Delegate interface {
	ProcessingDone(code errcode.ErrorCode)
}

// DelegateFunc adapts a plain function to a Delegate.
type DelegateFunc func(code errcode.ErrorCode)

// ProcessingDone implements Delegate.
func (f DelegateFunc) ProcessingDone(code errcode.ErrorCode) { f(code) }

const (
	stateIdle     = "idle"
	stateRunning  = "running"
	stateStopping = "stopping"
	stateDone     = "done"

	eventStart    = "start"
	eventStop     = "stop"
	eventFinished = "finished"
)

// Processor owns an ordered list of Actions and runs them one at a time,
// piping each action's output into the next action's input slot. All
// completion callbacks are serialized through a single run-loop goroutine
// so the "single-threaded cooperative" scheduling model
// of §5 holds even though real goroutines are used underneath.
type Processor struct {
	actions  []Action
	delegate Delegate

	fsm *fsm.FSM

	current int
	events  chan func()

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewProcessor builds a Processor over actions, run in order, reporting the
// final outcome to delegate.
func NewProcessor(actions []Action, delegate Delegate) *Processor {
	p := &Processor{
		actions:  actions,
		delegate: delegate,
		current:  -1,
		events:   make(chan func(), 16),
	}

	p.fsm = fsm.NewFSM(stateIdle, fsm.Events{
		{Name: eventStart, Src: []string{stateIdle}, Dst: stateRunning},
		{Name: eventStop, Src: []string{stateRunning}, Dst: stateStopping},
		{Name: eventFinished, Src: []string{stateRunning, stateStopping}, Dst: stateDone},
	}, fsm.Callbacks{
		"enter_" + stateRunning: wrapEvent(func(ctx context.Context, e *fsm.Event) error {
			log.Debug("processor started", "stages", len(p.actions))
			return nil
		}),
		"enter_" + stateDone: wrapEvent(func(ctx context.Context, e *fsm.Event) error {
			log.Debug("processor finished")
			return nil
		}),
	})

	return p
}

// Run starts the pipeline and blocks, draining the run-loop channel, until
// the pipeline finishes (success or failure). Cancelling ctx stops the
// running action; Run returns once that action has delivered its completion.
func (p *Processor) Run(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	if err := p.fsm.Event(ctx, eventStart); err != nil {
		log.Error(err, "processor failed to start")
	}

	if len(p.actions) == 0 {
		p.finish(ctx, errcode.Success)
		return
	}

	p.advance(ctx, 0, nil)

	ctxDone := ctx.Done()
	for {
		select {
		case fn, ok := <-p.events:
			if !ok {
				return
			}
			fn()
			if p.fsm.Is(stateDone) {
				return
			}
		case <-ctxDone:
			p.Stop()
			// Stop only requests cancellation; keep draining until the
			// in-flight action delivers its (possibly cancelled)
			// completion rather than returning early.
			ctxDone = nil
		}
	}
}

// Stop requests cancellation of the currently running action only, per
// ("termination cascades... to the currently-running action
// only").
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.stopped || p.current < 0 || p.current >= len(p.actions) {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cur := p.actions[p.current]
	p.mu.Unlock()

	_ = p.fsm.Event(context.Background(), eventStop)
	cur.TerminateProcessing()
}

// advance pipes in from the previous stage's output (if any) and starts
// action index i.
func (p *Processor) advance(ctx context.Context, i int, in any) {
	p.mu.Lock()
	p.current = i
	p.mu.Unlock()

	act := p.actions[i]
	if in != nil {
		if sink, ok := act.(HasInput); ok {
			sink.SetInput(in)
		}
	}

	log.Info("pipeline stage starting", "stage", act.Name())

	completer := CompleterFunc(func(code errcode.ErrorCode) {
		// Actions call Complete from whatever goroutine their own I/O
		// finished on; hop back onto the processor's run loop before
		// touching any processor state.
		p.post(func() { p.onStageComplete(ctx, i, act, code) })
	})

	if withCompleter, ok := act.(interface{ SetCompleter(Completer) }); ok {
		withCompleter.SetCompleter(completer)
	}

	act.Perform(ctx)
}

func (p *Processor) onStageComplete(ctx context.Context, i int, act Action, code errcode.ErrorCode) {
	log.Info("pipeline stage complete", "stage", act.Name(), "code", code.String())

	if code != errcode.Success {
		p.finish(ctx, code)
		return
	}

	var out any
	if src, ok := act.(HasOutput); ok {
		out = src.Output()
	}

	next := i + 1
	if next >= len(p.actions) {
		p.finish(ctx, errcode.Success)
		return
	}
	p.advance(ctx, next, out)
}

func (p *Processor) finish(ctx context.Context, code errcode.ErrorCode) {
	_ = p.fsm.Event(ctx, eventFinished)
	if p.delegate != nil {
		p.delegate.ProcessingDone(code)
	}
	close(p.events)
}

// post schedules fn to run on the processor's own run-loop goroutine. It is
// safe to call from any goroutine, including an action's own I/O callbacks.
func (p *Processor) post(fn func()) {
	defer func() {
		// The channel may already be closed if the pipeline finished
		// concurrently with a stray late callback; drop it silently, the
		// action guaranteed at most one live completion in flight per stage.
		_ = recover()
	}()
	p.events <- fn
}

// String is used in log lines and test failure messages.
func (p *Processor) String() string {
	return fmt.Sprintf("Processor(stages=%d, current=%d, state=%s)", len(p.actions), p.current, p.fsm.Current())
}
