// Package interpreter replays a normalized instruction set against a live
// page: each key-path is classified into a typed action and executed in
// order, with pacing between steps and all-or-nothing failure semantics.
package interpreter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/v0xg/replaybot/internal/instruction"
	"github.com/v0xg/replaybot/internal/logging"
)

// DefaultPacing is the settle delay applied after fill actions.
const DefaultPacing = 3 * time.Second

// Page is the surface the dispatcher drives. The production
// implementation is a browser session; tests supply fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
}

// WaitPolicy decides how the dispatcher settles after a fill.
type WaitPolicy interface {
	Wait(ctx context.Context) error
}

// FixedDelay waits a constant duration, honoring cancellation.
type FixedDelay time.Duration

func (d FixedDelay) Wait(ctx context.Context) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StepRecorder receives one notification per dispatched instruction.
// Implemented by the trace recorder.
type StepRecorder interface {
	RecordStep(step int, key, action, target string, err error)
}

// State tracks the dispatcher lifecycle.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// StepError is the fatal error a failed instruction surfaces: the step
// index, the instruction's key-path, and the underlying cause.
type StepError struct {
	Step int
	Key  string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (key %q): %v", e.Step, e.Key, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Options configures a Dispatcher.
type Options struct {
	Wait     WaitPolicy   // nil means FixedDelay(DefaultPacing)
	Recorder StepRecorder // optional
	Logger   *slog.Logger // nil means no-op
}

// Dispatcher executes instructions sequentially against one page.
type Dispatcher struct {
	page  Page
	wait  WaitPolicy
	rec   StepRecorder
	log   *slog.Logger
	state State
	steps int
}

// NewDispatcher wires a dispatcher to a page.
func NewDispatcher(page Page, opts Options) *Dispatcher {
	wait := opts.Wait
	if wait == nil {
		wait = FixedDelay(DefaultPacing)
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Dispatcher{page: page, wait: wait, rec: opts.Recorder, log: log, state: Idle}
}

// Steps reports how many instructions have been dispatched so far.
func (d *Dispatcher) Steps() int { return d.steps }

// State reports the dispatcher lifecycle state.
func (d *Dispatcher) State() State { return d.state }

// Run executes the instruction set in order. Unrecognized categories are
// skipped; any locate/act failure aborts the remaining sequence with a
// *StepError. Cancellation is honored at instruction boundaries. An empty
// set is an empty run, not an error.
func (d *Dispatcher) Run(ctx context.Context, set *instruction.Set) error {
	d.state = Running

	for _, it := range set.Items() {
		if err := ctx.Err(); err != nil {
			d.state = Failed
			return fmt.Errorf("run canceled at step %d: %w", d.steps+1, err)
		}

		d.steps++
		act := Classify(it)
		d.log.Debug("dispatch", "step", d.steps, "key", it.Key, "action", act.Kind.String(), "target", act.Target())

		err := d.execute(ctx, act)
		if d.rec != nil {
			d.rec.RecordStep(d.steps, it.Key, act.Kind.String(), act.Target(), err)
		}
		if err != nil {
			d.state = Failed
			return &StepError{Step: d.steps, Key: it.Key, Err: err}
		}
	}

	d.state = Completed
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, act Action) error {
	switch act.Kind {
	case KindNavigate:
		return d.page.Navigate(ctx, act.URL)
	case KindFillInput, KindFillTextarea:
		if err := d.page.Fill(ctx, act.Selector(), act.Value); err != nil {
			return err
		}
		return d.wait.Wait(ctx)
	case KindClick:
		return d.page.Click(ctx, act.Selector())
	default:
		d.log.Debug("skipping unrecognized instruction", "key", act.Key)
		return nil
	}
}
