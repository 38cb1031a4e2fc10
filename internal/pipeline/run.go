package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/linkscope/internal/events"
)

// run tracks the state of one pipeline invocation and owns its emitter.
type run struct {
	kind  string
	em    *events.Emitter
	steps int

	mu       sync.Mutex
	status   Status
	current  int
	phases   []PhaseResult
	failures []Failure
}

func newRun(kind string, em *events.Emitter, steps int) *run {
	if em == nil {
		em = events.Discard()
	}
	return &run{kind: kind, em: em, steps: steps, status: StatusIdle}
}

func (r *run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// begin announces the next phase and moves the run to Running.
func (r *run) begin(phase, message string) time.Time {
	r.mu.Lock()
	r.status = StatusRunning
	r.current++
	step := r.current
	r.mu.Unlock()

	msg := fmt.Sprintf("Step %d/%d: %s", step, r.steps, message)
	zap.L().Info(msg, zap.String("run", r.kind), zap.String("phase", phase))
	r.em.Progress(msg)
	return time.Now()
}

// succeed records a finished phase.
func (r *run) succeed(phase string, optional bool, started time.Time, summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, PhaseResult{
		Name:     phase,
		Optional: optional,
		Summary:  summary,
		Duration: time.Since(started),
	})
}

// isolate records a failure that does not abort the run.
func (r *run) isolate(phase, item string, err error) {
	zap.L().Warn("optional step failed",
		zap.String("run", r.kind),
		zap.String("phase", phase),
		zap.String("item", item),
		zap.Error(err))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, Failure{Phase: phase, Item: item, Message: err.Error()})
}

// skip records an optional phase that failed as a whole.
func (r *run) skip(phase string, started time.Time, err error) {
	r.isolate(phase, "", err)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, PhaseResult{
		Name:     phase,
		Optional: true,
		Error:    err.Error(),
		Duration: time.Since(started),
	})
	r.em.Progress(fmt.Sprintf("%s skipped: %v", phase, err))
}

// fail aborts the run with a terminal error event and returns the wrapped error.
func (r *run) fail(phase string, err error) error {
	r.mu.Lock()
	r.status = StatusFailed
	r.mu.Unlock()

	if IsInputError(err) {
		zap.L().Warn("rejected request", zap.String("run", r.kind), zap.Error(err))
		r.em.Fail(err.Error(), "")
		return err
	}

	wrapped := eris.Wrapf(err, "%s failed", phase)
	zap.L().Error("run failed",
		zap.String("run", r.kind),
		zap.String("phase", phase),
		zap.Error(err))
	r.em.Fail(fmt.Sprintf("%s failed: %v", phase, err), eris.ToString(wrapped, false))
	return wrapped
}

// finish settles the final status. The caller stamps it on the result and
// then calls emitDone.
func (r *run) finish() Status {
	r.mu.Lock()
	if len(r.failures) > 0 {
		r.status = StatusPartiallyFailed
	} else {
		r.status = StatusCompleted
	}
	status := r.status
	r.mu.Unlock()

	zap.L().Info("run finished", zap.String("run", r.kind), zap.String("status", string(status)))
	return status
}

// emitDone sends the terminal result once the caller has stamped the status.
func (r *run) emitDone(payload any) {
	r.em.Done(payload)
}

func (r *run) snapshot() ([]PhaseResult, []Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PhaseResult(nil), r.phases...), append([]Failure(nil), r.failures...)
}
