package scopelog

import (
	"context"
	"fmt"
	"sync"
)

// RunState is the life-cycle state of one acquisition run.
type RunState int

// Names for the possible values of RunState
const (
	NotStarted RunState = iota // Run has been created but acquisition has not begun
	Running                    // Acquisition loop owns the session
	Finished                   // Acquisition loop has returned and released the session
)

func (s RunState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// RunStatus is the only in-memory state shared by the acquisition and
// visualization loops. The acquisition loop is its single writer. It carries
// the run state and the readiness gate; both move one way only and are never
// reset during a run.
type RunStatus struct {
	state     RunState
	ready     chan struct{}
	finished  chan struct{}
	stateLock sync.Mutex // guards state and the closing of both channels
}

// NewRunStatus returns a RunStatus in the NotStarted state with the gate shut.
func NewRunStatus() *RunStatus {
	return &RunStatus{
		ready:    make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// State returns the run state in a race-free fashion.
func (rs *RunStatus) State() RunState {
	rs.stateLock.Lock()
	defer rs.stateLock.Unlock()
	return rs.state
}

// MarkRunning moves NotStarted to Running. It fails from any other state.
func (rs *RunStatus) MarkRunning() error {
	rs.stateLock.Lock()
	defer rs.stateLock.Unlock()
	if rs.state != NotStarted {
		return fmt.Errorf("cannot start a run that is %v", rs.state)
	}
	rs.state = Running
	return nil
}

// MarkReady opens the readiness gate. Later calls do nothing.
func (rs *RunStatus) MarkReady() {
	rs.stateLock.Lock()
	defer rs.stateLock.Unlock()
	closeIfOpen(rs.ready)
}

// MarkFinished moves the run to Finished. Later calls do nothing.
func (rs *RunStatus) MarkFinished() {
	rs.stateLock.Lock()
	defer rs.stateLock.Unlock()
	rs.state = Finished
	closeIfOpen(rs.finished)
}

// Ready returns a channel that is closed when the gate opens.
func (rs *RunStatus) Ready() <-chan struct{} {
	return rs.ready
}

// Done returns a channel that is closed when the run is Finished.
func (rs *RunStatus) Done() <-chan struct{} {
	return rs.finished
}

// IsReady tells whether the gate is open.
func (rs *RunStatus) IsReady() bool {
	select {
	case <-rs.ready:
		return true
	default:
		return false
	}
}

// IsFinished tells whether the run is Finished.
func (rs *RunStatus) IsFinished() bool {
	select {
	case <-rs.finished:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the gate opens (returns nil), the run finishes with
// the gate still shut (returns ErrNeverReady), or ctx is done.
func (rs *RunStatus) WaitReady(ctx context.Context) error {
	if rs.IsReady() {
		return nil
	}
	select {
	case <-rs.ready:
		return nil
	case <-rs.finished:
		if rs.IsReady() {
			return nil
		}
		return ErrNeverReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeIfOpen(c chan struct{}) {
	select {
	case <-c:
	default:
		close(c)
	}
}
