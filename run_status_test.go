package scopelog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusLifecycle(t *testing.T) {
	rs := NewRunStatus()
	if rs.State() != NotStarted {
		t.Errorf("new RunStatus State() = %v, want NotStarted", rs.State())
	}
	assert.False(t, rs.IsReady())
	assert.False(t, rs.IsFinished())

	assert.NoError(t, rs.MarkRunning())
	assert.Error(t, rs.MarkRunning())
	assert.Equal(t, Running, rs.State())

	rs.MarkReady()
	rs.MarkReady()
	assert.True(t, rs.IsReady())
	assert.False(t, rs.IsFinished())

	rs.MarkFinished()
	rs.MarkFinished()
	assert.Equal(t, Finished, rs.State())
	assert.True(t, rs.IsFinished())
	assert.True(t, rs.IsReady(), "the gate never closes again")
	assert.Error(t, rs.MarkRunning())
}

func TestWaitReady(t *testing.T) {
	rs := NewRunStatus()
	rs.MarkRunning()
	go func() {
		time.Sleep(5 * time.Millisecond)
		rs.MarkReady()
	}()
	assert.NoError(t, rs.WaitReady(context.Background()))

	// Finished without data.
	rs = NewRunStatus()
	rs.MarkRunning()
	go rs.MarkFinished()
	assert.ErrorIs(t, rs.WaitReady(context.Background()), ErrNeverReady)

	// Ready and Finished both set: ready wins.
	rs = NewRunStatus()
	rs.MarkReady()
	rs.MarkFinished()
	assert.NoError(t, rs.WaitReady(context.Background()))

	rs = NewRunStatus()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rs.WaitReady(ctx), context.DeadlineExceeded)
}

func TestRunStateString(t *testing.T) {
	assert.Equal(t, "NotStarted", NotStarted.String())
	assert.Equal(t, "Running", Running.String())
	assert.Equal(t, "Finished", Finished.String())
	assert.Equal(t, "RunState(9)", RunState(9).String())
}
