package unboundedchan

import (
	"testing"
)

func TestUnboundedChannelKeepsOrder(t *testing.T) {
	uc := NewUnboundedChannel[int]()

	// Send everything before anyone reads, so the queue must hold it all.
	const nsend = 1000
	done := make(chan struct{})
	go func() {
		ch := uc.In()
		for i := range nsend {
			ch <- i
		}
		close(ch)
		close(done)
	}()
	<-done

	next := 0
	for v := range uc.Out() {
		if v != next {
			t.Fatalf("UnboundedChannel gave %d, want %d", v, next)
		}
		next++
	}
	if next != nsend {
		t.Errorf("UnboundedChannel delivered %d values, want %d", next, nsend)
	}
}

func TestUnboundedChannelInterleaved(t *testing.T) {
	uc := NewUnboundedChannel[string]()
	go func() {
		for _, s := range []string{"RUNSTATE", "BATCH", "FRAME", "BATCH", "RUNSTATE"} {
			uc.In() <- s
		}
		close(uc.In())
	}()
	var got []string
	for s := range uc.Out() {
		got = append(got, s)
	}
	if len(got) != 5 || got[0] != "RUNSTATE" || got[2] != "FRAME" || got[4] != "RUNSTATE" {
		t.Errorf("UnboundedChannel output %v, want the input order", got)
	}
}

func TestCloseEmpty(t *testing.T) {
	uc := NewUnboundedChannel[int]()
	close(uc.In())
	if _, ok := <-uc.Out(); ok {
		t.Errorf("Out() of a closed, empty UnboundedChannel should be closed")
	}
}
