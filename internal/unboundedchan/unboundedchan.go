// Package unboundedchan provides a FIFO queue whose input never blocks for
// long, fed and drained through channels.
package unboundedchan

// UnboundedChannel moves values from In() to Out() in order, queueing as many
// as the consumer falls behind by. Closing In() drains the queue to Out() and
// then closes Out().
// Beware! You almost certainly want T to be small; use pointers for large objects.
type UnboundedChannel[T any] struct {
	in    chan T
	out   chan T
	queue []T
	head  int
}

// NewUnboundedChannel creates an UnboundedChannel and starts its mover goroutine.
func NewUnboundedChannel[T any]() *UnboundedChannel[T] {
	uc := &UnboundedChannel[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go uc.run()
	return uc
}

func (uc *UnboundedChannel[T]) pending() int {
	return len(uc.queue) - uc.head
}

func (uc *UnboundedChannel[T]) push(v T) {
	// Reclaim the consumed prefix once it dominates the backing array.
	if uc.head > 0 && uc.head >= len(uc.queue)/2 {
		n := copy(uc.queue, uc.queue[uc.head:])
		var zero T
		for i := n; i < len(uc.queue); i++ {
			uc.queue[i] = zero
		}
		uc.queue = uc.queue[:n]
		uc.head = 0
	}
	uc.queue = append(uc.queue, v)
}

func (uc *UnboundedChannel[T]) pop() {
	var zero T
	uc.queue[uc.head] = zero
	uc.head++
	if uc.head == len(uc.queue) {
		uc.queue = uc.queue[:0]
		uc.head = 0
	}
}

func (uc *UnboundedChannel[T]) run() {
	in := uc.in
	for in != nil || uc.pending() > 0 {
		if uc.pending() == 0 {
			v, ok := <-in
			if !ok {
				break
			}
			uc.push(v)
			continue
		}
		select {
		case uc.out <- uc.queue[uc.head]:
			uc.pop()
		case v, ok := <-in:
			if !ok {
				in = nil // keep draining the queue, stop listening
				continue
			}
			uc.push(v)
		}
	}
	close(uc.out)
}

// In returns the input channel. Close it when no more values will be sent.
func (uc *UnboundedChannel[T]) In() chan<- T {
	return uc.in
}

// Out returns the output channel, closed after In() is closed and drained.
func (uc *UnboundedChannel[T]) Out() <-chan T {
	return uc.out
}
