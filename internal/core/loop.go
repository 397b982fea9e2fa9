package core

import (
	"context"
	"errors"

	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/engine/types"
)

// ErrLoopStopped is returned when posting to a loop that has exited.
var ErrLoopStopped = errors.New("bridge loop stopped")

// Loop is a FIFO event queue drained by a single goroutine. Everything
// that touches bridge state runs inside the handler, one event at a
// time, so no bridge component needs locking.
type Loop struct {
	events chan any
	done   chan struct{}
}

// NewLoop creates a loop with the given queue size.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = types.EventChannelBuffer
	}
	return &Loop{
		events: make(chan any, buffer),
		done:   make(chan struct{}),
	}
}

// Post queues ev. It blocks while the queue is full and drops ev once the
// loop has stopped. Safe from any goroutine.
func (l *Loop) Post(ev any) {
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

// PostFunc queues fn to run on the loop.
func (l *Loop) PostFunc(fn func()) {
	l.Post(events.TaskMsg{Fn: fn})
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := events.TaskMsg{Fn: func() {
		defer close(finished)
		fn()
	}}
	select {
	case l.events <- task:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run dispatches events in arrival order until ctx is done. TaskMsg is
// handled here; everything else goes to handle.
func (l *Loop) Run(ctx context.Context, handle func(any)) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.events:
			if task, ok := ev.(events.TaskMsg); ok {
				if task.Fn != nil {
					task.Fn()
				}
				continue
			}
			handle(ev)
		}
	}
}
