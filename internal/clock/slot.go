package clock

import "time"

// Slot holds at most one pending timer. It replaces loose timer-handle
// variables: a debounce calls Reset, a retry calls Arm.
//
// All methods must be called from the goroutine that runs posted
// callbacks (the bridge loop). The timer goroutine only hands the
// callback to post; the generation check then runs on the loop, so a
// callback that lost a race with Stop or Reset does nothing.
type Slot struct {
	clock   Clock
	post    func(func())
	timer   Timer
	gen     uint64
	pending bool
}

// Inline runs posted callbacks immediately. Useful with a Fake clock,
// where Advance already runs on the test goroutine.
func Inline(fn func()) { fn() }

// NewSlot creates an empty slot. post delivers fired callbacks to the
// owning goroutine.
func NewSlot(c Clock, post func(func())) *Slot {
	if post == nil {
		post = Inline
	}
	return &Slot{clock: c, post: post}
}

// Reset cancels whatever is pending and schedules fn after d.
func (s *Slot) Reset(d time.Duration, fn func()) {
	s.Stop()
	s.schedule(d, fn)
}

// Arm schedules fn after d only if nothing is pending. Returns false when
// a timer was already pending and fn was not scheduled.
func (s *Slot) Arm(d time.Duration, fn func()) bool {
	if s.pending {
		return false
	}
	s.schedule(d, fn)
	return true
}

// Stop cancels the pending timer, if any.
func (s *Slot) Stop() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
}

// Pending reports whether a timer is scheduled and has not fired.
func (s *Slot) Pending() bool {
	return s.pending
}

func (s *Slot) schedule(d time.Duration, fn func()) {
	s.gen++
	gen := s.gen
	s.pending = true
	s.timer = s.clock.AfterFunc(d, func() {
		s.post(func() {
			if s.gen != gen {
				return
			}
			s.timer = nil
			s.pending = false
			fn()
		})
	})
}
