package fiber

// Condition is a list of parked fibers. Notify wakes everyone that is waiting
// at the time of the call.
type Condition struct {
	s       *Scheduler
	waiting []*Fiber
}

// NewCondition returns an empty Condition bound to s.
func NewCondition(s *Scheduler) *Condition {
	return &Condition{s: s}
}

// Wait parks the calling fiber until the next Notify. It panics with
// ErrNotInFiber when called outside a fiber.
func (c *Condition) Wait() {
	f := c.s.current
	if f == nil {
		panic(ErrNotInFiber)
	}
	c.waiting = append(c.waiting, f)
	c.s.suspend(f)
}

// Notify moves every waiting fiber, in wait order, to the ready queue.
// It does not yield.
func (c *Condition) Notify() {
	if len(c.waiting) == 0 {
		return
	}
	c.s.ready = append(c.s.ready, c.waiting...)
	c.waiting = nil
}

// Waiting returns the number of parked fibers.
func (c *Condition) Waiting() int { return len(c.waiting) }
