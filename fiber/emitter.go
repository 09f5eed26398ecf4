package fiber

// Emitter fans a value out to persistent listeners and one-shot waiters.
//
// Each Emit spawns a fresh fiber per listener, then hands the value to every
// fiber parked in Next. Listener fibers are queued ahead of the woken waiters.
type Emitter[T any] struct {
	s         *Scheduler
	cv        *Condition
	listeners []func(T)
	outputs   []*T
}

// NewEmitter returns an Emitter bound to s.
func NewEmitter[T any](s *Scheduler) *Emitter[T] {
	return &Emitter[T]{s: s, cv: NewCondition(s)}
}

// Listen registers fn to be run in its own fiber for every emitted value.
func (e *Emitter[T]) Listen(fn func(T)) {
	e.listeners = append(e.listeners, fn)
}

// Next parks until the next Emit and returns its value.
func (e *Emitter[T]) Next() T {
	var v T
	e.outputs = append(e.outputs, &v)
	e.cv.Wait()
	return v
}

// Emit delivers v. It does not yield.
func (e *Emitter[T]) Emit(v T) {
	for _, fn := range e.listeners {
		fn := fn
		e.s.Create("listener", func() { fn(v) })
	}
	for _, out := range e.outputs {
		*out = v
	}
	e.outputs = nil
	e.cv.Notify()
}
