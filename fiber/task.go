package fiber

// Task is a one-shot completion flag.
type Task struct {
	resolved bool
	cv       *Condition
}

// NewTask returns an unresolved Task bound to s.
func NewTask(s *Scheduler) *Task {
	return &Task{cv: NewCondition(s)}
}

// Wait parks until the task is resolved. It returns at once if it already is.
func (t *Task) Wait() {
	if !t.resolved {
		t.cv.Wait()
	}
}

// Resolve marks the task done and wakes all waiters.
func (t *Task) Resolve() {
	t.resolved = true
	t.cv.Notify()
}

// Resolved reports whether Resolve has been called.
func (t *Task) Resolved() bool { return t.resolved }

// Promise is a Task that carries a value.
type Promise[T any] struct {
	task  *Task
	value T
}

// NewPromise returns an unresolved Promise bound to s.
func NewPromise[T any](s *Scheduler) *Promise[T] {
	return &Promise[T]{task: NewTask(s)}
}

// Wait parks until the promise is resolved and returns its value.
func (p *Promise[T]) Wait() T {
	p.task.Wait()
	return p.value
}

// Resolve stores v and wakes all waiters.
func (p *Promise[T]) Resolve(v T) {
	p.value = v
	p.task.Resolve()
}

// Resolved reports whether Resolve has been called.
func (p *Promise[T]) Resolved() bool { return p.task.Resolved() }
