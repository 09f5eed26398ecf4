// Package fiber implements a cooperative scheduler: exactly one fiber runs at
// a time, and control only changes hands at explicit suspension points
// (Condition.Wait and everything built on it).
//
// Each fiber is backed by a goroutine that only executes while it holds the
// scheduler's baton. The goroutine that calls Run is the anchor; it hands the
// baton to one ready fiber per pump step and gets it back when that fiber
// parks or returns. Other goroutines (socket readers, timers) must enter the
// scheduler domain through Input.
package fiber

import (
	"sync"
	"time"

	"github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
)

var logger = log.New("fiber")

// SetLogLevel sets the level of the scheduler's logger, e.g. log.LevelDebug.
func SetLogLevel(level int) { logger.SetLevel(level) }

// DefaultPoolSize is the default number of idle workers kept for reuse.
const DefaultPoolSize = 10

// ErrNotInFiber is the panic value raised when a suspension point is reached
// outside of a fiber (e.g. on the anchor goroutine).
var ErrNotInFiber = errors.New("fiber: wait called outside of a fiber")

// Fiber identifies one cooperative continuation.
type Fiber struct {
	id   uint64
	name string
	fn   func()
	w    *worker
}

// ID returns the unique, increasing id of the fiber.
func (f *Fiber) ID() uint64 { return f.id }

// Name returns the name the fiber was created with.
func (f *Fiber) Name() string { return f.name }

// A worker is the goroutine backing a fiber. Workers outlive their fibers and
// are pooled, so a finished fiber's goroutine (and its grown stack) is reused
// by the next one.
type worker struct {
	resume chan struct{}
	f      *Fiber
}

type yieldKind int

const (
	parked yieldKind = iota
	exited
)

type pending struct {
	fn    func()
	taken bool
	done  bool
}

// Scheduler owns the ready queue, the current fiber, the worker pool and the
// cross-goroutine input gate. The zero value is not usable; call New.
//
// Scheduler state is only touched from the scheduler domain: the running
// fiber, the anchor between pump steps, or a closure passed to Input.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	input   *pending
	stopped bool

	ready   []*Fiber
	current *Fiber
	active  int
	nextID  uint64

	idle  chan *worker
	yield chan yieldKind

	poolSize int
}

// New returns a Scheduler with no fibers.
func New(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		yield:    make(chan yieldKind),
		poolSize: DefaultPoolSize,
	}
	s.cond = sync.NewCond(&s.mu)
	if err := s.Option(opts...); err != nil {
		return nil, err
	}
	s.idle = make(chan *worker, s.poolSize)
	return s, nil
}

// Option sets the options specified.
func (s *Scheduler) Option(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}
	return nil
}

// Create makes a new fiber running fn. The fiber is queued behind the caller,
// which keeps running; creation is not a suspension point.
func (s *Scheduler) Create(name string, fn func()) {
	s.nextID++
	f := &Fiber{id: s.nextID, name: name, fn: fn}
	select {
	case w := <-s.idle:
		f.w = w
	default:
		f.w = &worker{resume: make(chan struct{})}
		go s.work(f.w)
	}
	f.w.f = f
	s.active++
	s.ready = append(s.ready, f)
}

func (s *Scheduler) work(w *worker) {
	for range w.resume {
		f := w.f
		f.fn()
		if logger.IsTrace() {
			logger.Trace("exit", "fiber", f.id, "name", f.name)
		}
		w.f = nil

		pooled := false
		select {
		case s.idle <- w:
			pooled = true
		default:
		}
		s.yield <- exited
		if !pooled {
			return
		}
	}
}

// Run is one pump step of the anchor. It blocks until a fiber is ready or an
// input closure is pending, executes the pending closure (if any), then
// resumes at most one ready fiber and returns once it parks or exits.
// It returns the number of fibers still alive.
func (s *Scheduler) Run() int {
	s.mu.Lock()
	for len(s.ready) == 0 && s.input == nil && !s.stopped {
		s.cond.Wait()
	}
	in := s.input
	if s.stopped {
		s.mu.Unlock()
		return s.active
	}
	if in != nil {
		in.taken = true
	}
	s.mu.Unlock()

	if in != nil {
		in.fn()
		s.mu.Lock()
		in.done = true
		s.input = nil
		s.cond.Broadcast()
		s.mu.Unlock()
	}

	if len(s.ready) == 0 {
		return s.active
	}
	f := s.ready[0]
	s.ready[0] = nil
	s.ready = s.ready[1:]

	if logger.IsTrace() {
		logger.Trace("resume", "fiber", f.id, "name", f.name, "ready", len(s.ready))
	}
	s.current = f
	f.w.resume <- struct{}{}
	if k := <-s.yield; k == exited {
		s.active--
	}
	s.current = nil
	return s.active
}

// Loop pumps Run until no fibers remain or Stop is called.
func (s *Scheduler) Loop() {
	for s.active > 0 && !s.Stopped() {
		s.Run()
	}
}

// Stop makes Run return immediately and Input refuse new closures. Parked
// fibers are abandoned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Input runs fn in the scheduler domain and blocks until it has run. It is
// the only way for a goroutine outside the scheduler to touch scheduler or
// protocol state. Only one closure is pending at a time. Input reports false
// if the scheduler was stopped before fn ran.
func (s *Scheduler) Input(fn func()) bool {
	p := &pending{fn: fn}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.input != nil && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return false
	}
	s.input = p
	s.cond.Broadcast()
	for !p.done {
		if s.stopped && !p.taken {
			s.input = nil
			return false
		}
		s.cond.Wait()
	}
	return true
}

// Delay parks the calling fiber for at least d.
func (s *Scheduler) Delay(d time.Duration) {
	done := NewCondition(s)
	go func() {
		time.Sleep(d)
		s.Input(done.Notify)
	}()
	done.Wait()
}

// Yield requeues the calling fiber behind every ready fiber and parks it.
// It panics with ErrNotInFiber when called outside a fiber.
func (s *Scheduler) Yield() {
	f := s.current
	if f == nil {
		panic(ErrNotInFiber)
	}
	s.ready = append(s.ready, f)
	s.suspend(f)
}

// Active returns the number of fibers that have not returned yet.
func (s *Scheduler) Active() int { return s.active }

// Current returns the running fiber, or nil on the anchor.
func (s *Scheduler) Current() *Fiber { return s.current }

func (s *Scheduler) suspend(f *Fiber) {
	if logger.IsTrace() {
		logger.Trace("park", "fiber", f.id, "name", f.name)
	}
	s.yield <- parked
	<-f.w.resume
}
