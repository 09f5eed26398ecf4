package fiber

import (
	"testing"
	"time"

	"github.com/mgutz/logxi/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T, opts ...Option) *Scheduler {
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func TestCreateDoesNotYield(t *testing.T) {
	s := newScheduler(t)
	var order []string
	s.Create("a", func() {
		s.Create("c", func() { order = append(order, "c") })
		order = append(order, "a")
	})
	s.Create("b", func() { order = append(order, "b") })
	s.Loop()
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, s.Active())
}

func TestRunResumesOneFiber(t *testing.T) {
	s := newScheduler(t)
	cv := NewCondition(s)
	var steps []string
	s.Create("a", func() {
		steps = append(steps, "a1")
		cv.Wait()
		steps = append(steps, "a2")
	})
	s.Create("b", func() {
		steps = append(steps, "b")
		cv.Notify()
	})

	assert.Equal(t, 2, s.Run())
	assert.Equal(t, []string{"a1"}, steps)
	assert.Equal(t, 1, cv.Waiting())

	assert.Equal(t, 1, s.Run())
	assert.Equal(t, []string{"a1", "b"}, steps)

	assert.Equal(t, 0, s.Run())
	assert.Equal(t, []string{"a1", "b", "a2"}, steps)
}

func TestYieldRunsReadyFibersFirst(t *testing.T) {
	s := newScheduler(t)
	e := NewEmitter[int](s)
	var got []int
	s.Create("consumer", func() {
		for len(got) < 2 {
			got = append(got, e.Next())
		}
	})
	s.Create("producer", func() {
		e.Emit(1)
		s.Yield()
		e.Emit(2)
	})
	s.Loop()
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 0, s.Active())
}

func TestYieldOutsideFiberPanics(t *testing.T) {
	s := newScheduler(t)
	assert.PanicsWithValue(t, ErrNotInFiber, s.Yield)
}

func TestNotifyOnlyWakesCurrentWaiters(t *testing.T) {
	s := newScheduler(t)
	cv := NewCondition(s)
	woken := 0

	cv.Notify()
	s.Create("w", func() {
		cv.Wait()
		woken++
	})
	s.Run()
	require.Equal(t, 1, cv.Waiting())

	cv.Notify()
	assert.Equal(t, 0, cv.Waiting())
	s.Create("late", func() { cv.Wait() })
	s.Run()
	s.Run()
	assert.Equal(t, 1, woken)
	assert.Equal(t, 1, cv.Waiting())
	assert.Equal(t, 1, s.Active())
}

func TestWaitOutsideFiberPanics(t *testing.T) {
	s := newScheduler(t)
	assert.PanicsWithValue(t, ErrNotInFiber, func() { NewCondition(s).Wait() })
}

func TestTaskAndPromise(t *testing.T) {
	s := newScheduler(t)
	task := NewTask(s)
	p := NewPromise[int](s)
	var got []int

	s.Create("waiter", func() {
		task.Wait()
		got = append(got, p.Wait())
	})
	s.Create("resolver", func() {
		task.Resolve()
		p.Resolve(42)
	})
	s.Loop()

	assert.Equal(t, []int{42}, got)
	assert.True(t, task.Resolved())
	assert.True(t, p.Resolved())

	s.Create("after", func() { got = append(got, p.Wait()) })
	s.Loop()
	assert.Equal(t, []int{42, 42}, got)
}

func TestEmitterOrdering(t *testing.T) {
	s := newScheduler(t)
	e := NewEmitter[string](s)
	var log []string

	e.Listen(func(v string) { log = append(log, "l1:"+v) })
	e.Listen(func(v string) { log = append(log, "l2:"+v) })
	s.Create("w1", func() { log = append(log, "w1:"+e.Next()) })
	s.Create("w2", func() { log = append(log, "w2:"+e.Next()) })
	s.Create("emit", func() {
		e.Emit("x")
		log = append(log, "emitted")
	})
	s.Loop()

	assert.Equal(t, []string{"emitted", "l1:x", "l2:x", "w1:x", "w2:x"}, log)
}

func TestEmitterWaitersAreOneShot(t *testing.T) {
	s := newScheduler(t)
	e := NewEmitter[int](s)
	var got []int

	s.Create("w", func() { got = append(got, e.Next()) })
	s.Create("emit", func() {
		e.Emit(1)
		e.Emit(2)
	})
	s.Loop()
	assert.Equal(t, []int{1}, got)
}

func TestWorkerPoolIsBounded(t *testing.T) {
	s := newScheduler(t, OptPoolSize(2))
	for i := 0; i < 5; i++ {
		s.Create("short", func() {})
	}
	s.Loop()
	assert.Len(t, s.idle, 2)

	ran := false
	s.Create("reuse", func() { ran = true })
	assert.Len(t, s.idle, 1)
	s.Loop()
	assert.True(t, ran)
	assert.Len(t, s.idle, 2)
}

func TestInvalidPoolSize(t *testing.T) {
	_, err := New(OptPoolSize(-1))
	assert.Error(t, err)
}

func TestInputWakesParkedFiber(t *testing.T) {
	s := newScheduler(t)
	cv := NewCondition(s)
	done := false
	s.Create("parked", func() {
		cv.Wait()
		done = true
	})
	require.Equal(t, 1, s.Run())

	ok := make(chan bool, 1)
	go func() { ok <- s.Input(cv.Notify) }()

	assert.Equal(t, 0, s.Run())
	assert.True(t, done)
	assert.True(t, <-ok)
}

func TestDelay(t *testing.T) {
	s := newScheduler(t)
	var elapsed time.Duration
	s.Create("sleeper", func() {
		start := time.Now()
		s.Delay(20 * time.Millisecond)
		elapsed = time.Since(start)
	})
	s.Loop()
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestStop(t *testing.T) {
	s := newScheduler(t)
	s.Create("parked", func() { NewCondition(s).Wait() })
	s.Run()

	s.Stop()
	assert.True(t, s.Stopped())
	assert.Equal(t, 1, s.Run())
	assert.False(t, s.Input(func() {}))
	s.Loop()
}

func TestSetLogLevel(t *testing.T) {
	SetLogLevel(log.LevelDebug)
	defer SetLogLevel(log.LevelWarn)
	assert.True(t, logger.IsDebug())
	assert.False(t, logger.IsTrace())
}
