package fiber

import "github.com/pkg/errors"

// An Option is a configuration function, which configures the scheduler.
type Option func(*Scheduler) error

// OptPoolSize sets how many idle workers are kept for reuse once their
// fibers return. Workers beyond the bound exit.
func OptPoolSize(n int) Option {
	return func(s *Scheduler) error {
		if n < 0 {
			return errors.Errorf("fiber: invalid pool size %d", n)
		}
		s.poolSize = n
		return nil
	}
}
