// Package iosched serializes persistent-storage operations per file path.
// Saves and loads for one path must land in the order they were requested,
// even when the requests come from different instances, but operations on
// unrelated paths should not wait on each other.
package iosched

import "sync"

// Scheduler hands out chain positions. For each path it remembers the most
// recently issued link; a new operation is fenced behind it.
type Scheduler struct {
	mu   sync.Mutex
	last map[string]chan struct{}
}

func New() *Scheduler {
	return &Scheduler{last: make(map[string]chan struct{})}
}

// Ordered claims the next position in path's chain and returns the operation
// wrapped so that it waits for every earlier operation on the same path,
// runs, and then releases the operations queued behind it.
//
// The position is claimed now, at call time, so the order of Ordered calls is
// the order ops run in regardless of which goroutines invoke the returned
// closures or when. Each closure must be invoked exactly once; a link that is
// never run stalls the rest of its path's chain.
func (s *Scheduler) Ordered(path string, op func() error) func() error {
	s.mu.Lock()
	prev := s.last[path]
	done := make(chan struct{})
	s.last[path] = done
	s.mu.Unlock()

	return func() error {
		if prev != nil {
			<-prev
		}
		defer func() {
			s.mu.Lock()
			if s.last[path] == done {
				delete(s.last, path)
			}
			s.mu.Unlock()
			close(done)
		}()
		return op()
	}
}
