package coretest

import (
	"sync"

	"github.com/yosanyu/retromux/loader"
)

// Backend hands out fake cores and records every image path the loader
// asked it to map.
type Backend struct {
	mu      sync.Mutex
	factory func() *Core
	err     error
	cores   []*Core
	loads   []string
}

// NewBackend builds a backend that calls factory once per load.
func NewBackend(factory func() *Core) *Backend {
	return &Backend{factory: factory}
}

// Fail makes every following load return err.
func (b *Backend) Fail(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *Backend) Load(path string) (loader.Core, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	c := b.factory()
	c.defaults()
	b.cores = append(b.cores, c)
	b.loads = append(b.loads, path)
	return c, nil
}

// Loads returns the image paths mapped so far, in load order.
func (b *Backend) Loads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.loads...)
}

// Cores returns every core created so far, in load order.
func (b *Backend) Cores() []*Core {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Core(nil), b.cores...)
}

// Core returns the i-th created core, or nil.
func (b *Backend) Core(i int) *Core {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.cores) {
		return nil
	}
	return b.cores[i]
}
