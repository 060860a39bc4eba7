package instance

import (
	"strings"
	"sync"
)

// options is the instance's settings table. The core reads it through the
// environment callback on the instance thread; the host may change values
// from any goroutine. A host-side change raises the dirty flag, which the
// core consumes through its variable-update query.
type options struct {
	mu     sync.Mutex
	values map[string]string
	dirty  bool
}

func newOptions(initial map[string]string) *options {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &options{values: values}
}

// declareDefault records a core-declared option. A value already present,
// from the host or an earlier declaration, wins over the default.
func (o *options) declareDefault(key, def string) {
	o.mu.Lock()
	if _, ok := o.values[key]; !ok {
		o.values[key] = def
	}
	o.mu.Unlock()
}

func (o *options) get(key string) (string, bool) {
	o.mu.Lock()
	v, ok := o.values[key]
	o.mu.Unlock()
	return v, ok
}

func (o *options) set(key, value string) {
	o.mu.Lock()
	o.values[key] = value
	o.dirty = true
	o.mu.Unlock()
}

// consumeDirty reports whether any value changed since the last call, and
// clears the flag.
func (o *options) consumeDirty() bool {
	o.mu.Lock()
	d := o.dirty
	o.dirty = false
	o.mu.Unlock()
	return d
}

func (o *options) snapshot() map[string]string {
	o.mu.Lock()
	out := make(map[string]string, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	o.mu.Unlock()
	return out
}

// parseDefault extracts the default value from a declaration of the form
// "Description; first|second|third": an optional description ending at the
// semicolon, then |-separated choices of which the first is the default.
func parseDefault(decl string) string {
	s := decl
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[i+1:]
		for len(s) > 0 && s[0] == ' ' {
			s = s[1:]
		}
	}
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	return s
}
