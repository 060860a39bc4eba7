package coretest

import (
	"runtime"
	"unsafe"

	"github.com/yosanyu/retromux/retro"
)

// cVar is the ABI shape of one variable entry, key and value as C strings.
type cVar struct {
	key   *byte
	value *byte
}

// declareVariables hands the host the core's option set as a
// NULL-terminated array, then reads every value back the way real cores
// prime their settings at init.
func (c *Core) declareVariables() {
	vars := make([]cVar, 0, len(c.Variables)+1)
	for _, kv := range c.Variables {
		vars = append(vars, cVar{key: cstr(kv[0]), value: cstr(kv[1])})
	}
	vars = append(vars, cVar{})
	c.slot.Environment(retro.EnvSetVariables, unsafe.Pointer(&vars[0]))
	runtime.KeepAlive(vars)

	c.readVariables()
}

// readVariables queries the current value of every declared key.
func (c *Core) readVariables() {
	for _, kv := range c.Variables {
		v := cVar{key: cstr(kv[0])}
		if c.slot.Environment(retro.EnvGetVariable, unsafe.Pointer(&v)) {
			val := goString(v.value)
			c.mu.Lock()
			c.varsSeen[kv[0]] = val
			c.mu.Unlock()
		}
	}
}

func cstr(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
