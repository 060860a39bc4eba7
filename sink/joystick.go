package sink

import (
	"sync"

	"github.com/yosanyu/retromux/retro"
)

const maxPlayers = 2

// Joystick holds controller state as button bitmasks written by the host
// side and read by the emulation thread's input_state queries. Bit i of a
// mask is the joypad button with id i.
type Joystick struct {
	mu      sync.Mutex
	buttons [maxPlayers]uint32
}

func NewJoystick() *Joystick {
	return &Joystick{}
}

// Set updates the button bitmask for a player.
func (j *Joystick) Set(player int, buttons uint32) {
	if player < 0 || player >= maxPlayers {
		return
	}
	j.mu.Lock()
	j.buttons[player] = buttons
	j.mu.Unlock()
}

// Press sets one button for a player, leaving the rest alone.
func (j *Joystick) Press(player int, id uint32, down bool) {
	if player < 0 || player >= maxPlayers || id > 31 {
		return
	}
	j.mu.Lock()
	if down {
		j.buttons[player] |= 1 << id
	} else {
		j.buttons[player] &^= 1 << id
	}
	j.mu.Unlock()
}

// Poll latches nothing; state is pushed by the host side as it changes.
func (j *Joystick) Poll() {}

// State answers joypad queries from the mask; anything else reads as
// released.
func (j *Joystick) State(port, device, index, id uint32) int16 {
	if device != retro.DeviceJoypad || port >= maxPlayers || id > 15 {
		return 0
	}
	j.mu.Lock()
	mask := j.buttons[port]
	j.mu.Unlock()
	if mask&(1<<id) != 0 {
		return 1
	}
	return 0
}
