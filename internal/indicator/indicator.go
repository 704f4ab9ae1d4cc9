// Package indicator simulates the board outputs driven by value changes: a
// GPIO line raised on the first update, used to time propagation on a logic
// analyser, and an LED that shows the parity of the current value.
package indicator

import (
	"log"
	"sync"
)

type Indicator struct {
	mu      sync.RWMutex
	addr    uint16
	led     bool
	gpio    bool
	updates int
}

func New(addr uint16) *Indicator {
	return &Indicator{addr: addr}
}

// ValueChanged sets the GPIO line and switches the LED on for odd values.
func (i *Indicator) ValueChanged(v int32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.gpio = true
	i.led = v%2 != 0
	i.updates++
	log.Printf("[indicator] Node %04x: new val %d, led=%v\n", i.addr, v, i.led)
}

// State returns the LED and GPIO levels.
func (i *Indicator) State() (led, gpio bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.led, i.gpio
}

// Updates returns how many value changes were shown.
func (i *Indicator) Updates() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.updates
}
