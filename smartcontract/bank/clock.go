package bank

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SlotDuration is the target duration of one slot.
const SlotDuration = 400 * time.Millisecond

// ManualClock is a slot clock that only moves when told to. It is the clock
// used for tests and offline rehearsals.
type ManualClock struct {
	mu   sync.Mutex
	slot uint64
}

func NewManualClock(slot uint64) *ManualClock {
	return &ManualClock{slot: slot}
}

func (c *ManualClock) Slot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

// Warp moves the clock to slot. Slots never go backwards; an earlier slot is
// ignored.
func (c *ManualClock) Warp(slot uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot > c.slot {
		c.slot = slot
	}
}

func (c *ManualClock) Advance(slots uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot += slots
}

// WallClock derives the slot from elapsed wall time since genesis.
type WallClock struct {
	clock        clockwork.Clock
	genesis      time.Time
	slotDuration time.Duration
}

func NewWallClock(clock clockwork.Clock, genesis time.Time) *WallClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WallClock{clock: clock, genesis: genesis, slotDuration: SlotDuration}
}

func (c *WallClock) Slot() uint64 {
	elapsed := c.clock.Since(c.genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / c.slotDuration)
}
