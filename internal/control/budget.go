package control

// HeaterBudget counts plates currently driving their heater at full power in
// quantized mode. The count stays within [0, cap]. Owned by the control
// loop; no locking.
type HeaterBudget struct {
	active int
	cap    int
}

// NewHeaterBudget returns an empty budget with the given cap.
func NewHeaterBudget(cap int) *HeaterBudget {
	b := &HeaterBudget{}
	b.SetCap(cap)
	return b
}

// Acquire takes a slot if one is free.
func (b *HeaterBudget) Acquire() bool {
	if b.active >= b.cap {
		return false
	}
	b.active++
	return true
}

// Release returns a slot. It never drops below zero.
func (b *HeaterBudget) Release() {
	if b.active > 0 {
		b.active--
	}
}

// Active returns the number of slots in use.
func (b *HeaterBudget) Active() int { return b.active }

// Cap returns the slot limit.
func (b *HeaterBudget) Cap() int { return b.cap }

// SetCap changes the limit. Slots already held above a lowered cap stay
// counted until released; Acquire refuses until the count is back under the
// cap.
func (b *HeaterBudget) SetCap(cap int) {
	if cap < 0 {
		cap = 0
	}
	b.cap = cap
}
