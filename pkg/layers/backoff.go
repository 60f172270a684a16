package layers

import "golang.org/x/exp/rand"

// Backoff draws the number of idle slots to wait after the attempt-th
// consecutive contention (attempt starts at 1).
type Backoff interface {
	Slots(attempt int) int
}

// RandomBackoff draws uniformly from a window that doubles with every
// contention and saturates at MaxWindow.
type RandomBackoff struct {
	MinWindow int
	MaxWindow int
	Rand      *rand.Rand // nil uses the global source
}

func (b *RandomBackoff) Window(attempt int) int {
	w := b.MinWindow
	for i := 1; i < attempt && w < b.MaxWindow; i++ {
		w <<= 1
	}
	return min(w, b.MaxWindow)
}

func (b *RandomBackoff) Slots(attempt int) int {
	n := b.Window(attempt) + 1
	if b.Rand == nil {
		return rand.Intn(n)
	}
	return b.Rand.Intn(n)
}
