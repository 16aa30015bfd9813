package overlay

import (
	"image"
	"sync"
)

// Display shows a rendered frame. Show is called from the presenter's
// goroutine, one frame at a time. Implementations may keep img but must
// not modify it.
type Display interface {
	Show(img image.Image)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(img image.Image)

// Show calls f(img).
func (f DisplayFunc) Show(img image.Image) { f(img) }

// MultiDisplay fans a frame out to several displays in order.
type MultiDisplay struct {
	mu       sync.RWMutex
	displays []Display
}

// NewMultiDisplay creates a fan-out over ds. Nil entries are skipped.
func NewMultiDisplay(ds ...Display) *MultiDisplay {
	m := &MultiDisplay{}
	for _, d := range ds {
		m.Add(d)
	}
	return m
}

// Add appends a display.
func (m *MultiDisplay) Add(d Display) {
	if d == nil {
		return
	}
	m.mu.Lock()
	m.displays = append(m.displays, d)
	m.mu.Unlock()
}

// Len returns the number of displays.
func (m *MultiDisplay) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.displays)
}

// Show implements Display.
func (m *MultiDisplay) Show(img image.Image) {
	m.mu.RLock()
	ds := m.displays
	m.mu.RUnlock()
	for _, d := range ds {
		d.Show(img)
	}
}
