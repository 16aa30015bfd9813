package camera

import (
	"image"
	"time"
)

// RawBuffer is one undecoded buffer as read from a device.
//
// NV12 uses two planes: Y (Strides[0] bytes per row, Height rows) and
// interleaved CbCr (Strides[1] bytes per row, (Height+1)/2 rows).
// BGR24 uses a single packed plane.
type RawBuffer struct {
	Width   int
	Height  int
	Format  PixelFormat
	Planes  [][]byte
	Strides []int
}

// Frame is a decoded, oriented image handed to the listener for one
// estimation and draw cycle.
type Frame struct {
	Image  *image.RGBA
	Format PixelFormat // Format of the raw buffer it was decoded from
	Seq    uint64
	Time   time.Time
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Listener receives frames from a capture session.
// OnFrame is called from the session's delivery goroutine, one frame at a time.
type Listener interface {
	OnFrame(f Frame)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(f Frame)

// OnFrame calls fn(f).
func (fn ListenerFunc) OnFrame(f Frame) {
	fn(f)
}
