package camera

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"
)

// SyntheticProvider produces a moving test pattern without hardware.
// It is used by tests and by the "synthetic" source.
type SyntheticProvider struct {
	// Positions lists the positions that have a device. Empty means both.
	Positions []Position

	// MaxWidth and MaxHeight bound the supported resolutions.
	// Zero means 1920x1080.
	MaxWidth  int
	MaxHeight int

	// RejectOpen makes Open fail with ErrInputRejected.
	RejectOpen bool

	// OpenError, when set, is consulted after Check. A non-nil result fails
	// Open, as a driver refusing a mode it advertised would.
	OpenError func(cfg Config) error

	// ReadError, when set, is returned by every n-th read (see ErrorEvery).
	ReadError  error
	ErrorEvery int

	opened atomic.Int64
	closed atomic.Int64

	mu      sync.Mutex
	devices []*SyntheticDevice
}

// Check implements Provider.
func (p *SyntheticProvider) Check(cfg Config) error {
	if !p.hasPosition(cfg.Position) {
		return fmt.Errorf("%w: no %s camera", ErrDeviceUnavailable, cfg.Position)
	}
	res, ok := cfg.Size()
	if !ok {
		return fmt.Errorf("%w: unknown resolution %q", ErrDeviceUnavailable, cfg.Resolution)
	}
	maxW, maxH := p.MaxWidth, p.MaxHeight
	if maxW == 0 {
		maxW = 1920
	}
	if maxH == 0 {
		maxH = 1080
	}
	if res.Width > maxW || res.Height > maxH {
		return fmt.Errorf("%w: %s exceeds %dx%d", ErrDeviceUnavailable, res.Name, maxW, maxH)
	}
	return nil
}

func (p *SyntheticProvider) hasPosition(pos Position) bool {
	if len(p.Positions) == 0 {
		return pos.Valid()
	}
	for _, candidate := range p.Positions {
		if candidate == pos {
			return true
		}
	}
	return false
}

// Open implements Provider.
func (p *SyntheticProvider) Open(cfg Config) (Device, error) {
	if err := p.Check(cfg); err != nil {
		return nil, err
	}
	if p.RejectOpen {
		return nil, fmt.Errorf("%w: synthetic %s camera refused", ErrInputRejected, cfg.Position)
	}
	if p.OpenError != nil {
		if err := p.OpenError(cfg); err != nil {
			return nil, err
		}
	}
	res, _ := cfg.Size()
	fps := cfg.Framerate
	if fps <= 0 {
		fps = 30
	}

	d := &SyntheticDevice{
		provider: p,
		width:    res.Width,
		height:   res.Height,
		format:   cfg.PixelFormat,
		interval: time.Second / time.Duration(fps),
		next:     time.Now(),
	}
	p.opened.Add(1)

	p.mu.Lock()
	p.devices = append(p.devices, d)
	p.mu.Unlock()
	return d, nil
}

// Opened returns how many devices were opened.
func (p *SyntheticProvider) Opened() int64 { return p.opened.Load() }

// Closed returns how many devices were closed.
func (p *SyntheticProvider) Closed() int64 { return p.closed.Load() }

// MaxConcurrentReads returns the highest number of simultaneous Read calls
// observed across all devices.
func (p *SyntheticProvider) MaxConcurrentReads() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var maxReads int64
	for _, d := range p.devices {
		if v := d.maxInflight.Load(); v > maxReads {
			maxReads = v
		}
	}
	return maxReads
}

// SyntheticDevice renders a square sweeping across a gradient.
type SyntheticDevice struct {
	provider *SyntheticProvider
	width    int
	height   int
	format   PixelFormat
	interval time.Duration

	mu     sync.Mutex
	next   time.Time
	n      int
	closed bool

	inflight    atomic.Int64
	maxInflight atomic.Int64
}

// errDeviceClosed is returned by Read after Close.
var errDeviceClosed = errors.New("camera: device closed")

// Read implements Device. It paces reads to the configured framerate.
func (d *SyntheticDevice) Read() (RawBuffer, error) {
	cur := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		prev := d.maxInflight.Load()
		if cur <= prev || d.maxInflight.CompareAndSwap(prev, cur) {
			break
		}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return RawBuffer{}, errDeviceClosed
	}
	wait := time.Until(d.next)
	d.next = d.next.Add(d.interval)
	if wait < 0 {
		d.next = time.Now().Add(d.interval)
	}
	d.n++
	n := d.n
	d.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}

	p := d.provider
	if p.ReadError != nil && p.ErrorEvery > 0 && n%p.ErrorEvery == 0 {
		return RawBuffer{}, p.ReadError
	}

	img := d.render(n)
	if d.format == PixelFormatBGR24 {
		return rgbaToBGR24(img), nil
	}
	return EncodeNV12(img), nil
}

func (d *SyntheticDevice) render(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	side := d.height / 4
	if side < 1 {
		side = 1
	}
	sx := (n * 8) % d.width
	sy := d.height/2 - side/2
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			c := color.RGBA{R: uint8(x * 255 / d.width), G: uint8(y * 255 / d.height), B: 96, A: 0xff}
			if x >= sx && x < sx+side && y >= sy && y < sy+side {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func rgbaToBGR24(img *image.RGBA) RawBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			j := (y*w + x) * 3
			out[j], out[j+1], out[j+2] = img.Pix[i+2], img.Pix[i+1], img.Pix[i]
		}
	}
	return EncodeBGR24(out, w, h, w*3)
}

// Close implements Device. Closing twice is a no-op.
func (d *SyntheticDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.provider.closed.Add(1)
	return nil
}
