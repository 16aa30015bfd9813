package camera

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// GocvProvider opens local cameras through OpenCV.
type GocvProvider struct {
	// Devices maps a position to an OpenCV device index.
	Devices map[Position]int

	// MaxWidth and MaxHeight bound the resolutions tried on the hardware.
	// Zero means 1920x1080.
	MaxWidth  int
	MaxHeight int
}

// DefaultDevices maps the back camera to index 0 and the front camera to 1.
func DefaultDevices() map[Position]int {
	return map[Position]int{
		PositionBack:  0,
		PositionFront: 1,
	}
}

// Check implements Provider.
func (p *GocvProvider) Check(cfg Config) error {
	if _, ok := p.Devices[cfg.Position]; !ok {
		return fmt.Errorf("%w: no %s camera configured", ErrDeviceUnavailable, cfg.Position)
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

// Open implements Provider. It negotiates the resolution with the driver
// and fails with ErrDeviceUnavailable when the driver picks another size.
func (p *GocvProvider) Open(cfg Config) (Device, error) {
	if err := p.Check(cfg); err != nil {
		return nil, err
	}
	idx := p.Devices[cfg.Position]
	res, _ := cfg.Size()

	vc, err := gocv.OpenVideoCapture(idx)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", ErrInputRejected, idx, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d not opened", ErrInputRejected, idx)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	gotW := int(math.Round(vc.Get(gocv.VideoCaptureFrameWidth)))
	gotH := int(math.Round(vc.Get(gocv.VideoCaptureFrameHeight)))
	if gotW != res.Width || gotH != res.Height {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d negotiated %dx%d, want %s",
			ErrDeviceUnavailable, idx, gotW, gotH, res.Name)
	}

	return newMatDevice(vc, cfg.PixelFormat, image.Point{}, false), nil
}

// FileProvider replays a video file as if it were a camera. Frames are
// resized to the configured resolution and the file loops at EOF.
type FileProvider struct {
	Path string
}

// Check implements Provider.
func (p *FileProvider) Check(cfg Config) error {
	if _, err := os.Stat(p.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if _, ok := cfg.Size(); !ok {
		return fmt.Errorf("%w: unknown resolution %q", ErrDeviceUnavailable, cfg.Resolution)
	}
	return nil
}

// Open implements Provider.
func (p *FileProvider) Open(cfg Config) (Device, error) {
	if err := p.Check(cfg); err != nil {
		return nil, err
	}
	vc, err := gocv.VideoCaptureFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInputRejected, p.Path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: cannot open video capture %s", ErrInputRejected, p.Path)
	}
	res, _ := cfg.Size()
	d := newMatDevice(vc, cfg.PixelFormat, image.Pt(res.Width, res.Height), true)
	if cfg.Framerate > 0 {
		d.interval = time.Second / time.Duration(cfg.Framerate)
	}
	return d, nil
}

// matDevice reads BGR mats from an OpenCV capture and repacks them in the
// configured pixel format. NV12 goes through OpenCV's YCrCb conversion.
type matDevice struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	ycc    gocv.Mat
	format PixelFormat
	size   image.Point // Resize target, zero keeps the native size
	loop   bool
	closed bool

	// Files have no clock of their own; reads are paced to interval.
	interval time.Duration
	last     time.Time
}

func newMatDevice(vc *gocv.VideoCapture, format PixelFormat, size image.Point, loop bool) *matDevice {
	return &matDevice{
		vc:     vc,
		mat:    gocv.NewMat(),
		ycc:    gocv.NewMat(),
		format: format,
		size:   size,
		loop:   loop,
	}
}

// Read implements Device.
func (d *matDevice) Read() (RawBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return RawBuffer{}, errDeviceClosed
	}
	if d.interval > 0 {
		if wait := time.Until(d.last.Add(d.interval)); wait > 0 {
			time.Sleep(wait)
		}
		d.last = time.Now()
	}

	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		if !d.loop {
			return RawBuffer{}, fmt.Errorf("camera: read failed")
		}
		d.vc.Set(gocv.VideoCapturePosFrames, 0)
		if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
			return RawBuffer{}, fmt.Errorf("camera: read failed after rewind")
		}
	}

	if d.size != (image.Point{}) && (d.mat.Cols() != d.size.X || d.mat.Rows() != d.size.Y) {
		gocv.Resize(d.mat, &d.mat, d.size, 0, 0, gocv.InterpolationLinear)
	}
	if d.mat.Channels() != 3 {
		return RawBuffer{}, fmt.Errorf("%w: %d channel mat", ErrUnsupportedFormat, d.mat.Channels())
	}

	w, h := d.mat.Cols(), d.mat.Rows()
	if d.format == PixelFormatBGR24 {
		return EncodeBGR24(d.mat.ToBytes(), w, h, w*3), nil
	}

	// OpenCV's YCrCb is full range BT.601, the same as NV12 here.
	if err := gocv.CvtColor(d.mat, &d.ycc, gocv.ColorBGRToYCrCb); err != nil {
		return RawBuffer{}, fmt.Errorf("camera: convert to YCrCb: %w", err)
	}
	data, err := d.ycc.DataPtrUint8()
	if err != nil {
		return RawBuffer{}, fmt.Errorf("camera: read YCrCb: %w", err)
	}
	return PackNV12(data, w, h, w*3), nil
}

// Close implements Device. Closing twice is a no-op.
func (d *matDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.mat.Close()
	_ = d.ycc.Close()
	return d.vc.Close()
}
