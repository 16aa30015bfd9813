// Package display shows annotated frames in a native OpenCV window.
package display

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-posecam/internal/log"
)

// Keys that close the window.
const (
	keyEsc = 27
	keyQ   = 'q'
)

// Config holds window settings.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Title   string `yaml:"title" json:"title"`
}

// DefaultConfig returns a disabled window titled "posecam".
func DefaultConfig() Config {
	return Config{Title: "posecam"}
}

// Window is an overlay.Display backed by a HighGUI window. Show may be
// called from any goroutine; Run owns the window and must run on the
// main OS thread.
type Window struct {
	title  string
	frames chan image.Image
	logger *zap.Logger
}

// NewWindow creates a window. Nothing is shown until Run.
func NewWindow(title string) *Window {
	return &Window{
		title:  title,
		frames: make(chan image.Image, 1),
		logger: log.Named("display"),
	}
}

// Show queues img, replacing a frame the window has not drawn yet.
func (w *Window) Show(img image.Image) {
	for {
		select {
		case w.frames <- img:
			return
		default:
		}
		select {
		case <-w.frames:
		default:
		}
	}
}

// latest returns the queued frame, if any.
func (w *Window) latest() (image.Image, bool) {
	select {
	case img := <-w.frames:
		return img, true
	default:
		return nil, false
	}
}

// Run draws queued frames until ctx is done or the user closes the
// window with q, Esc or the close button.
func (w *Window) Run(ctx context.Context) error {
	win := gocv.NewWindow(w.title)
	defer win.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if img, ok := w.latest(); ok {
			next, err := gocv.ImageToMatRGB(img)
			if err != nil {
				w.logger.Warn("frame conversion failed", zap.Error(err))
			} else {
				mat.Close()
				mat = next
				win.IMShow(mat)
			}
		}

		key := win.WaitKey(10)
		if key == keyEsc || key == keyQ {
			w.logger.Info("window closed by key")
			return nil
		}
		if win.GetWindowProperty(gocv.WindowPropertyVisible) < 1 && !mat.Empty() {
			w.logger.Info("window closed")
			return nil
		}
		if mat.Empty() {
			time.Sleep(10 * time.Millisecond)
		}
	}
}
