package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teslashibe/go-posecam/internal/log"
)

// State is the lifecycle state of a capture session.
type State int32

const (
	StateIdle       State = iota // No device configured
	StateConfigured              // Device attached, not delivering
	StateRunning                 // Delivering frames
	StateStopped                 // Device attached, delivery halted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Stats receives capture counters. pkg/metrics implements it.
type Stats interface {
	FrameCaptured()
	FrameDropped(reason string)
}

// readErrorPause separates retries after a failed device read.
const readErrorPause = 5 * time.Millisecond

// Drop reasons reported to Stats.
const (
	DropRead    = "read"
	DropConvert = "convert"
	DropLate    = "late"
)

// Counters is a snapshot of the session's frame counters.
type Counters struct {
	Captured  uint64 `json:"captured"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Option configures a Capture.
type Option func(*Capture)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Capture) { c.logger = l }
}

// WithStats sets the counters sink.
func WithStats(s Stats) Option {
	return func(c *Capture) { c.stats = s }
}

// Capture is the capture session. It owns one device at a time and
// delivers frames to a registered Listener.
//
// Configure, Start, Stop and Close run serialized on a session goroutine.
// A reader goroutine posts converted frames into a single-slot mailbox,
// replacing any frame the listener has not picked up yet, and a delivery
// goroutine hands frames to the listener one at a time.
type Capture struct {
	provider Provider
	logger   *zap.Logger
	stats    Stats

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// Owned by the session goroutine.
	device     Device
	cfg        Config
	stopReader chan struct{}
	readerDone chan struct{}

	state atomic.Int32

	cfgMu   sync.RWMutex
	current Config

	listenerMu sync.RWMutex
	listener   Listener

	mailbox chan Frame

	seq       atomic.Uint64
	captured  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a capture session backed by provider and starts its
// session and delivery goroutines. Call Close to release them.
func New(provider Provider, opts ...Option) *Capture {
	c := &Capture{
		provider: provider,
		ops:      make(chan func()),
		done:     make(chan struct{}),
		mailbox:  make(chan Frame, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Named("capture")
	}

	c.wg.Add(2)
	go c.sessionLoop()
	go c.deliveryLoop()
	return c
}

// SetListener registers l to receive frames; nil unregisters.
// The session only notifies l and never closes or owns it.
func (c *Capture) SetListener(l Listener) {
	c.listenerMu.Lock()
	c.listener = l
	c.listenerMu.Unlock()
}

func (c *Capture) currentListener() Listener {
	c.listenerMu.RLock()
	defer c.listenerMu.RUnlock()
	return c.listener
}

// State returns the current lifecycle state.
func (c *Capture) State() State {
	return State(c.state.Load())
}

// Config returns the current working configuration.
func (c *Capture) Config() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.current
}

// Counters returns a snapshot of the frame counters.
func (c *Capture) Counters() Counters {
	return Counters{
		Captured:  c.captured.Load(),
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
	}
}

// Configure selects the device and output for cfg. On any failure the
// previous configuration stays in effect, including its running state.
// A successful reconfiguration of a running session resumes delivery.
func (c *Capture) Configure(ctx context.Context, cfg Config) error {
	return c.do(ctx, func() error { return c.configure(cfg) })
}

// Start begins delivering frames. Calling Start on a running session is a no-op.
func (c *Capture) Start(ctx context.Context) error {
	return c.do(ctx, c.start)
}

// Stop halts delivery. Calling Stop on a session that is not running is a no-op.
func (c *Capture) Stop(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.stop()
		return nil
	})
}

// Close stops delivery, releases the device and ends the session
// goroutines. Close is idempotent.
func (c *Capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.do(context.Background(), func() error {
			c.stop()
			var cerr error
			if c.device != nil {
				cerr = c.device.Close()
				c.device = nil
			}
			c.state.Store(int32(StateIdle))
			return cerr
		})
		close(c.done)
		c.wg.Wait()
	})
	return err
}

// do runs op on the session goroutine and waits for it.
func (c *Capture) do(ctx context.Context, op func() error) error {
	errc := make(chan error, 1)
	select {
	case c.ops <- func() { errc <- op() }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Capture) sessionLoop() {
	defer c.wg.Done()
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.done:
			return
		}
	}
}

func (c *Capture) configure(cfg Config) error {
	if !cfg.Position.Valid() {
		return &SetupError{Op: "validate", Position: cfg.Position, Err: fmt.Errorf("%w: unknown position %q", ErrDeviceUnavailable, cfg.Position)}
	}
	if _, ok := cfg.Size(); !ok {
		return &SetupError{Op: "validate", Position: cfg.Position, Err: fmt.Errorf("%w: unknown resolution %q", ErrDeviceUnavailable, cfg.Resolution)}
	}
	if !cfg.PixelFormat.Valid() || !cfg.Orientation.Valid() {
		return &SetupError{Op: "validate", Position: cfg.Position, Err: fmt.Errorf("%w: %s/%s", ErrOutputRejected, cfg.PixelFormat, cfg.Orientation)}
	}
	if err := c.provider.Check(cfg); err != nil {
		return &SetupError{Op: "check", Position: cfg.Position, Err: classify(err)}
	}

	wasRunning := c.State() == StateRunning
	prevState := c.State()
	prev := c.cfg
	hadDevice := c.device != nil

	// Cameras are exclusive, so the old device goes before the new one opens.
	c.stop()
	if c.device != nil {
		if err := c.device.Close(); err != nil {
			c.logger.Warn("close previous device", zap.Error(err))
		}
		c.device = nil
	}

	dev, err := c.provider.Open(cfg)
	if err != nil {
		setupErr := &SetupError{Op: "open", Position: cfg.Position, Err: classify(err)}
		c.restore(prev, hadDevice, wasRunning, prevState)
		return setupErr
	}

	c.attach(dev, cfg)
	c.logger.Info("capture configured", zap.Stringer("config", cfg))
	if wasRunning {
		c.startReader()
	}
	return nil
}

// restore reopens the previous configuration after a failed reconfiguration.
// If that fails too the session is left idle with no configuration.
func (c *Capture) restore(prev Config, hadDevice, wasRunning bool, prevState State) {
	if !hadDevice {
		c.state.Store(int32(StateIdle))
		return
	}
	dev, err := c.provider.Open(prev)
	if err != nil {
		c.logger.Error("restore previous device", zap.Stringer("config", prev), zap.Error(err))
		c.cfg = Config{}
		c.cfgMu.Lock()
		c.current = Config{}
		c.cfgMu.Unlock()
		c.state.Store(int32(StateIdle))
		return
	}
	c.attach(dev, prev)
	if wasRunning {
		c.startReader()
		return
	}
	c.state.Store(int32(prevState))
}

func (c *Capture) attach(dev Device, cfg Config) {
	c.device = dev
	c.cfg = cfg
	c.cfgMu.Lock()
	c.current = cfg
	c.cfgMu.Unlock()
	c.state.Store(int32(StateConfigured))
}

func (c *Capture) start() error {
	switch c.State() {
	case StateRunning:
		return nil
	case StateIdle:
		return ErrNotConfigured
	}
	c.startReader()
	c.logger.Info("capture started")
	return nil
}

func (c *Capture) startReader() {
	c.stopReader = make(chan struct{})
	c.readerDone = make(chan struct{})
	c.state.Store(int32(StateRunning))
	go c.readLoop(c.device, c.cfg, c.stopReader, c.readerDone)
}

func (c *Capture) stop() {
	if c.State() != StateRunning {
		return
	}
	close(c.stopReader)
	<-c.readerDone
	c.stopReader, c.readerDone = nil, nil
	c.state.Store(int32(StateStopped))

	// A frame still sitting in the mailbox belongs to the halted stream.
	select {
	case <-c.mailbox:
		c.drop(DropLate)
	default:
	}
	c.logger.Info("capture stopped")
}

func (c *Capture) readLoop(dev Device, cfg Config, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		raw, err := dev.Read()
		if err != nil {
			if errors.Is(err, errDeviceClosed) {
				return
			}
			c.logger.Debug("frame read failed", zap.Error(err))
			c.drop(DropRead)
			// Don't spin on a device that fails every read.
			select {
			case <-stop:
				return
			case <-time.After(readErrorPause):
			}
			continue
		}

		img, err := Convert(raw, cfg.Orientation)
		if err != nil {
			c.logger.Debug("frame conversion failed", zap.Error(err))
			c.drop(DropConvert)
			continue
		}

		c.captured.Add(1)
		if c.stats != nil {
			c.stats.FrameCaptured()
		}
		c.post(Frame{
			Image:  img,
			Format: raw.Format,
			Seq:    c.seq.Add(1),
			Time:   time.Now(),
		})
	}
}

// post puts f in the mailbox, discarding a frame the listener has not taken yet.
func (c *Capture) post(f Frame) {
	for {
		select {
		case c.mailbox <- f:
			return
		default:
		}
		select {
		case <-c.mailbox:
			c.drop(DropLate)
		default:
		}
	}
}

func (c *Capture) drop(reason string) {
	c.dropped.Add(1)
	if c.stats != nil {
		c.stats.FrameDropped(reason)
	}
}

func (c *Capture) deliveryLoop() {
	defer c.wg.Done()
	for {
		select {
		case f := <-c.mailbox:
			l := c.currentListener()
			if l == nil {
				continue
			}
			l.OnFrame(f)
			c.delivered.Add(1)
		case <-c.done:
			return
		}
	}
}
