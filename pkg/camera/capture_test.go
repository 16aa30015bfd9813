package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Resolution = ResolutionCIF
	cfg.Framerate = 120
	return cfg
}

func newTestCapture(t *testing.T, p *SyntheticProvider) *Capture {
	t.Helper()
	c := New(p, WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// recorder is a listener that records frames and overlapping calls.
type recorder struct {
	mu       sync.Mutex
	frames   []Frame
	delay    time.Duration
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (r *recorder) OnFrame(f Frame) {
	if r.inflight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.inflight.Add(-1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) last() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

func TestCapture_DeliversOrientedFrames(t *testing.T) {
	p := &SyntheticProvider{}
	c := newTestCapture(t, p)
	rec := &recorder{}
	c.SetListener(rec)

	ctx := context.Background()
	require.NoError(t, c.Configure(ctx, testConfig()))
	assert.Equal(t, StateConfigured, c.State())
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, StateRunning, c.State())

	require.Eventually(t, func() bool { return rec.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	// CIF is 352x288 on the sensor, portrait swaps the axes.
	f := rec.last()
	assert.Equal(t, 288, f.Width())
	assert.Equal(t, 352, f.Height())
	assert.Equal(t, PixelFormatNV12, f.Format)
	assert.NotZero(t, f.Seq)
}

func TestCapture_ConfigureUnsupportedKeepsPrevious(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"resolution above device maximum", func(c *Config) { c.Resolution = Resolution4K }},
		{"unknown resolution", func(c *Config) { c.Resolution = "hd9000" }},
		{"position without device", func(c *Config) { c.Position = PositionFront }},
		{"unknown position", func(c *Config) { c.Position = "side" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SyntheticProvider{Positions: []Position{PositionBack}}
			c := newTestCapture(t, p)
			ctx := context.Background()

			good := testConfig()
			require.NoError(t, c.Configure(ctx, good))
			require.NoError(t, c.Start(ctx))

			bad := good
			tt.mutate(&bad)
			err := c.Configure(ctx, bad)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDeviceUnavailable), "got %v", err)

			var setupErr *SetupError
			assert.True(t, errors.As(err, &setupErr))

			assert.Equal(t, good, c.Config())
			assert.Equal(t, StateRunning, c.State())
			assert.Equal(t, int64(1), p.Opened(), "failed configure must not reopen the device")
			assert.Equal(t, int64(0), p.Closed())
		})
	}
}

func TestCapture_FailedOpenRestoresPrevious(t *testing.T) {
	good := testConfig()
	bad := good
	bad.Resolution = Resolution720p

	p := &SyntheticProvider{
		OpenError: func(cfg Config) error {
			if cfg.Resolution == Resolution720p {
				return fmt.Errorf("%w: driver negotiated 640x480", ErrDeviceUnavailable)
			}
			return nil
		},
	}
	c := newTestCapture(t, p)
	rec := &recorder{}
	c.SetListener(rec)
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, good))
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	err := c.Configure(ctx, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable), "got %v", err)

	assert.Equal(t, good, c.Config())
	assert.Equal(t, StateRunning, c.State())
	assert.Equal(t, int64(2), p.Opened())
	assert.Equal(t, int64(1), p.Closed())

	n := rec.count()
	require.Eventually(t, func() bool { return rec.count() > n }, 2*time.Second, 5*time.Millisecond,
		"delivery should resume on the restored device")
}

func TestCapture_FailedRestoreLeavesIdle(t *testing.T) {
	var opens atomic.Int32
	p := &SyntheticProvider{
		OpenError: func(Config) error {
			if opens.Add(1) > 1 {
				return fmt.Errorf("%w: device vanished", ErrInputRejected)
			}
			return nil
		},
	}
	c := newTestCapture(t, p)
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))

	next := testConfig()
	next.Orientation = OrientationLandscapeRight
	err := c.Configure(ctx, next)
	assert.True(t, errors.Is(err, ErrInputRejected), "got %v", err)

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, Config{}, c.Config())
	assert.Equal(t, int64(1), p.Closed())
	assert.True(t, errors.Is(c.Start(ctx), ErrNotConfigured))
}

func TestCapture_ConfigureInputRejected(t *testing.T) {
	p := &SyntheticProvider{RejectOpen: true}
	c := newTestCapture(t, p)

	err := c.Configure(context.Background(), testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputRejected), "got %v", err)
	assert.Equal(t, StateIdle, c.State())
}

func TestCapture_ConfigureOutputRejected(t *testing.T) {
	c := newTestCapture(t, &SyntheticProvider{})
	cfg := testConfig()
	cfg.PixelFormat = "yuyv"

	err := c.Configure(context.Background(), cfg)
	assert.True(t, errors.Is(err, ErrOutputRejected), "got %v", err)
}

func TestCapture_StartBeforeConfigure(t *testing.T) {
	c := newTestCapture(t, &SyntheticProvider{})
	err := c.Start(context.Background())
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestCapture_StartTwiceSingleStream(t *testing.T) {
	p := &SyntheticProvider{}
	c := newTestCapture(t, p)
	rec := &recorder{}
	c.SetListener(rec)
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool { return rec.count() >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), p.MaxConcurrentReads())
	assert.Equal(t, int64(1), p.Opened())
	assert.False(t, rec.overlap.Load())
}

func TestCapture_StopTwice(t *testing.T) {
	p := &SyntheticProvider{}
	c := New(p, WithLogger(zap.NewNop()))
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, int64(0), p.Closed(), "stop halts delivery but keeps the device")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, int64(1), p.Closed())
	assert.True(t, errors.Is(c.Start(ctx), ErrClosed))
}

func TestCapture_StopHaltsDelivery(t *testing.T) {
	c := newTestCapture(t, &SyntheticProvider{})
	rec := &recorder{}
	c.SetListener(rec)
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return rec.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(ctx))

	// Give an in-flight delivery time to land, then nothing more may arrive.
	time.Sleep(50 * time.Millisecond)
	n := rec.count()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, rec.count())
}

func TestCapture_SlowListenerDropsLateFrames(t *testing.T) {
	c := newTestCapture(t, &SyntheticProvider{})
	rec := &recorder{delay: 40 * time.Millisecond}
	c.SetListener(rec)
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool { return c.Counters().Dropped > 0 }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, rec.overlap.Load(), "listener must never run concurrently")

	counters := c.Counters()
	assert.Greater(t, counters.Captured, counters.Delivered)
}

func TestCapture_ReadErrorsAreSkipped(t *testing.T) {
	p := &SyntheticProvider{ReadError: errors.New("lock failed"), ErrorEvery: 2}
	c := newTestCapture(t, p)
	rec := &recorder{}
	c.SetListener(rec)
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool { return rec.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.NotZero(t, c.Counters().Dropped)
}

func TestCapture_ReconfigureWhileRunning(t *testing.T) {
	p := &SyntheticProvider{}
	c := newTestCapture(t, p)
	rec := &recorder{}
	c.SetListener(rec)
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	next := testConfig()
	next.Orientation = OrientationLandscapeRight
	next.PixelFormat = PixelFormatBGR24
	require.NoError(t, c.Configure(ctx, next))
	assert.Equal(t, StateRunning, c.State())
	assert.Equal(t, next, c.Config())
	assert.Equal(t, int64(1), p.Closed())

	require.Eventually(t, func() bool {
		f := rec.last()
		return f.Width() == 352 && f.Height() == 288 && f.Format == PixelFormatBGR24
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCapture_NilListener(t *testing.T) {
	c := newTestCapture(t, &SyntheticProvider{})
	ctx := context.Background()

	require.NoError(t, c.Configure(ctx, testConfig()))
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return c.Counters().Captured >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Counters().Delivered)
}

func TestCapture_ContextCancelled(t *testing.T) {
	c := newTestCapture(t, &SyntheticProvider{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Configure(ctx, testConfig())
	// The op may have been picked up before cancellation was observed.
	if err != nil {
		assert.True(t, errors.Is(err, context.Canceled))
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "configured", StateConfigured.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
