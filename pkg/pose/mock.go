package pose

import (
	"context"
	"image"
	"sync"
	"time"
)

// Mock implements Estimator for testing.
type Mock struct {
	// EstimateFunc is called when Estimate is invoked.
	EstimateFunc func(ctx context.Context, img image.Image) ([]Observation, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Size   image.Point
	Time   time.Time
}

// NewMock creates a mock that always returns obs.
func NewMock(obs ...Observation) *Mock {
	return &Mock{
		EstimateFunc: func(ctx context.Context, img image.Image) ([]Observation, error) {
			return obs, nil
		},
	}
}

// Estimate calls EstimateFunc and records the call.
func (m *Mock) Estimate(ctx context.Context, img image.Image) ([]Observation, error) {
	var size image.Point
	if img != nil {
		size = img.Bounds().Size()
	}
	m.record("Estimate", size)
	if m.EstimateFunc != nil {
		return m.EstimateFunc(ctx, img)
	}
	return nil, WrapError("mock", ErrServiceUnavailable)
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", image.Point{})
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string, size image.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Size: size, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// NewObservation builds an observation from keypoints. Its confidence is
// the highest keypoint confidence.
func NewObservation(kps ...Keypoint) Observation {
	obs := Observation{Keypoints: make(map[Joint]Keypoint, len(kps))}
	for _, kp := range kps {
		obs.Keypoints[kp.Joint] = kp
		if kp.Confidence > obs.Confidence {
			obs.Confidence = kp.Confidence
		}
	}
	return obs
}
