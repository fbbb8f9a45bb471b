package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector returns preset hands regardless of the frame.
type MockDetector struct {
	hands []HandLandmarks
	err   error
	calls int
	mu    sync.Mutex
}

var _ Detector = (*MockDetector)(nil)

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets what later Detect calls report.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError makes Detect fail with err. A nil err clears it.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns copies of the preset hands, or the preset error.
func (m *MockDetector) Detect(*gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	switch {
	case m.err != nil:
		return nil, m.err
	case m.hands == nil:
		return nil, nil
	}

	out := make([]HandLandmarks, len(m.hands))
	for i, h := range m.hands {
		out[i] = h
		out[i].Points = append([]Point3D(nil), h.Points...)
	}
	return out, nil
}

// Calls counts Detect invocations.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Close() error { return nil }
