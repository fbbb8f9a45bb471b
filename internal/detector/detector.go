package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector finds hands in a frame. No hand is an empty slice, not an error.
type Detector interface {
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)
	Close() error
}

// Options tune the MediaPipe landmark service.
type Options struct {
	MaxHands     int
	MinDetection float64 // drop hands scored below this
	MinTracking  float64

	// IdleTimeout stops the service after this long without a frame. It is
	// restarted on the next Detect.
	IdleTimeout time.Duration

	// Python and Script override interpreter and service script discovery.
	Python string
	Script string
}

// DefaultOptions tracks a single hand, which is all the classifier uses.
func DefaultOptions() Options {
	return Options{
		MaxHands:     1,
		MinDetection: 0.5,
		MinTracking:  0.5,
		IdleTimeout:  30 * time.Second,
	}
}
