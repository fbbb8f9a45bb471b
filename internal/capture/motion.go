package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// blurSize is the Gaussian kernel applied before differencing.
	blurSize = 21
	// pixelDelta is the grey-level change that counts a pixel as moved.
	pixelDelta = 25
	// DefaultMotionHold keeps a gate open after the last movement.
	DefaultMotionHold = 2 * time.Second
)

// MotionGate tells the live loop whether a frame is worth running the hand
// detector on. It opens when the share of changed pixels between consecutive
// frames exceeds a threshold and stays open for the hold period after the
// last movement, so a hand held still keeps being classified.
type MotionGate struct {
	threshold float64 // percent of pixels
	hold      time.Duration
	prev      gocv.Mat
	primed    bool
	lastMove  time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// NewMotionGate creates a gate that opens when more than threshold percent
// of pixels change. A hold of 0 uses DefaultMotionHold.
func NewMotionGate(threshold float64, hold time.Duration) *MotionGate {
	if hold <= 0 {
		hold = DefaultMotionHold
	}
	return &MotionGate{
		threshold: threshold,
		hold:      hold,
		prev:      gocv.NewMat(),
		now:       time.Now,
	}
}

// Open feeds frame to the gate and reports whether it is open. The first
// frame only primes the gate and leaves it closed.
func (g *MotionGate) Open(frame *gocv.Mat) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return g.heldLocked()
	}

	changed, ok := g.measureLocked(frame)
	if ok && changed > g.threshold {
		g.lastMove = g.now()
	}
	return g.heldLocked()
}

// Change returns the percentage of pixels that changed since the previous
// frame, priming the gate on the first call.
func (g *MotionGate) Change(frame *gocv.Mat) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return 0
	}
	changed, _ := g.measureLocked(frame)
	return changed
}

func (g *MotionGate) heldLocked() bool {
	return !g.lastMove.IsZero() && g.now().Sub(g.lastMove) <= g.hold
}

// measureLocked differences frame against the previous one. ok is false for
// the priming frame.
func (g *MotionGate) measureLocked(frame *gocv.Mat) (changed float64, ok bool) {
	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurSize, Y: blurSize}, 0, 0, gocv.BorderDefault)

	if !g.primed {
		blurred.CopyTo(&g.prev)
		g.primed = true
		return 0, false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, pixelDelta, 255, gocv.ThresholdBinary)

	total := mask.Rows() * mask.Cols()
	blurred.CopyTo(&g.prev)
	if total == 0 {
		return 0, true
	}
	return float64(gocv.CountNonZero(mask)) / float64(total) * 100.0, true
}

// Reset forgets the previous frame and closes the gate.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

// Close releases the stored frame.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

func (g *MotionGate) resetLocked() {
	if !g.prev.Empty() {
		g.prev.Close()
		g.prev = gocv.NewMat()
	}
	g.primed = false
	g.lastMove = time.Time{}
}
