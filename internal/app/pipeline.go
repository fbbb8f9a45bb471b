package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
)

// Display shows live predictions.
type Display interface {
	Show(result knn.Result)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(knn.Result)

func (f DisplayFunc) Show(r knn.Result) { f(r) }

// Describe formats a result for people.
func Describe(r knn.Result) string {
	return fmt.Sprintf("Prediction: %s (Certainty: %.2f%%)", r.Label, r.Confidence)
}

// LogDisplay writes each prediction to a logger.
type LogDisplay struct {
	logger *slog.Logger
}

// NewLogDisplay creates a LogDisplay. A nil logger uses the shared one.
func NewLogDisplay(logger *slog.Logger) *LogDisplay {
	if logger == nil {
		logger = logging.Logger()
	}
	return &LogDisplay{logger: logger}
}

func (d *LogDisplay) Show(r knn.Result) {
	d.logger.Info(Describe(r),
		slog.String("label", r.Label),
		slog.Float64("avgDistance", r.AvgDistance))
}

// Run classifies a frame on every tick until ctx is cancelled and sends
// each result to the configured displays. Each tick runs under its own
// context, which the next tick cancels before starting, so a slow
// classification never overlaps a newer one.
//
// Pipeline:
// 1. Read a frame
// 2. If a motion gate is configured and closed, skip the tick
// 3. Detect the first hand and vectorize it
// 4. Classify and show the result
func (s *Session) Run(ctx context.Context) error {
	if s.config.Model.Len() == 0 {
		return ErrNotEnoughData
	}

	var gate *capture.MotionGate
	if s.config.MotionThreshold > 0 {
		gate = capture.NewMotionGate(s.config.MotionThreshold, 0)
		defer gate.Close()
	}

	s.config.Camera.SetFPS(s.config.LiveFPS)
	interval := time.Second / time.Duration(s.config.LiveFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.config.Logger.InfoContext(ctx, "live classification started",
		slog.Int("fps", s.config.LiveFPS),
		slog.Bool("motionGate", gate != nil))

	var (
		cancelTick context.CancelFunc
		tickDone   chan struct{}
	)
	stopTick := func() {
		if cancelTick != nil {
			cancelTick()
			<-tickDone
			cancelTick = nil
		}
	}
	defer stopTick()

	for {
		select {
		case <-ctx.Done():
			s.config.Logger.InfoContext(ctx, "live classification stopped")
			return nil
		case <-ticker.C:
			stopTick()

			var tickCtx context.Context
			tickCtx, cancelTick = context.WithCancel(ctx)
			tickDone = make(chan struct{})
			go func(ctx context.Context, done chan struct{}) {
				defer close(done)
				s.tick(ctx, gate)
			}(tickCtx, tickDone)
		}
	}
}

// tick runs one pass of the live pipeline.
func (s *Session) tick(ctx context.Context, gate *capture.MotionGate) {
	frame, err := s.readFrame()
	if err != nil {
		s.config.Logger.WarnContext(ctx, "frame read failed", slog.Any("error", err))
		return
	}
	defer frame.Close()

	if gate != nil && !gate.Open(frame) {
		return
	}

	vector, err := s.detect(frame)
	if errors.Is(err, ErrNoHand) {
		s.config.Logger.DebugContext(ctx, "no hand in frame")
		return
	}
	if err != nil {
		logging.Error(ctx, s.config.Logger, "hand detection failed", err)
		return
	}

	result, err := s.config.Model.Classify(ctx, vector)
	if err != nil {
		if ctx.Err() == nil {
			logging.Error(ctx, s.config.Logger, "classification failed", err)
		}
		return
	}
	if ctx.Err() != nil {
		// Superseded by a newer tick.
		return
	}

	for _, d := range s.config.Displays {
		d.Show(result)
	}
}
