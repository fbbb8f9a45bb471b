// Package app ties a frame source, a hand detector, a classifier and a pose
// store into a capture-and-predict session.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// DefaultLiveFPS is the live loop rate when Config.LiveFPS is unset.
const DefaultLiveFPS = 5

var (
	// ErrNoHand is returned when the frame contains no detected hand.
	ErrNoHand = errors.New("no hand detected")

	// ErrNoLabel is returned when the labeler gave no label; nothing is stored.
	ErrNoLabel = errors.New("no label given, pose not saved")

	// ErrNothingToSave is returned by Save when no captures are pending.
	ErrNothingToSave = errors.New("no poses to save")

	// ErrNotEnoughData is returned by Predict before anything has been learned.
	ErrNotEnoughData = errors.New("not enough data")
)

// Labeler asks the user which gesture a captured pose shows. An empty label
// abandons the capture.
type Labeler interface {
	Label(ctx context.Context) (string, error)
}

// LabelerFunc adapts a function to Labeler.
type LabelerFunc func(ctx context.Context) (string, error)

func (f LabelerFunc) Label(ctx context.Context) (string, error) { return f(ctx) }

// StaticLabeler always answers with the same label.
func StaticLabeler(label string) Labeler {
	return LabelerFunc(func(context.Context) (string, error) { return label, nil })
}

// Config holds the collaborators of a Session.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Model    knn.Model
	Store    store.PoseStore
	Labeler  Labeler
	Displays []Display

	// Normalize wrist-normalizes landmarks before vectorizing.
	Normalize bool

	// LiveFPS is the live loop rate.
	LiveFPS int

	// MotionThreshold, when positive, skips detection in the live loop until
	// that percentage of pixels changes between frames.
	MotionThreshold float64

	Logger *slog.Logger
}

// Session captures labeled poses, saves them, and classifies new ones.
type Session struct {
	config  Config
	pending []knn.Sample
	saveMu  sync.Mutex // serializes Save
	mu      sync.Mutex // guards pending
}

// New creates a Session. Camera, Detector and Model are required.
func New(config Config) (*Session, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.Model == nil {
		return nil, errors.New("app: model is required")
	}
	if config.LiveFPS <= 0 {
		config.LiveFPS = DefaultLiveFPS
	}
	if config.Logger == nil {
		config.Logger = logging.Logger()
	}
	return &Session{config: config}, nil
}

// Model returns the session's classifier.
func (s *Session) Model() knn.Model {
	return s.config.Model
}

// Capture reads one frame, vectorizes the first detected hand, asks the
// labeler for a label, learns the sample and queues it for Save.
func (s *Session) Capture(ctx context.Context) (knn.Sample, error) {
	vector, err := s.readVector(ctx)
	if err != nil {
		return knn.Sample{}, err
	}

	if s.config.Labeler == nil {
		return knn.Sample{}, fmt.Errorf("%w: no labeler configured", ErrNoLabel)
	}
	label, err := s.config.Labeler.Label(ctx)
	if err != nil {
		return knn.Sample{}, fmt.Errorf("failed to read label: %w", err)
	}
	if label == "" {
		return knn.Sample{}, ErrNoLabel
	}

	if err := s.config.Model.Learn(label, vector); err != nil {
		return knn.Sample{}, err
	}

	sample := knn.Sample{Label: label, Vector: vector}
	s.mu.Lock()
	s.pending = append(s.pending, sample)
	s.mu.Unlock()

	s.config.Logger.InfoContext(ctx, "pose captured",
		slog.String("label", label),
		slog.Int("samples", s.config.Model.Len()))
	return sample, nil
}

// Pending returns the number of captures not yet saved.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Save persists pending captures. They are dropped from the pending buffer
// only once the store accepts them; captures made during the save stay.
func (s *Session) Save(ctx context.Context) (int, error) {
	if s.config.Store == nil {
		return 0, errors.New("app: no store configured")
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	batch := append([]knn.Sample(nil), s.pending...)
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0, ErrNothingToSave
	}

	records := make([]store.Record, len(batch))
	for i, sample := range batch {
		records[i] = store.NewRecord(sample)
	}

	if err := s.config.Store.Save(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to save poses: %w", err)
	}

	s.mu.Lock()
	s.pending = append([]knn.Sample(nil), s.pending[len(batch):]...)
	s.mu.Unlock()

	s.config.Logger.InfoContext(ctx, "poses saved", slog.Int("count", len(batch)))
	return len(batch), nil
}

// LoadTrainingData appends every stored pose to the model. A store with no
// poses is not an error. Records that cannot be decoded or learned are
// skipped; the report indexes them by position in the stored collection and
// the returned error is then a *knn.PartialLoadError.
func (s *Session) LoadTrainingData(ctx context.Context) (knn.LoadReport, error) {
	if s.config.Store == nil {
		return knn.LoadReport{}, errors.New("app: no store configured")
	}

	start := time.Now()
	records, err := s.config.Store.Load(ctx)

	var decodeReport knn.LoadReport
	var partial *knn.PartialLoadError
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.config.Logger.InfoContext(ctx, "no stored poses")
		return knn.LoadReport{}, nil
	case errors.As(err, &partial):
		decodeReport.Skipped = partial.Skipped
	case err != nil:
		return knn.LoadReport{}, fmt.Errorf("failed to load poses: %w", err)
	}

	report := s.config.Model.Load(store.KNNRecords(records), false)
	for i := range report.Skipped {
		report.Skipped[i].Index = records[report.Skipped[i].Index].Index
	}
	report = report.Merge(decodeReport)

	s.config.Logger.InfoContext(ctx, "training data loaded",
		slog.Int("loaded", report.Loaded),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("took", time.Since(start)))
	return report, report.Err()
}

// Predict reads one frame and classifies the first detected hand.
func (s *Session) Predict(ctx context.Context) (knn.Result, error) {
	if s.config.Model.Len() == 0 {
		return knn.Result{}, ErrNotEnoughData
	}

	vector, err := s.readVector(ctx)
	if err != nil {
		return knn.Result{}, err
	}

	result, err := s.config.Model.Classify(ctx, vector)
	if errors.Is(err, knn.ErrEmptyTrainingSet) {
		return knn.Result{}, ErrNotEnoughData
	}
	return result, err
}

// Close releases the camera and the detector.
func (s *Session) Close() error {
	return errors.Join(s.config.Camera.Close(), s.config.Detector.Close())
}

// readVector grabs a frame and turns the first hand in it into a vector.
func (s *Session) readVector(ctx context.Context) (feature.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	return s.detect(frame)
}

func (s *Session) readFrame() (*gocv.Mat, error) {
	if !s.config.Camera.IsOpen() {
		if err := s.config.Camera.Open(); err != nil {
			return nil, err
		}
	}
	frame, err := s.config.Camera.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return frame, nil
}

// detect vectorizes the first hand found in frame.
func (s *Session) detect(frame *gocv.Mat) (feature.Vector, error) {
	hands, err := s.config.Detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to detect hands: %w", err)
	}
	if len(hands) == 0 {
		return nil, ErrNoHand
	}
	return feature.FromHand(&hands[0], s.config.Normalize), nil
}
