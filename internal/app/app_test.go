package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/testdata"
)

// failingStore rejects every save.
type failingStore struct{ err error }

func (f failingStore) Save(context.Context, []store.Record) error   { return f.err }
func (f failingStore) Load(context.Context) ([]store.Record, error) { return nil, f.err }

type testSession struct {
	*Session
	camera   *capture.MockCamera
	detector *detector.MockDetector
	model    *knn.Classifier
	store    *store.FileStore
}

func newTestSession(t *testing.T, labeler Labeler) *testSession {
	t.Helper()

	cam := capture.NewBlankMockCamera(1)
	t.Cleanup(cam.Release)

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.ThumbsUpLandmarks()})

	model, err := knn.New(knn.DefaultK)
	if err != nil {
		t.Fatalf("knn.New() error = %v", err)
	}

	fs := store.NewFileStore(filepath.Join(t.TempDir(), store.DefaultFileName))

	s, err := New(Config{
		Camera:   cam,
		Detector: det,
		Model:    model,
		Store:    fs,
		Labeler:  labeler,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &testSession{Session: s, camera: cam, detector: det, model: model, store: fs}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	model, _ := knn.New(1)
	cam := capture.NewMockCamera(nil, false)
	det := detector.NewMockDetector()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no camera", Config{Detector: det, Model: model}},
		{"no detector", Config{Camera: cam, Model: model}},
		{"no model", Config{Camera: cam, Detector: det}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	s, err := New(Config{Camera: cam, Detector: det, Model: model})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.config.LiveFPS != DefaultLiveFPS {
		t.Errorf("LiveFPS = %d, want %d", s.config.LiveFPS, DefaultLiveFPS)
	}
}

func TestSession_Capture(t *testing.T) {
	ctx := context.Background()

	t.Run("learns and queues the sample", func(t *testing.T) {
		ts := newTestSession(t, StaticLabeler("thumbs_up"))

		sample, err := ts.Capture(ctx)
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		if sample.Label != "thumbs_up" || len(sample.Vector) != feature.HandDim {
			t.Errorf("unexpected sample: label=%q dim=%d", sample.Label, len(sample.Vector))
		}
		if ts.model.Len() != 1 || ts.Pending() != 1 {
			t.Errorf("expected 1 learned and 1 pending, got %d and %d", ts.model.Len(), ts.Pending())
		}
		if !ts.camera.IsOpen() {
			t.Error("capture should open the camera")
		}
	})

	t.Run("no hand", func(t *testing.T) {
		ts := newTestSession(t, StaticLabeler("x"))
		ts.detector.SetHands(nil)

		if _, err := ts.Capture(ctx); !errors.Is(err, ErrNoHand) {
			t.Errorf("expected ErrNoHand, got %v", err)
		}
		if ts.model.Len() != 0 {
			t.Error("nothing should be learned without a hand")
		}
	})

	t.Run("empty label stores nothing", func(t *testing.T) {
		ts := newTestSession(t, StaticLabeler(""))

		if _, err := ts.Capture(ctx); !errors.Is(err, ErrNoLabel) {
			t.Errorf("expected ErrNoLabel, got %v", err)
		}
		if ts.model.Len() != 0 || ts.Pending() != 0 {
			t.Error("nothing should be stored without a label")
		}
	})

	t.Run("labeler error", func(t *testing.T) {
		boom := errors.New("stdin closed")
		ts := newTestSession(t, LabelerFunc(func(context.Context) (string, error) { return "", boom }))

		if _, err := ts.Capture(ctx); !errors.Is(err, boom) {
			t.Errorf("expected labeler error, got %v", err)
		}
	})

	t.Run("detector error", func(t *testing.T) {
		ts := newTestSession(t, StaticLabeler("x"))
		ts.detector.SetError(errors.New("mediapipe crashed"))

		if _, err := ts.Capture(ctx); err == nil || errors.Is(err, ErrNoHand) {
			t.Errorf("expected detection error, got %v", err)
		}
	})
}

func TestSession_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing pending", func(t *testing.T) {
		ts := newTestSession(t, StaticLabeler("x"))

		if _, err := ts.Save(ctx); !errors.Is(err, ErrNothingToSave) {
			t.Errorf("expected ErrNothingToSave, got %v", err)
		}
	})

	t.Run("clears pending on success", func(t *testing.T) {
		ts := newTestSession(t, StaticLabeler("thumbs_up"))
		ts.Capture(ctx)
		ts.Capture(ctx)

		n, err := ts.Save(ctx)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if n != 2 || ts.Pending() != 0 {
			t.Errorf("saved %d, %d still pending", n, ts.Pending())
		}

		records, err := ts.store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(records) != 2 || records[0].Label != "thumbs_up" {
			t.Errorf("unexpected stored records: %+v", records)
		}
	})

	t.Run("keeps pending on failure", func(t *testing.T) {
		ts := newTestSession(t, StaticLabeler("thumbs_up"))
		ts.config.Store = failingStore{err: errors.New("server down")}
		ts.Capture(ctx)

		if _, err := ts.Save(ctx); err == nil {
			t.Fatal("expected save error")
		}
		if ts.Pending() != 1 {
			t.Errorf("expected capture to stay pending, got %d", ts.Pending())
		}
	})
}

func TestSession_LoadTrainingData(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		ts := newTestSession(t, nil)

		report, err := ts.LoadTrainingData(ctx)
		if err != nil {
			t.Fatalf("LoadTrainingData() error = %v", err)
		}
		if report.Loaded != 0 || ts.model.Len() != 0 {
			t.Errorf("expected nothing loaded, got %+v", report)
		}
	})

	t.Run("partial load indexes the stored collection", func(t *testing.T) {
		ts := newTestSession(t, nil)
		contents := `[
			{"label": "a", "coordinates": [0, 0]},
			{"label": "broken"},
			{"label": "b", "coordinates": [1]},
			{"label": "c", "pose": [1, 1]}
		]`
		if err := os.WriteFile(ts.store.Path(), []byte(contents), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		report, err := ts.LoadTrainingData(ctx)
		if !errors.Is(err, knn.ErrPartialLoad) {
			t.Fatalf("expected partial load error, got %v", err)
		}
		if report.Loaded != 2 || ts.model.Len() != 2 {
			t.Errorf("expected 2 loaded, got %+v (model %d)", report, ts.model.Len())
		}
		if len(report.Skipped) != 2 || report.Skipped[0].Index != 1 || report.Skipped[1].Index != 2 {
			t.Errorf("unexpected skips: %+v", report.Skipped)
		}
	})

	t.Run("mixed pose file", func(t *testing.T) {
		ts := newTestSession(t, nil)
		if err := os.WriteFile(ts.store.Path(), testdata.MustLoadPoses(testdata.MixedPoses), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		report, err := ts.LoadTrainingData(ctx)
		if !errors.Is(err, knn.ErrPartialLoad) {
			t.Fatalf("expected partial load error, got %v", err)
		}
		if report.Loaded != 3 {
			t.Errorf("expected 3 loaded, got %d", report.Loaded)
		}
		want := []int{1, 3, 4, 5}
		if len(report.Skipped) != len(want) {
			t.Fatalf("expected %d skips, got %+v", len(want), report.Skipped)
		}
		for i, sk := range report.Skipped {
			if sk.Index != want[i] {
				t.Errorf("skipped[%d].Index = %d, want %d", i, sk.Index, want[i])
			}
		}
	})

	t.Run("store failure", func(t *testing.T) {
		ts := newTestSession(t, nil)
		ts.config.Store = failingStore{err: errors.New("permission denied")}

		if _, err := ts.LoadTrainingData(ctx); err == nil || errors.Is(err, knn.ErrPartialLoad) {
			t.Errorf("expected hard failure, got %v", err)
		}
	})
}

func TestSession_Predict(t *testing.T) {
	ctx := context.Background()

	t.Run("not enough data", func(t *testing.T) {
		ts := newTestSession(t, nil)

		if _, err := ts.Predict(ctx); !errors.Is(err, ErrNotEnoughData) {
			t.Errorf("expected ErrNotEnoughData, got %v", err)
		}
		if ts.detector.Calls() != 0 {
			t.Error("detector should not run without training data")
		}
	})

	t.Run("capture then predict", func(t *testing.T) {
		ts := newTestSession(t, nil)
		thumbs := detector.ThumbsUpLandmarks()
		palm := detector.OpenPalmLandmarks()
		ts.model.Learn("thumbs_up", feature.FromHand(&thumbs, false))
		ts.model.Learn("open_palm", feature.FromHand(&palm, false))

		result, err := ts.Predict(ctx)
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if result.Label != "thumbs_up" {
			t.Errorf("expected thumbs_up, got %q", result.Label)
		}

		ts.detector.SetHands([]detector.HandLandmarks{palm})
		result, err = ts.Predict(ctx)
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if result.Label != "open_palm" {
			t.Errorf("expected open_palm, got %q", result.Label)
		}
	})
}

func TestSession_SaveAndReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	ts := newTestSession(t, StaticLabeler("thumbs_up"))
	if _, err := ts.Capture(ctx); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if _, err := ts.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// A fresh session over the same file starts from the saved poses.
	model, _ := knn.New(knn.DefaultK)
	fresh, err := New(Config{
		Camera:   ts.camera,
		Detector: ts.detector,
		Model:    model,
		Store:    ts.store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := fresh.LoadTrainingData(ctx); err != nil {
		t.Fatalf("LoadTrainingData() error = %v", err)
	}
	result, err := fresh.Predict(ctx)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if result.Label != "thumbs_up" || result.Confidence != 100 {
		t.Errorf("unexpected result: %+v", result)
	}
}
