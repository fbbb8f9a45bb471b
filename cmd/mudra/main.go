package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mdobak/go-xerrors"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

const usage = `Mudra - hand pose classifier

Usage:
  mudra <command> [flags]

Commands:
  serve     run the pose server and trainer API
  capture   capture labeled poses from the camera and save them
  predict   classify the hand in one camera frame
  live      classify continuously
  stats     print the stored training set
  forget    delete every stored pose with a label

Settings are read from MUDRA_* environment variables and a .env file.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		logging.Error(ctx, logging.Logger(), "mudra failed", err, slog.String("command", os.Args[1]))
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	switch command {
	case "serve":
		return runServe(ctx, cfg, args)
	case "capture":
		return runCapture(ctx, cfg, args)
	case "predict":
		return runPredict(ctx, cfg, args)
	case "live":
		return runLive(ctx, cfg, args)
	case "stats":
		return runStats(ctx, cfg, args)
	case "forget":
		return runForget(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// openStore returns the configured pose store and a function that releases it.
func openStore(cfg *config.Config) (store.PoseStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendHTTP:
		log.Printf("Using pose server at %s", cfg.StoreURL)
		return store.NewClient(cfg.StoreURL), noop, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := store.New(cfg.DatabaseFile())
		if err != nil {
			return nil, nil, xerrors.New(err)
		}
		log.Printf("Using SQLite store at %s", cfg.DatabaseFile())
		return st.Poses(), st.Close, nil
	default:
		log.Printf("Using pose file %s", cfg.PosesFile())
		return store.NewFileStore(cfg.PosesFile()), noop, nil
	}
}

// newModel builds the configured classifier.
func newModel(cfg *config.Config, logger *slog.Logger) (knn.Model, error) {
	if cfg.Classifier != config.ClassifierExternal {
		return knn.New(cfg.K)
	}

	m := backend.NewManager(cfg.BackendDir, logger)
	if err := m.Discover(); err != nil {
		return nil, err
	}
	b, err := m.Get(cfg.External)
	if err != nil {
		return nil, fmt.Errorf("%w (looked in %s)", err, m.Dir())
	}
	log.Printf("Using external classifier %s %s", b.Manifest.Name, b.Manifest.Version)
	return backend.NewClassifier(b, backend.NewExecutor(cfg.Timeout)), nil
}

// newDetector tries MediaPipe first and falls back to a detector that
// never finds a hand.
func newDetector() detector.Detector {
	mp, err := detector.NewMediaPipe(detector.DefaultOptions())
	if err != nil {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		return detector.NewMockDetector()
	}
	log.Println("Using MediaPipe hand detection")
	return mp
}

// newSession wires a camera session around st and loads its training data.
func newSession(ctx context.Context, cfg *config.Config, st store.PoseStore, labeler app.Labeler, displays ...app.Display) (*app.Session, error) {
	logger := logging.Logger()

	model, err := newModel(cfg, logger)
	if err != nil {
		return nil, err
	}

	session, err := app.New(app.Config{
		Camera:    capture.NewCamera(cfg.Camera),
		Detector:  newDetector(),
		Model:     model,
		Store:     st,
		Labeler:   labeler,
		Displays:  displays,
		Normalize: cfg.Normalize,
		LiveFPS:   cfg.LiveFPS,
		Logger:    logger,

		MotionThreshold: cfg.Motion,
	})
	if err != nil {
		return nil, err
	}

	if _, err := session.LoadTrainingData(ctx); err != nil {
		var partial *knn.PartialLoadError
		if !errors.As(err, &partial) {
			session.Close()
			return nil, err
		}
		for _, sk := range partial.Skipped {
			logger.WarnContext(ctx, "skipped stored pose",
				slog.Int("index", sk.Index),
				slog.String("reason", sk.Reason))
		}
	}
	return session, nil
}

// findWebDir searches for the trainer page in common locations.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	dataWeb := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWeb); err == nil && info.IsDir() {
		return dataWeb
	}
	return ""
}

// printResult writes a prediction in the trainer's format.
func printResult(w io.Writer, r knn.Result) {
	fmt.Fprintln(w, app.Describe(r))
}
