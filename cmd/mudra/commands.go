package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Addr, "listen address")
	static := fs.String("static", findWebDir(cfg.DataDir), "directory with the trainer page")
	live := fs.Bool("live", false, "classify camera frames and broadcast them on /api/live")
	fs.Parse(args)

	if cfg.Backend == config.BackendHTTP {
		return errors.New("serve needs a file or sqlite backend, not http")
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	logger := logging.Logger()
	hub := server.NewHub(logger)

	session, err := newSession(ctx, cfg, st, nil, hub, app.NewLogDisplay(logger))
	if err != nil {
		return err
	}
	defer session.Close()

	if *static != "" {
		log.Printf("Serving static files from: %s", *static)
	}

	srv := server.New(server.Config{
		StaticDir: *static,
		Store:     st,
		Model:     session.Model(),
		Hub:       hub,
		Logger:    logger,
	})

	if *live {
		go func() {
			if err := session.Run(ctx); err != nil {
				logging.Error(ctx, logger, "live classification not started", err)
			}
		}()
	}

	log.Printf("Starting server on %s", *addr)
	return srv.ListenAndServe(ctx, *addr)
}

func runCapture(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	label := fs.String("label", "", "label every capture with this name instead of prompting")
	count := fs.Int("n", 1, "captures to take with -label")
	interval := fs.Duration("interval", 500*time.Millisecond, "pause between captures with -label")
	fs.Parse(args)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if *label != "" {
		return captureBatch(ctx, cfg, st, *label, *count, *interval)
	}
	return captureInteractive(ctx, cfg, st, os.Stdin, os.Stdout)
}

// captureBatch takes count captures under one label, then saves them.
func captureBatch(ctx context.Context, cfg *config.Config, st store.PoseStore, label string, count int, interval time.Duration) error {
	session, err := newSession(ctx, cfg, st, app.StaticLabeler(label))
	if err != nil {
		return err
	}
	defer session.Close()

	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		if _, err := session.Capture(ctx); err != nil {
			if errors.Is(err, app.ErrNoHand) {
				fmt.Println("No hand detected.")
				continue
			}
			return err
		}
		fmt.Printf("Pose %q captured (%d/%d).\n", label, i+1, count)
	}

	return savePending(ctx, session)
}

// captureInteractive prompts for a label before every capture. An empty
// line saves the captures and exits.
func captureInteractive(ctx context.Context, cfg *config.Config, st store.PoseStore, in io.Reader, out io.Writer) error {
	var current string
	labeler := app.LabelerFunc(func(context.Context) (string, error) {
		return current, nil
	})

	session, err := newSession(ctx, cfg, st, labeler)
	if err != nil {
		return err
	}
	defer session.Close()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "label (empty to save and quit)> ")
		if !scanner.Scan() {
			break
		}
		current = strings.TrimSpace(scanner.Text())
		if current == "" {
			break
		}

		sample, err := session.Capture(ctx)
		switch {
		case errors.Is(err, app.ErrNoHand):
			fmt.Fprintln(out, "No hand detected.")
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "Pose %q captured.\n", sample.Label)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	return savePending(ctx, session)
}

func savePending(ctx context.Context, session *app.Session) error {
	n, err := session.Save(ctx)
	if errors.Is(err, app.ErrNothingToSave) {
		fmt.Println("No poses to save.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d poses saved.\n", n)
	return nil
}

func runPredict(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	fs.Parse(args)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	session, err := newSession(ctx, cfg, st, nil)
	if err != nil {
		return err
	}
	defer session.Close()

	result, err := session.Predict(ctx)
	switch {
	case errors.Is(err, app.ErrNotEnoughData):
		fmt.Println("Not enough data. Capture some poses first.")
		return nil
	case errors.Is(err, app.ErrNoHand):
		fmt.Println("No hand detected.")
		return nil
	case err != nil:
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(os.Stdout, result)
	return nil
}

func runLive(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	fps := fs.Int("fps", cfg.LiveFPS, "classifications per second")
	withTray := fs.Bool("tray", false, "show predictions in the system tray")
	fs.Parse(args)

	if *fps < 1 {
		return fmt.Errorf("fps must be at least 1, got %d", *fps)
	}
	cfg.LiveFPS = *fps

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	displays := []app.Display{app.DisplayFunc(func(r knn.Result) { printResult(os.Stdout, r) })}

	var tr *tray.Tray
	if *withTray {
		tr = tray.New()
		displays = append(displays, tr)
	}

	session, err := newSession(ctx, cfg, st, nil, displays...)
	if err != nil {
		return err
	}
	defer session.Close()

	if tr == nil {
		return session.Run(ctx)
	}
	return runWithTray(ctx, cfg, session, tr)
}

// runWithTray runs the tray on the calling goroutine and live
// classification in the background, pausing it while the tray says so.
func runWithTray(ctx context.Context, cfg *config.Config, session *app.Session, tr *tray.Tray) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		mu     sync.Mutex
		cancel context.CancelFunc
		done   chan struct{}
	)
	start := func() {
		mu.Lock()
		defer mu.Unlock()
		if cancel != nil {
			return
		}
		var runCtx context.Context
		runCtx, cancel = context.WithCancel(ctx)
		done = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			if err := session.Run(runCtx); err != nil {
				logging.Error(runCtx, logging.Logger(), "live classification stopped", err)
			}
		}(done)
	}
	pause := func() {
		mu.Lock()
		defer mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
		cancel = nil
	}

	tr.OnToggle(func(live bool) {
		if live {
			start()
		} else {
			pause()
		}
	})
	tr.OnOpen(func() {
		openBrowser("http://localhost" + cfg.Addr)
	})
	tr.OnQuit(stop)

	go func() {
		<-ctx.Done()
		tr.Quit()
	}()

	start()
	tr.Run()
	pause()
	return nil
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

func runStats(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the stats as JSON")
	fs.Parse(args)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	model, err := knn.New(cfg.K)
	if err != nil {
		return err
	}

	records, err := st.Load(ctx)
	var partial *knn.PartialLoadError
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("No poses found.")
		return nil
	case errors.As(err, &partial):
	case err != nil:
		return err
	}
	report := model.Load(store.KNNRecords(records), true)

	stats := model.Stats()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	skipped := len(report.Skipped)
	if partial != nil {
		skipped += len(partial.Skipped)
	}
	printStats(os.Stdout, stats, skipped)
	return nil
}

func printStats(w io.Writer, stats knn.Stats, skipped int) {
	fmt.Fprintf(w, "Samples: %d  Dimension: %d  Skipped: %d\n\n", stats.Samples, stats.Dimension, skipped)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tSAMPLES")
	for _, lc := range stats.Labels {
		fmt.Fprintf(tw, "%s\t%d\n", lc.Label, lc.Samples)
	}
	tw.Flush()
}

func runForget(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	label := fs.String("label", "", "label to delete (required)")
	fs.Parse(args)

	if *label == "" {
		fs.Usage()
		return errors.New("-label is required")
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	deleter, ok := st.(store.Deleter)
	if !ok {
		return fmt.Errorf("the %s backend cannot delete poses", cfg.Backend)
	}

	n, err := deleter.DeleteByLabel(ctx, *label)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Printf("No poses labeled %q.\n", *label)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d poses labeled %q deleted.\n", n, *label)
	return nil
}
