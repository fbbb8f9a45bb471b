package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrServiceNotFound is returned when the landmark service script is missing.
var ErrServiceNotFound = errors.New("mediapipe_service.py not found")

const serviceScript = "mediapipe_service.py"

// MediaPipe detects hands through a Python MediaPipe child process. Each
// frame is written as a 4-byte big-endian length followed by JPEG bytes; the
// child answers with one JSON line per frame.
type MediaPipe struct {
	opts   Options
	script string
	python string

	mu   sync.Mutex
	proc *serviceProc
	idle *time.Timer
}

type serviceProc struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
}

type serviceReply struct {
	Hands []HandLandmarks `json:"hands"`
	Error string          `json:"error,omitempty"`
}

// NewMediaPipe locates the service script and interpreter. The child is
// started on the first Detect.
func NewMediaPipe(opts Options) (*MediaPipe, error) {
	script := opts.Script
	if script == "" {
		script = locate(searchPaths(filepath.Join("scripts", serviceScript)))
	}
	if script == "" {
		return nil, ErrServiceNotFound
	}

	python := opts.Python
	if python == "" {
		python = locate(searchPaths(filepath.Join("venv", "bin", "python")))
	}
	if python == "" {
		python = "python3"
	}

	return &MediaPipe{opts: opts, script: script, python: python}, nil
}

// Detect sends frame to the service and returns the hands it reports,
// at most MaxHands and none scored below MinDetection. A broken pipe stops
// the child so the next call starts a fresh one.
func (d *MediaPipe) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	proc, err := d.process()
	if err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	reply, err := proc.exchange(buf.GetBytes())
	if err != nil {
		d.stop()
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", reply.Error)
	}

	d.touch()
	return filterHands(reply.Hands, d.opts), nil
}

// Close stops the child process if it is running.
func (d *MediaPipe) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (p *serviceProc) exchange(jpeg []byte) (serviceReply, error) {
	var reply serviceReply

	if err := binary.Write(p.in, binary.BigEndian, uint32(len(jpeg))); err != nil {
		return reply, fmt.Errorf("write frame length: %w", err)
	}
	if _, err := p.in.Write(jpeg); err != nil {
		return reply, fmt.Errorf("write frame: %w", err)
	}

	line, err := p.out.ReadBytes('\n')
	if err != nil {
		return reply, fmt.Errorf("read reply: %w", err)
	}
	if err := json.Unmarshal(line, &reply); err != nil {
		return reply, fmt.Errorf("parse reply: %w", err)
	}
	return reply, nil
}

// process returns the running child, starting one if needed.
func (d *MediaPipe) process() (*serviceProc, error) {
	if d.proc != nil {
		return d.proc, nil
	}

	cmd := exec.Command(d.python, d.script,
		"--max-hands", strconv.Itoa(d.opts.MaxHands),
		"--min-confidence", strconv.FormatFloat(d.opts.MinDetection, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.opts.MinTracking, 'f', 2, 64),
	)
	cmd.Stderr = os.Stderr

	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mediapipe service: %w", err)
	}

	d.proc = &serviceProc{cmd: cmd, in: in, out: bufio.NewReader(out)}
	return d.proc, nil
}

func (d *MediaPipe) stop() error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	if d.proc == nil {
		return nil
	}

	proc := d.proc
	d.proc = nil
	proc.in.Close()
	return proc.cmd.Wait()
}

// touch restarts the idle countdown.
func (d *MediaPipe) touch() {
	if d.opts.IdleTimeout <= 0 {
		return
	}
	if d.idle != nil {
		d.idle.Stop()
	}
	d.idle = time.AfterFunc(d.opts.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.stop()
	})
}

func filterHands(hands []HandLandmarks, opts Options) []HandLandmarks {
	kept := make([]HandLandmarks, 0, len(hands))
	for _, h := range hands {
		if opts.MaxHands > 0 && len(kept) == opts.MaxHands {
			break
		}
		if h.Score < opts.MinDetection {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

// searchPaths lists where rel may live: the working directory and its
// parent, next to the executable, and under ~/.mudra.
func searchPaths(rel string) []string {
	paths := []string{rel, filepath.Join("..", rel)}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mudra", rel))
	}
	return paths
}

// locate returns the absolute form of the first existing path.
func locate(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
