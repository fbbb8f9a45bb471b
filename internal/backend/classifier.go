package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/knn"
)

// ErrBackendFailed is returned when a backend answers with success=false.
var ErrBackendFailed = errors.New("backend reported failure")

// Classifier delegates classification to a backend process. Samples are kept
// locally and sent to the backend in a train request whenever they changed
// since the last successful training.
type Classifier struct {
	exec    *Executor
	backend *Backend
	set     *knn.TrainingSet

	mu        sync.Mutex
	revision  int
	trainedAt int
}

var _ knn.Model = (*Classifier)(nil)

// NewClassifier creates a classifier backed by b.
func NewClassifier(b *Backend, exec *Executor) *Classifier {
	return &Classifier{
		exec:      exec,
		backend:   b,
		set:       knn.NewTrainingSet(),
		trainedAt: -1,
	}
}

// Backend returns the backend the classifier runs.
func (c *Classifier) Backend() *Backend {
	return c.backend
}

// Learn appends a labeled vector. The backend is retrained on the next Classify.
func (c *Classifier) Learn(label string, vector feature.Vector) error {
	if err := c.set.Append(label, vector); err != nil {
		return err
	}
	c.mu.Lock()
	c.revision++
	c.mu.Unlock()
	return nil
}

// Load bulk-loads records into the local training set.
func (c *Classifier) Load(records []knn.Record, replace bool) knn.LoadReport {
	report := c.set.Load(records, replace)
	if report.Loaded > 0 || replace {
		c.mu.Lock()
		c.revision++
		c.mu.Unlock()
	}
	return report
}

// Len returns the number of local samples.
func (c *Classifier) Len() int {
	return c.set.Len()
}

// Stats summarises the local samples.
func (c *Classifier) Stats() knn.Stats {
	return c.set.Stats()
}

// Classify trains the backend if needed, then asks it for a label. Backends
// report no neighbours, so the result has none and AvgDistance stays zero.
func (c *Classifier) Classify(ctx context.Context, query feature.Vector) (knn.Result, error) {
	if err := ctx.Err(); err != nil {
		return knn.Result{}, err
	}
	if c.set.Len() == 0 {
		return knn.Result{}, knn.ErrEmptyTrainingSet
	}
	if dim := c.set.Dim(); len(query) != dim {
		return knn.Result{}, fmt.Errorf("%w: query has %d values, training set has %d",
			knn.ErrDimensionMismatch, len(query), dim)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.trainedAt != c.revision {
		if err := c.train(ctx); err != nil {
			return knn.Result{}, err
		}
		c.trainedAt = c.revision
	}

	resp, err := c.call(ctx, &Request{Action: ActionClassify, Vector: query})
	if err != nil {
		return knn.Result{}, err
	}

	var pred Prediction
	if err := json.Unmarshal(resp.Data, &pred); err != nil {
		return knn.Result{}, fmt.Errorf("failed to decode prediction: %w", err)
	}
	if pred.Label == "" {
		return knn.Result{}, fmt.Errorf("%w: empty label", ErrBackendFailed)
	}

	return knn.Result{
		Label:      pred.Label,
		Confidence: clampPercent(pred.Confidence),
	}, nil
}

func (c *Classifier) train(ctx context.Context) error {
	samples := make([]Sample, 0, c.set.Len())
	for _, s := range c.set.All() {
		samples = append(samples, Sample{Label: s.Label, Vector: s.Vector})
	}
	_, err := c.call(ctx, &Request{Action: ActionTrain, Samples: samples})
	if err != nil {
		return fmt.Errorf("failed to train backend: %w", err)
	}
	return nil
}

func (c *Classifier) call(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.exec.Execute(ctx, c.backend, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s: %s", ErrBackendFailed, req.Action, resp.Error)
	}
	return resp, nil
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
