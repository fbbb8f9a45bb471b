// Package knn implements a k-nearest-neighbor classifier over landmark
// feature vectors.
package knn

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/mudra/internal/feature"
)

// DefaultK is the neighbour count used by the capture tools.
const DefaultK = 3

// cancelCheckInterval is how many distance computations run between context checks.
const cancelCheckInterval = 256

// Model is anything that can learn labeled vectors and classify new ones.
type Model interface {
	Learn(label string, vector feature.Vector) error
	Classify(ctx context.Context, query feature.Vector) (Result, error)
	Load(records []Record, replace bool) LoadReport
	Len() int
	Stats() Stats
}

// Neighbor is one training sample ranked against a query.
type Neighbor struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Index    int     `json:"index"` // position in the training set
}

// Result is the outcome of a classification.
type Result struct {
	Label       string     `json:"label"`
	AvgDistance float64    `json:"avgDistance"`
	Confidence  float64    `json:"confidence"`
	Neighbors   []Neighbor `json:"neighbors,omitempty"`
}

// Classifier is a k-NN classifier over a TrainingSet.
type Classifier struct {
	k   int
	set *TrainingSet
}

var _ Model = (*Classifier)(nil)

// New creates a classifier with an empty training set.
func New(k int) (*Classifier, error) {
	return NewWithSet(k, NewTrainingSet())
}

// NewWithSet creates a classifier over an existing training set.
func NewWithSet(k int, set *TrainingSet) (*Classifier, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	if set == nil {
		set = NewTrainingSet()
	}
	return &Classifier{k: k, set: set}, nil
}

// K returns the configured neighbour count.
func (c *Classifier) K() int {
	return c.k
}

// TrainingSet returns the set searched by the classifier.
func (c *Classifier) TrainingSet() *TrainingSet {
	return c.set
}

// Learn appends a labeled vector to the training set.
func (c *Classifier) Learn(label string, vector feature.Vector) error {
	return c.set.Append(label, vector)
}

// Load bulk-loads records into the training set.
func (c *Classifier) Load(records []Record, replace bool) LoadReport {
	return c.set.Load(records, replace)
}

// Len returns the training set size.
func (c *Classifier) Len() int {
	return c.set.Len()
}

// Stats describes the training set.
func (c *Classifier) Stats() Stats {
	return c.set.Stats()
}

// Classify predicts the label of query by majority vote among its
// min(k, n) nearest training samples.
//
// Neighbours at equal distance keep training-set order. When labels tie on
// vote count, the label owning the single closest neighbour wins.
func (c *Classifier) Classify(ctx context.Context, query feature.Vector) (Result, error) {
	samples := c.set.Snapshot()
	if len(samples) == 0 {
		return Result{}, ErrEmptyTrainingSet
	}

	dim := len(samples[0].Vector)
	if len(query) != dim {
		return Result{}, fmt.Errorf("%w: query has %d values, training data has %d", ErrDimensionMismatch, len(query), dim)
	}
	for i, x := range query {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Result{}, fmt.Errorf("%w: query has non-finite value at %d", ErrInvalidSample, i)
		}
	}

	neighbors := make([]Neighbor, len(samples))
	for i, sample := range samples {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		d, err := feature.Distance(query, sample.Vector)
		if err != nil {
			return Result{}, err
		}
		neighbors[i] = Neighbor{Label: sample.Label, Distance: d, Index: i}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	k := min(c.k, len(neighbors))
	nearest := append([]Neighbor(nil), neighbors[:k]...)

	distances := make([]float64, k)
	for i, n := range nearest {
		distances[i] = n.Distance
	}
	avg := stat.Mean(distances, nil)

	return Result{
		Label:       vote(nearest),
		AvgDistance: avg,
		Confidence:  Confidence(avg),
		Neighbors:   nearest,
	}, nil
}

// vote returns the most frequent label among neighbors, which must be sorted
// by ascending distance. Labels are visited in order of first appearance,
// which is the order of their closest neighbour, so keeping the first label
// that reaches the maximum count breaks ties by smallest distance.
func vote(neighbors []Neighbor) string {
	counts := make(map[string]int, len(neighbors))
	order := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if _, seen := counts[n.Label]; !seen {
			order = append(order, n.Label)
		}
		counts[n.Label]++
	}

	best := ""
	bestCount := 0
	for _, label := range order {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}
