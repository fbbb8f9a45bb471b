package knn

import (
	"fmt"
	"iter"
	"math"
	"sort"
	"sync"

	"github.com/ayusman/mudra/internal/feature"
)

// Sample is a labeled feature vector.
type Sample struct {
	Label  string         `json:"label"`
	Vector feature.Vector `json:"vector"`
}

// Record is an externally supplied sample as handed to a bulk load.
type Record struct {
	Label  string
	Vector []float64
}

// LoadReport summarises a bulk load.
type LoadReport struct {
	Loaded  int             `json:"loaded"`
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}

// Err returns a *PartialLoadError when any record was skipped, nil otherwise.
func (r LoadReport) Err() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	return &PartialLoadError{Loaded: r.Loaded, Skipped: r.Skipped}
}

// Merge combines two reports whose indexes refer to the same input collection.
func (r LoadReport) Merge(other LoadReport) LoadReport {
	skipped := append(append([]SkippedRecord(nil), r.Skipped...), other.Skipped...)
	sort.SliceStable(skipped, func(i, j int) bool { return skipped[i].Index < skipped[j].Index })
	return LoadReport{Loaded: r.Loaded + other.Loaded, Skipped: skipped}
}

// LabelCount is the number of samples stored under one label.
type LabelCount struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

// Stats describes the contents of a training set.
type Stats struct {
	Samples   int          `json:"samples"`
	Dimension int          `json:"dimension"`
	Labels    []LabelCount `json:"labels"`
}

// TrainingSet is an ordered, append-only collection of samples sharing one
// dimensionality. It is safe for concurrent use.
type TrainingSet struct {
	samples []Sample
	dim     int
	mu      sync.RWMutex
}

// NewTrainingSet creates an empty training set.
func NewTrainingSet() *TrainingSet {
	return &TrainingSet{
		samples: make([]Sample, 0),
	}
}

// Append adds a sample at the end of the set. The vector is copied.
func (s *TrainingSet) Append(label string, vector feature.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(label, vector)
}

func (s *TrainingSet) appendLocked(label string, vector feature.Vector) error {
	if err := s.validate(label, vector); err != nil {
		return err
	}
	if len(s.samples) == 0 {
		s.dim = len(vector)
	}
	s.samples = append(s.samples, Sample{Label: label, Vector: vector.Clone()})
	return nil
}

func (s *TrainingSet) validate(label string, vector feature.Vector) error {
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidSample)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidSample)
	}
	for i, x := range vector {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite value at %d", ErrInvalidSample, i)
		}
	}
	if len(s.samples) > 0 && len(vector) != s.dim {
		return fmt.Errorf("%w: vector has %d values, set has %d", ErrInvalidSample, len(vector), s.dim)
	}
	return nil
}

// Len returns the number of samples.
func (s *TrainingSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Dim returns the established dimensionality, or 0 for an empty set.
func (s *TrainingSet) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return 0
	}
	return s.dim
}

// All yields samples in insertion order. Each call iterates a snapshot taken
// when iteration starts, and yielded vectors are copies.
func (s *TrainingSet) All() iter.Seq2[int, Sample] {
	return func(yield func(int, Sample) bool) {
		s.mu.RLock()
		samples := s.samples[:len(s.samples):len(s.samples)]
		s.mu.RUnlock()

		for i, sample := range samples {
			if !yield(i, Sample{Label: sample.Label, Vector: sample.Vector.Clone()}) {
				return
			}
		}
	}
}

// Snapshot returns the current samples. Stored vectors are never mutated, so
// the slice is safe to read after the lock is released, but callers must not
// modify it.
func (s *TrainingSet) Snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples[:len(s.samples):len(s.samples)]
}

// Load adds records in order, replacing the current contents first when
// replace is set. Records failing validation are skipped and reported; the
// rest are kept.
func (s *TrainingSet) Load(records []Record, replace bool) LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replace {
		s.samples = make([]Sample, 0, len(records))
		s.dim = 0
	}

	var report LoadReport
	for i, rec := range records {
		if err := s.appendLocked(rec.Label, feature.Vector(rec.Vector)); err != nil {
			report.Skipped = append(report.Skipped, SkippedRecord{Index: i, Reason: err.Error()})
			continue
		}
		report.Loaded++
	}
	return report
}

// Stats counts samples per label, sorted by label.
func (s *TrainingSet) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, sample := range s.samples {
		counts[sample.Label]++
	}

	labels := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		labels = append(labels, LabelCount{Label: label, Samples: n})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Label < labels[j].Label })

	stats := Stats{Samples: len(s.samples), Labels: labels}
	if len(s.samples) > 0 {
		stats.Dimension = s.dim
	}
	return stats
}
