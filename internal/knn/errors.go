package knn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayusman/mudra/internal/feature"
)

var (
	// ErrInvalidSample is returned when a sample has an empty label, an empty
	// or non-finite vector, or a dimensionality that disagrees with the set.
	ErrInvalidSample = errors.New("invalid sample")

	// ErrEmptyTrainingSet is returned by Classify when nothing has been learned.
	ErrEmptyTrainingSet = errors.New("training set is empty")

	// ErrDimensionMismatch is returned when a query length differs from the
	// training data.
	ErrDimensionMismatch = feature.ErrDimensionMismatch

	// ErrInvalidK is returned by New for k < 1.
	ErrInvalidK = errors.New("k must be a positive integer")

	// ErrPartialLoad is matched by PartialLoadError.
	ErrPartialLoad = errors.New("some records were skipped")
)

// SkippedRecord identifies a record rejected during a bulk load.
type SkippedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// PartialLoadError reports the records that were skipped by a load that
// otherwise succeeded.
type PartialLoadError struct {
	Loaded  int
	Skipped []SkippedRecord
}

func (e *PartialLoadError) Error() string {
	reasons := make([]string, 0, len(e.Skipped))
	for _, s := range e.Skipped {
		reasons = append(reasons, fmt.Sprintf("#%d: %s", s.Index, s.Reason))
	}
	return fmt.Sprintf("loaded %d records, skipped %d (%s)", e.Loaded, len(e.Skipped), strings.Join(reasons, "; "))
}

func (e *PartialLoadError) Unwrap() error {
	return ErrPartialLoad
}
