package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/knn"
)

var (
	// ErrNotFound is returned by Load when no poses have been saved yet.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFormat is returned when a payload is not a JSON array.
	ErrInvalidFormat = errors.New("invalid data format: expected an array")
)

// PoseStore persists labeled pose records.
//
// Save appends; it never replaces or deduplicates. Load returns every saved
// record in save order, or ErrNotFound when nothing has been saved. When some
// stored records cannot be decoded, Load returns the rest together with a
// *knn.PartialLoadError describing the skipped ones.
type PoseStore interface {
	Save(ctx context.Context, records []Record) error
	Load(ctx context.Context) ([]Record, error)
}

// Record is the persisted form of a labeled pose.
type Record struct {
	Label       string    `json:"label"`
	Coordinates []float64 `json:"coordinates"`

	// Index is the record's position in the collection it was decoded from.
	Index int `json:"-"`
}

// NewRecord builds a record from a knn sample.
func NewRecord(s knn.Sample) Record {
	return Record{Label: s.Label, Coordinates: append([]float64(nil), s.Vector...)}
}

// UnmarshalJSON accepts "coordinates", "pose" or "vector" as the vector key,
// in that order of preference.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire struct {
		Label       string    `json:"label"`
		Coordinates []float64 `json:"coordinates"`
		Pose        []float64 `json:"pose"`
		Vector      []float64 `json:"vector"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.Label = wire.Label
	switch {
	case wire.Coordinates != nil:
		r.Coordinates = wire.Coordinates
	case wire.Pose != nil:
		r.Coordinates = wire.Pose
	default:
		r.Coordinates = wire.Vector
	}
	return nil
}

// Validate reports whether the record carries both a label and a vector.
func (r Record) Validate() error {
	if r.Label == "" {
		return errors.New("missing label")
	}
	if r.Coordinates == nil {
		return errors.New("missing coordinates")
	}
	return nil
}

// KNNRecords converts records for a knn bulk load.
func KNNRecords(records []Record) []knn.Record {
	out := make([]knn.Record, len(records))
	for i, r := range records {
		out[i] = knn.Record{Label: r.Label, Vector: r.Coordinates}
	}
	return out
}

// DecodeRecords decodes a JSON array of records. Each element is decoded on
// its own: elements that are malformed or lack a label or coordinates are
// skipped and reported, the others are returned with Index set to their
// position in the array.
func DecodeRecords(data []byte) ([]Record, []knn.SkippedRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil, ErrInvalidFormat
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	records := make([]Record, 0, len(raw))
	var skipped []knn.SkippedRecord
	for i, elem := range raw {
		var rec Record
		if err := json.Unmarshal(elem, &rec); err != nil {
			skipped = append(skipped, knn.SkippedRecord{Index: i, Reason: err.Error()})
			continue
		}
		if err := rec.Validate(); err != nil {
			skipped = append(skipped, knn.SkippedRecord{Index: i, Reason: err.Error()})
			continue
		}
		rec.Index = i
		records = append(records, rec)
	}
	return records, skipped, nil
}

// partial wraps decoded records with the skip report, if any.
func partial(records []Record, skipped []knn.SkippedRecord) ([]Record, error) {
	if len(skipped) == 0 {
		return records, nil
	}
	return records, &knn.PartialLoadError{Loaded: len(records), Skipped: skipped}
}

// Deleter is implemented by stores that can remove every pose under a label.
type Deleter interface {
	DeleteByLabel(ctx context.Context, label string) (int64, error)
}
