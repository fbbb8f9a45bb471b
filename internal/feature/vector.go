// Package feature converts detected hand landmarks into flat numeric vectors
// and measures the distance between them.
package feature

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/mudra/internal/detector"
)

// CoordsPerPoint is the number of vector entries contributed by one landmark.
const CoordsPerPoint = 3

// HandDim is the vector length of a single fully detected hand (63).
const HandDim = detector.NumLandmarks * CoordsPerPoint

// ErrDimensionMismatch is returned when two vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Vector is a flattened landmark encoding. Point i occupies [3i, 3i+2].
type Vector []float64

// FromPoints concatenates the (x, y, z) of each point in order.
// An empty point list yields a zero-length vector.
func FromPoints(points []detector.Point3D) Vector {
	v := make(Vector, 0, len(points)*CoordsPerPoint)
	for _, p := range points {
		v = append(v, p.X, p.Y, p.Z)
	}
	return v
}

// FromHand builds a vector from a detected hand. When normalize is set the
// landmarks are first translated to the wrist and scaled by palm size.
func FromHand(hand *detector.HandLandmarks, normalize bool) Vector {
	if hand == nil {
		return Vector{}
	}
	if normalize {
		hand = hand.Normalize()
	}
	return FromPoints(hand.Points[:])
}

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Distance(a, b, 2), nil
}
