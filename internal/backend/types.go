// Package backend runs external classifier processes behind the knn.Model
// interface. A backend is an executable that reads one JSON request on stdin
// and writes one JSON response on stdout.
package backend

import "encoding/json"

// ManifestFile is the manifest looked up in every backend directory.
const ManifestFile = "backend.json"

// Actions understood by a backend process.
const (
	ActionTrain    = "train"
	ActionClassify = "classify"
)

// Manifest describes a backend's metadata.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	Dimension   int    `json:"dimension,omitempty"`
}

// Sample is a labeled vector sent with a train request.
type Sample struct {
	Label  string    `json:"label"`
	Vector []float64 `json:"vector"`
}

// Request is the message written to a backend's stdin.
type Request struct {
	Action  string    `json:"action"`
	Vector  []float64 `json:"vector,omitempty"`
	Samples []Sample  `json:"samples,omitempty"`
}

// Response is the message a backend writes to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Prediction is the Data payload of a successful classify response.
// Confidence is a percentage.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Backend is a discovered backend with its manifest and location.
type Backend struct {
	Manifest   Manifest
	Path       string
	Executable string
}
