// Package testdata provides pose files for tests.
package testdata

import (
	"embed"
	"fmt"
)

//go:embed poses/*.json
var posesFS embed.FS

// Pose files available to LoadPoses.
const (
	// CleanPoses holds three "fist" and three "open" poses, all valid.
	CleanPoses = "handposes.json"

	// MixedPoses holds three valid poses among malformed entries at
	// indexes 1, 3, 4 and 5. Entry 5 decodes but has 60 values.
	MixedPoses = "mixed.json"

	// ObjectPoses is a single pose that is not wrapped in an array.
	ObjectPoses = "object.json"
)

// LoadPoses returns the raw contents of a pose file.
func LoadPoses(name string) ([]byte, error) {
	data, err := posesFS.ReadFile("poses/" + name)
	if err != nil {
		return nil, fmt.Errorf("load poses %s: %w", name, err)
	}
	return data, nil
}

// MustLoadPoses is LoadPoses for test setup; it panics on a missing file.
func MustLoadPoses(name string) []byte {
	data, err := LoadPoses(name)
	if err != nil {
		panic(err)
	}
	return data
}
