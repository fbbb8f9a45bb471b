// Package main provides a nearest-centroid classifier backend.
// Build it next to its manifest:
//
//	go build -o backends/centroid/centroid ./backends/centroid
//
// A train request replaces model.json in the working directory with one mean
// vector per label; classify picks the closest mean.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/knn"
)

const modelFile = "model.json"

type centroid struct {
	Label  string    `json:"label"`
	Mean   []float64 `json:"mean"`
	Weight int       `json:"weight"`
}

func main() {
	var req backend.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeError(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	switch req.Action {
	case backend.ActionTrain:
		if err := train(req.Samples); err != nil {
			writeError(fmt.Sprintf("train failed: %v", err))
			return
		}
		write(backend.Response{Success: true})
	case backend.ActionClassify:
		pred, err := classify(req.Vector)
		if err != nil {
			writeError(fmt.Sprintf("classify failed: %v", err))
			return
		}
		data, _ := json.Marshal(pred)
		write(backend.Response{Success: true, Data: data})
	default:
		writeError(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

func train(samples []backend.Sample) error {
	if len(samples) == 0 {
		return errors.New("no samples")
	}

	byLabel := make(map[string]*centroid)
	for _, s := range samples {
		c, ok := byLabel[s.Label]
		if !ok {
			c = &centroid{Label: s.Label, Mean: make([]float64, len(s.Vector))}
			byLabel[s.Label] = c
		}
		if len(s.Vector) != len(c.Mean) {
			return fmt.Errorf("sample for %q has %d values, expected %d", s.Label, len(s.Vector), len(c.Mean))
		}
		floats.Add(c.Mean, s.Vector)
		c.Weight++
	}

	model := make([]centroid, 0, len(byLabel))
	for _, c := range byLabel {
		floats.Scale(1/float64(c.Weight), c.Mean)
		model = append(model, *c)
	}
	sort.Slice(model, func(i, j int) bool { return model[i].Label < model[j].Label })

	data, err := json.Marshal(model)
	if err != nil {
		return err
	}
	return os.WriteFile(modelFile, data, 0644)
}

func classify(vector []float64) (backend.Prediction, error) {
	data, err := os.ReadFile(modelFile)
	if err != nil {
		return backend.Prediction{}, fmt.Errorf("model not trained: %w", err)
	}
	var model []centroid
	if err := json.Unmarshal(data, &model); err != nil {
		return backend.Prediction{}, err
	}

	best, bestDist := -1, 0.0
	for i, c := range model {
		if len(c.Mean) != len(vector) {
			continue
		}
		if d := floats.Distance(c.Mean, vector, 2); best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return backend.Prediction{}, errors.New("no centroid matches the query dimension")
	}

	return backend.Prediction{
		Label:      model[best].Label,
		Confidence: knn.Confidence(bestDist),
	}, nil
}

func writeError(msg string) {
	write(backend.Response{Success: false, Error: msg})
}

func write(resp backend.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
