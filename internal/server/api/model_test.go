package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/store"
)

func newTestModel(t *testing.T) *knn.Classifier {
	t.Helper()

	model, err := knn.New(1)
	if err != nil {
		t.Fatalf("knn.New() error = %v", err)
	}
	_ = model.Learn("fist", feature.Vector{0, 0, 0})
	_ = model.Learn("open", feature.Vector{1, 1, 1})
	return model
}

func TestModelHandler_Classify(t *testing.T) {
	h := NewModelHandler(newTestModel(t), nil, quietLogger())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLabel  string
	}{
		{"near fist", `{"vector":[0.1,0.1,0.1]}`, http.StatusOK, "fist"},
		{"near open", `{"vector":[0.9,0.9,0.9]}`, http.StatusOK, "open"},
		{"coordinates alias", `{"coordinates":[0,0,0]}`, http.StatusOK, "fist"},
		{"wrong length", `{"vector":[0,0]}`, http.StatusUnprocessableEntity, ""},
		{"missing vector", `{}`, http.StatusUnprocessableEntity, ""},
		{"bad json", `{"vector":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Classify(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantLabel == "" {
				return
			}

			var result knn.Result
			if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if result.Label != tt.wantLabel {
				t.Errorf("expected label %q, got %q", tt.wantLabel, result.Label)
			}
			if result.Confidence <= 0 || result.Confidence > 100 {
				t.Errorf("confidence out of range: %f", result.Confidence)
			}
		})
	}
}

func TestModelHandler_ClassifyEmptyModel(t *testing.T) {
	model, _ := knn.New(3)
	h := NewModelHandler(model, nil, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(`{"vector":[1,2,3]}`))
	rec := httptest.NewRecorder()
	h.Classify(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestModelHandler_LearnPersists(t *testing.T) {
	model := newTestModel(t)
	s := newTestFileStore(t)
	h := NewModelHandler(model, s, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/learn", strings.NewReader(`{"label":"peace","vector":[0.5,0.5,0.5]}`))
	rec := httptest.NewRecorder()
	h.Learn(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp learnResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Samples != 3 || resp.Label != "peace" {
		t.Errorf("unexpected response: %+v", resp)
	}

	records, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 || records[0].Label != "peace" {
		t.Errorf("expected persisted peace sample, got %+v", records)
	}
}

func TestModelHandler_LearnInvalid(t *testing.T) {
	s := newTestFileStore(t)
	h := NewModelHandler(newTestModel(t), s, quietLogger())

	for _, body := range []string{`{"label":"","vector":[1,1,1]}`, `{"label":"x","vector":[1]}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/learn", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Learn(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("body %s: expected status %d, got %d", body, http.StatusUnprocessableEntity, rec.Code)
		}
	}

	if _, err := s.Load(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rejected samples should not be persisted, got %v", err)
	}
}

func TestModelHandler_Samples(t *testing.T) {
	h := NewModelHandler(newTestModel(t), nil, quietLogger())

	rec := httptest.NewRecorder()
	h.Samples(rec, httptest.NewRequest(http.MethodGet, "/api/samples", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var stats knn.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.Samples != 2 || stats.Dimension != 3 || len(stats.Labels) != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestModelHandler_DeleteLabel(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, []store.Record{
		{Label: "fist", Coordinates: []float64{0, 0, 0}},
		{Label: "open", Coordinates: []float64{1, 1, 1}},
	})

	model, _ := knn.New(1)
	h := NewModelHandler(model, s, quietLogger())

	t.Run("removes label and reloads model", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Samples(rec, httptest.NewRequest(http.MethodDelete, "/api/samples/fist", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		var resp deleteResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Removed != 1 || resp.Samples != 1 {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Samples(rec, httptest.NewRequest(http.MethodDelete, "/api/samples/fist", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("store without deletion", func(t *testing.T) {
		h := NewModelHandler(model, nil, quietLogger())
		rec := httptest.NewRecorder()
		h.Samples(rec, httptest.NewRequest(http.MethodDelete, "/api/samples/open", nil))
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("expected status %d, got %d", http.StatusNotImplemented, rec.Code)
		}
	})
}
