package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// ModelHandler exposes a classifier over HTTP:
//
//	POST   /api/classify          {"vector": [...]}
//	POST   /api/learn             {"label": "...", "vector": [...]}
//	GET    /api/samples           training set statistics
//	DELETE /api/samples/{label}   forget a label (stores implementing store.Deleter)
type ModelHandler struct {
	model  knn.Model
	store  store.PoseStore
	logger *slog.Logger
}

// NewModelHandler creates a ModelHandler. s may be nil, in which case
// learned samples are kept in memory only.
func NewModelHandler(model knn.Model, s store.PoseStore, logger *slog.Logger) *ModelHandler {
	if logger == nil {
		logger = logging.Logger()
	}
	return &ModelHandler{model: model, store: s, logger: logger}
}

type vectorRequest struct {
	Label  string    `json:"label"`
	Vector []float64 `json:"vector"`
}

// UnmarshalJSON accepts the record keys as aliases for "vector".
func (v *vectorRequest) UnmarshalJSON(data []byte) error {
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	v.Label = rec.Label
	v.Vector = rec.Coordinates
	return nil
}

type learnResponse struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

type deleteResponse struct {
	Label   string `json:"label"`
	Removed int64  `json:"removed"`
	Samples int    `json:"samples"`
}

// Classify handles POST /api/classify.
func (h *ModelHandler) Classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req vectorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := h.model.Classify(r.Context(), feature.Vector(req.Vector))
	if err != nil {
		h.writeModelError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Learn handles POST /api/learn. The sample is persisted after it is learned.
func (h *ModelHandler) Learn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req vectorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.model.Learn(req.Label, feature.Vector(req.Vector)); err != nil {
		h.writeModelError(r.Context(), w, err)
		return
	}

	if h.store != nil {
		rec := store.Record{Label: req.Label, Coordinates: req.Vector}
		if err := h.store.Save(r.Context(), []store.Record{rec}); err != nil {
			logging.Error(r.Context(), h.logger, "failed to persist learned sample", err,
				slog.String("label", req.Label))
			writeError(w, http.StatusInternalServerError, "Sample learned but not saved")
			return
		}
	}

	writeJSON(w, http.StatusCreated, learnResponse{Label: req.Label, Samples: h.model.Len()})
}

// Samples handles GET /api/samples and DELETE /api/samples/{label}.
func (h *ModelHandler) Samples(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimPrefix(r.URL.Path, "/api/samples")
	label = strings.TrimPrefix(label, "/")

	if label == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.model.Stats())
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.forget(w, r, label)
}

// forget removes label from the store and reloads the model from what is left.
func (h *ModelHandler) forget(w http.ResponseWriter, r *http.Request, label string) {
	deleter, ok := h.store.(store.Deleter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support deletion")
		return
	}

	removed, err := deleter.DeleteByLabel(r.Context(), label)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Label not found")
			return
		}
		logging.Error(r.Context(), h.logger, "failed to delete label", err, slog.String("label", label))
		writeError(w, http.StatusInternalServerError, "Failed to delete label")
		return
	}

	records, err := h.store.Load(r.Context())
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, knn.ErrPartialLoad) {
		logging.Error(r.Context(), h.logger, "failed to reload poses", err)
		writeError(w, http.StatusInternalServerError, "Failed to reload poses")
		return
	}
	h.model.Load(store.KNNRecords(records), true)

	h.logger.InfoContext(r.Context(), "label forgotten",
		slog.String("label", label),
		slog.Int64("removed", removed))
	writeJSON(w, http.StatusOK, deleteResponse{Label: label, Removed: removed, Samples: h.model.Len()})
}

// writeModelError maps classifier errors to status codes.
func (h *ModelHandler) writeModelError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, knn.ErrEmptyTrainingSet):
		writeError(w, http.StatusConflict, "Not enough data")
	case errors.Is(err, knn.ErrDimensionMismatch), errors.Is(err, knn.ErrInvalidSample):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		logging.Error(ctx, h.logger, "classifier failed", err)
		writeError(w, http.StatusInternalServerError, "Classifier error")
	}
}
