package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// Response bodies of the pose routes. Clients match on these strings.
const (
	MsgSaved         = "Poses saved successfully."
	MsgInvalidFormat = "Invalid data format. Expected an array."
	MsgSaveFailed    = "Error saving poses."
	MsgNoPoses       = "No poses found."
	MsgLoadFailed    = "Error loading poses."
)

// maxBodyBytes caps request bodies on the pose routes.
const maxBodyBytes = 32 << 20

// PosesHandler serves POST /save and GET /load over a PoseStore. When a
// model is set, saved poses are also learned by it.
type PosesHandler struct {
	store  store.PoseStore
	model  knn.Model
	logger *slog.Logger
}

// NewPosesHandler creates a PosesHandler. model may be nil.
func NewPosesHandler(s store.PoseStore, model knn.Model, logger *slog.Logger) *PosesHandler {
	if logger == nil {
		logger = logging.Logger()
	}
	return &PosesHandler{store: s, model: model, logger: logger}
}

// Save handles POST /save. The body must be a JSON array of records;
// elements without a label or coordinates are dropped and logged.
func (h *PosesHandler) Save(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeText(w, http.StatusBadRequest, MsgInvalidFormat)
		return
	}

	records, skipped, err := store.DecodeRecords(body)
	if err != nil {
		writeText(w, http.StatusBadRequest, MsgInvalidFormat)
		return
	}
	if len(skipped) > 0 {
		h.logger.WarnContext(r.Context(), "dropped malformed poses",
			slog.Int("dropped", len(skipped)),
			slog.Int("kept", len(records)))
	}

	if err := h.store.Save(r.Context(), records); err != nil {
		logging.Error(r.Context(), h.logger, "failed to save poses", err)
		writeText(w, http.StatusInternalServerError, MsgSaveFailed)
		return
	}

	if h.model != nil && len(records) > 0 {
		report := h.model.Load(store.KNNRecords(records), false)
		if err := report.Err(); err != nil {
			h.logger.WarnContext(r.Context(), "saved poses not learned", slog.Any("error", err))
		}
	}

	h.logger.InfoContext(r.Context(), "poses saved", slog.Int("count", len(records)))
	writeText(w, http.StatusOK, MsgSaved)
}

// Load handles GET /load and returns every stored pose as a JSON array.
func (h *PosesHandler) Load(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.store.Load(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeText(w, http.StatusNotFound, MsgNoPoses)
		return
	case errors.Is(err, knn.ErrPartialLoad):
		h.logger.WarnContext(r.Context(), "serving partial pose collection", slog.Any("error", err))
	case err != nil:
		logging.Error(r.Context(), h.logger, "failed to load poses", err)
		writeText(w, http.StatusInternalServerError, MsgLoadFailed)
		return
	}

	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
