package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nbalepur/fact-repetition/pkg/api/response"
	"github.com/nbalepur/fact-repetition/pkg/replay"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// RecordsHandler exposes the audit log: study records, their snapshots, and
// decision replay.
type RecordsHandler struct {
	store    storage.Storage
	replayer *replay.Replayer
	logger   handlerLogger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(store storage.Storage, replayer *replay.Replayer, log handlerLogger) *RecordsHandler {
	return &RecordsHandler{
		store:    store,
		replayer: replayer,
		logger:   log,
	}
}

// ListRecords handles GET /api/v1/records
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := &storage.RecordFilter{
		UserID:     r.URL.Query().Get("user_id"),
		DecisionID: r.URL.Query().Get("decision_id"),
		DeckID:     r.URL.Query().Get("deck_id"),
		NewOnly:    r.URL.Query().Get("new_only") == "true",
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "invalid from date", getRequestID(ctx))
			return
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "invalid to date", getRequestID(ctx))
			return
		}
		filter.To = &t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	records, err := h.store.ListRecords(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to list records", "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, records)
}

// GetRecord handles GET /api/v1/records/{id}
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "id")

	record, err := h.store.GetRecord(ctx, recordID)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, record)
}

// Replay handles GET /api/v1/records/{id}/replay
//
// An optional policy query parameter rescores the decision under a different
// policy than the one that produced it.
func (h *RecordsHandler) Replay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "id")

	var (
		result *replay.Result
		err    error
	)
	if policy := r.URL.Query().Get("policy"); policy != "" {
		result, err = h.replayer.ReplayWithPolicy(ctx, recordID, policy)
	} else {
		result, err = h.replayer.Replay(ctx, recordID)
	}
	if err != nil {
		h.logger.Error("Failed to replay record", "record_id", recordID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}
