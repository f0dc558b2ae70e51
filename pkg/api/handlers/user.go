package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nbalepur/fact-repetition/pkg/api/response"
	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/sched"
)

// UserHandler handles user and fact management endpoints.
type UserHandler struct {
	scheduler *sched.Scheduler
	logger    handlerLogger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(scheduler *sched.Scheduler, log handlerLogger) *UserHandler {
	return &UserHandler{
		scheduler: scheduler,
		logger:    log,
	}
}

type setPolicyRequest struct {
	Policy string               `json:"policy"`
	Params *fact.ParamsOverride `json:"params,omitempty"`
}

// GetUser handles GET /api/v1/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	user, err := h.scheduler.GetUser(ctx, userID)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, user)
}

// SetPolicy handles PUT /api/v1/users/{id}/policy
func (h *UserHandler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	var req setPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.Policy == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "policy is required", getRequestID(ctx))
		return
	}

	params, err := h.scheduler.SetPolicy(ctx, userID, req.Policy, req.Params)
	if err != nil {
		h.logger.Error("Failed to set policy", "user_id", userID, "policy", req.Policy, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, params)
}

// ResetUser handles POST /api/v1/users/{id}/reset
func (h *UserHandler) ResetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	user, err := h.scheduler.ResetUser(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to reset user", "user_id", userID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, user)
}

// GetFact handles GET /api/v1/facts/{id}
func (h *UserHandler) GetFact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	factID := chi.URLParam(r, "id")

	f, err := h.scheduler.GetFact(ctx, factID)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, f)
}

// ResetFact handles POST /api/v1/facts/{id}/reset
func (h *UserHandler) ResetFact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	factID := chi.URLParam(r, "id")

	f, err := h.scheduler.ResetFact(ctx, factID)
	if err != nil {
		h.logger.Error("Failed to reset fact", "fact_id", factID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, f)
}
