// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/api/middleware"
	"github.com/nbalepur/fact-repetition/pkg/api/response"
	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/sched"
)

// ScheduleHandler handles scheduling and update endpoints.
type ScheduleHandler struct {
	scheduler *sched.Scheduler
	logger    handlerLogger
}

type handlerLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(scheduler *sched.Scheduler, log handlerLogger) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler: scheduler,
		logger:    log,
	}
}

// --- Request/Response types ---

type factPayload struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
	DeckID   string `json:"deck_id,omitempty"`
}

type scheduleRequest struct {
	UserID string        `json:"user_id"`
	Facts  []factPayload `json:"facts"`
	Date   *time.Time    `json:"date,omitempty"`
}

type scheduleResponse struct {
	DecisionID string                       `json:"decision_id"`
	Order      []string                     `json:"order"`
	Scores     map[string]fact.FactorScores `json:"scores"`
	Rationale  string                       `json:"rationale"`
}

type updateRequest struct {
	DecisionID string           `json:"decision_id"`
	Responses  []sched.Response `json:"responses"`
	Date       *time.Time       `json:"date,omitempty"`
}

type updateResponse struct {
	Records []*fact.Record `json:"records"`
}

// Schedule handles POST /api/v1/schedule
func (h *ScheduleHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.UserID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "user_id is required", getRequestID(ctx))
		return
	}
	facts := make([]*fact.Fact, 0, len(req.Facts))
	for _, p := range req.Facts {
		if p.ID == "" {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "every fact needs an id", getRequestID(ctx))
			return
		}
		facts = append(facts, &fact.Fact{
			ID:       p.ID,
			Text:     p.Text,
			Answer:   p.Answer,
			Category: p.Category,
			DeckID:   p.DeckID,
		})
	}

	decision, err := h.scheduler.Schedule(ctx, req.UserID, facts, requestDate(req.Date))
	if err != nil {
		h.logger.Error("Failed to schedule", "user_id", req.UserID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, scheduleResponse{
		DecisionID: decision.ID,
		Order:      decision.Order,
		Scores:     decision.Scores,
		Rationale:  decision.Rationale,
	})
}

// Update handles POST /api/v1/update
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.DecisionID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "decision_id is required", getRequestID(ctx))
		return
	}

	records, err := h.scheduler.Update(ctx, req.DecisionID, req.Responses, requestDate(req.Date))
	if err != nil {
		h.logger.Error("Failed to apply update", "decision_id", req.DecisionID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, updateResponse{Records: records})
}

// requestDate defaults an omitted study date to now.
func requestDate(d *time.Time) time.Time {
	if d != nil {
		return *d
	}
	return time.Now().UTC()
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		return reqID
	}
	return "unknown"
}
