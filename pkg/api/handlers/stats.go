package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nbalepur/fact-repetition/pkg/api/response"
	"github.com/nbalepur/fact-repetition/pkg/stats"
)

// StatsHandler handles statistics and leaderboard endpoints.
type StatsHandler struct {
	service *stats.Service
	logger  handlerLogger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(service *stats.Service, log handlerLogger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  log,
	}
}

// UserStats handles GET /api/v1/users/{id}/stats
func (h *StatsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	query, err := statsQuery(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	userStats, err := h.service.UserStats(ctx, userID, query)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, userStats)
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := statsQuery(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	req := stats.LeaderboardRequest{
		RankType: r.URL.Query().Get("rank_type"),
		Query:    query,
		UserID:   r.URL.Query().Get("user_id"),
		Limit:    10,
	}
	if req.RankType == "" {
		req.RankType = stats.RankTotalSeen
	}
	if v := r.URL.Query().Get("min_studied"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.MinStudied = n
		}
	}
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			req.Skip = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.Limit = n
		}
	}

	board, err := h.service.Leaderboard(ctx, req)
	if err != nil {
		h.logger.Error("Failed to compute leaderboard", "rank_type", req.RankType, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, board)
}

// statsQuery parses deck and date-range parameters shared by stats endpoints.
// Bounds accept RFC 3339 timestamps (from/to) or plain dates
// (date_start/date_end).
func statsQuery(r *http.Request) (stats.Query, error) {
	q := stats.Query{
		DeckID: r.URL.Query().Get("deck_id"),
	}
	from, err := parseDateParam(r, "from", "date_start")
	if err != nil {
		return stats.Query{}, err
	}
	q.From = from
	to, err := parseDateParam(r, "to", "date_end")
	if err != nil {
		return stats.Query{}, err
	}
	q.To = to
	return q, nil
}

func parseDateParam(r *http.Request, name, alias string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		v = r.URL.Query().Get(alias)
	}
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t, err = time.Parse("2006-01-02", v)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
