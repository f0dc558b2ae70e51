// Package stats aggregates study activity from the audit log into per-user
// statistics and leaderboards.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// ErrUnknownRankType indicates a leaderboard request with an unsupported
// ranking metric.
var ErrUnknownRankType = errors.New("unknown rank type")

// UserStats summarizes one user's study activity over a date range.
type UserStats struct {
	UserID string `json:"user_id"`

	NewFacts      int `json:"new_facts"`
	ReviewedFacts int `json:"reviewed_facts"`
	TotalSeen     int `json:"total_seen"`

	TotalMilliseconds         int64 `json:"total_milliseconds"`
	ElapsedMillisecondsText   int64 `json:"elapsed_milliseconds_text"`
	ElapsedMillisecondsAnswer int64 `json:"elapsed_milliseconds_answer"`

	// NDaysStudied counts distinct calendar days with at least one response.
	NDaysStudied int `json:"n_days_studied"`

	// Rates are percentages rounded to two decimals.
	KnownRate       float64 `json:"known_rate"`
	NewKnownRate    float64 `json:"new_known_rate"`
	ReviewKnownRate float64 `json:"review_known_rate"`
}

// Query bounds a statistics computation.
type Query struct {
	DeckID string
	From   *time.Time
	To     *time.Time
}

// Service computes statistics over the record log.
type Service struct {
	store storage.Storage
}

// NewService creates a statistics service.
func NewService(store storage.Storage) *Service {
	return &Service{store: store}
}

// UserStats aggregates the user's records matching the query.
func (s *Service) UserStats(ctx context.Context, userID string, q Query) (*UserStats, error) {
	// Probe the user first so a missing id surfaces as not-found rather
	// than an empty aggregate.
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	records, err := s.store.ListRecords(ctx, &storage.RecordFilter{
		UserID: userID,
		DeckID: q.DeckID,
		From:   q.From,
		To:     q.To,
	})
	if err != nil {
		return nil, err
	}
	return aggregate(userID, records), nil
}

func aggregate(userID string, records []*fact.Record) *UserStats {
	st := &UserStats{UserID: userID}
	days := make(map[string]struct{})

	var known, newKnown, reviewKnown int
	for _, r := range records {
		st.TotalSeen++
		if r.IsNewFact {
			st.NewFacts++
		} else {
			st.ReviewedFacts++
		}
		st.ElapsedMillisecondsText += r.ElapsedMillisecondsText
		st.ElapsedMillisecondsAnswer += r.ElapsedMillisecondsAnswer
		st.TotalMilliseconds += r.ElapsedMilliseconds()
		days[r.Date.UTC().Format("2006-01-02")] = struct{}{}

		if r.Response {
			known++
			if r.IsNewFact {
				newKnown++
			} else {
				reviewKnown++
			}
		}
	}
	st.NDaysStudied = len(days)
	st.KnownRate = percentage(known, st.TotalSeen)
	st.NewKnownRate = percentage(newKnown, st.NewFacts)
	st.ReviewKnownRate = percentage(reviewKnown, st.ReviewedFacts)
	return st
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(10000*float64(part)/float64(whole)) / 100
}

// Leaderboard ranking metrics.
const (
	RankTotalSeen       = "total_seen"
	RankNewFacts        = "new_facts"
	RankReviewedFacts   = "reviewed_facts"
	RankTotalTime       = "total_milliseconds"
	RankDaysStudied     = "n_days_studied"
	RankKnownRate       = "known_rate"
	RankNewKnownRate    = "new_known_rate"
	RankReviewKnownRate = "review_known_rate"
)

// DefaultMinStudied is the minimum activity required to appear on a
// leaderboard when the request does not say otherwise.
const DefaultMinStudied = 10

// LeaderboardRequest parameterizes a leaderboard computation.
type LeaderboardRequest struct {
	RankType string
	Query    Query

	// MinStudied excludes users with fewer total responses. Zero means the
	// default threshold; a negative value disables the cut entirely.
	MinStudied int

	Skip  int
	Limit int

	// UserID, when set, asks for that user's overall place.
	UserID string
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank   int        `json:"rank"`
	UserID string     `json:"user_id"`
	Value  float64    `json:"value"`
	Stats  *UserStats `json:"stats"`
}

// Leaderboard is a ranked slice of users plus the requesting user's place.
type Leaderboard struct {
	RankType string             `json:"rank_type"`
	Total    int                `json:"total"`
	Entries  []*LeaderboardEntry `json:"entries"`

	// UserPlace is the zero-based overall rank of the requested user, or -1
	// when the user is absent or below the activity threshold.
	UserPlace int `json:"user_place"`
}

// Leaderboard ranks all qualifying users by the requested metric,
// descending, with ties broken by user id.
func (s *Service) Leaderboard(ctx context.Context, req LeaderboardRequest) (*Leaderboard, error) {
	if _, err := metricValue(&UserStats{}, req.RankType); err != nil {
		return nil, err
	}

	minStudied := req.MinStudied
	if minStudied == 0 {
		minStudied = DefaultMinStudied
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var entries []*LeaderboardEntry
	for _, u := range users {
		records, err := s.store.ListRecords(ctx, &storage.RecordFilter{
			UserID: u.ID,
			DeckID: req.Query.DeckID,
			From:   req.Query.From,
			To:     req.Query.To,
		})
		if err != nil {
			return nil, err
		}
		st := aggregate(u.ID, records)
		if minStudied > 0 && st.TotalSeen < minStudied {
			continue
		}
		value, _ := metricValue(st, req.RankType)
		entries = append(entries, &LeaderboardEntry{UserID: u.ID, Value: value, Stats: st})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].UserID < entries[j].UserID
	})

	board := &Leaderboard{
		RankType:  req.RankType,
		Total:     len(entries),
		UserPlace: -1,
	}
	for i, e := range entries {
		e.Rank = i
		if req.UserID != "" && e.UserID == req.UserID {
			board.UserPlace = i
		}
	}

	start := req.Skip
	if start > len(entries) {
		start = len(entries)
	}
	end := len(entries)
	if req.Limit > 0 && start+req.Limit < end {
		end = start + req.Limit
	}
	board.Entries = entries[start:end]
	return board, nil
}

func metricValue(st *UserStats, rankType string) (float64, error) {
	switch rankType {
	case RankTotalSeen:
		return float64(st.TotalSeen), nil
	case RankNewFacts:
		return float64(st.NewFacts), nil
	case RankReviewedFacts:
		return float64(st.ReviewedFacts), nil
	case RankTotalTime:
		return float64(st.TotalMilliseconds), nil
	case RankDaysStudied:
		return float64(st.NDaysStudied), nil
	case RankKnownRate:
		return st.KnownRate, nil
	case RankNewKnownRate:
		return st.NewKnownRate, nil
	case RankReviewKnownRate:
		return st.ReviewKnownRate, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownRankType, rankType)
	}
}
