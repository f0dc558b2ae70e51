package fact

import (
	"errors"
	"time"
)

// Domain errors shared across the engine.
var (
	// ErrUnknownPolicy is returned for unrecognized policy names.
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrInvalidParams is returned for policy parameter overrides that fail
	// validation.
	ErrInvalidParams = errors.New("invalid policy parameters")

	// ErrDecisionConsumed is returned when an update batch reuses a decision
	// id that has already been applied.
	ErrDecisionConsumed = errors.New("decision already consumed")
)

// FactorScores is the per-factor breakdown of one fact's score.
type FactorScores struct {
	Content  float64 `json:"content"`
	Skill    float64 `json:"skill"`
	Recall   float64 `json:"recall"`
	Category float64 `json:"category"`
	Answer   float64 `json:"answer"`
	Leitner  float64 `json:"leitner"`
	SM2      float64 `json:"sm2"`
	CoolDown float64 `json:"cool_down"`
	Total    float64 `json:"total"`
}

// Decision is the immutable output of one scheduling call: the produced
// ranking, the per-fact factor breakdown, and a human-readable rationale.
// ConsumedAt is set once an update batch referencing this decision commits;
// a second batch with the same id is rejected.
type Decision struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"user_id"`
	Date      time.Time               `json:"date"`
	Order     []string                `json:"order"`
	Scores    map[string]FactorScores `json:"scores"`
	Rationale string                  `json:"rationale"`

	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Record captures one (user, fact, response) event. Immutable once written.
// It links 1:1 to a UserSnapshot, a FactSnapshot, and the Decision that
// produced the shown ordering.
type Record struct {
	ID         string `json:"id"`
	DecisionID string `json:"decision_id"`
	UserID     string `json:"user_id"`
	FactID     string `json:"fact_id"`
	DeckID     string `json:"deck_id,omitempty"`

	Response  bool   `json:"response"`
	Judgement string `json:"judgement,omitempty"`
	IsNewFact bool   `json:"is_new_fact"`

	ElapsedMillisecondsText   int64 `json:"elapsed_milliseconds_text"`
	ElapsedMillisecondsAnswer int64 `json:"elapsed_milliseconds_answer"`

	Date time.Time `json:"date"`
}

// ElapsedMilliseconds is the total time the user spent on this record.
func (r *Record) ElapsedMilliseconds() int64 {
	return r.ElapsedMillisecondsText + r.ElapsedMillisecondsAnswer
}

// UserSnapshot is a point-in-time deep copy of a user's mutable state, taken
// immediately before the update that produced the linked record was applied.
// Replaying the scoring engine against it reproduces the logged decision.
type UserSnapshot struct {
	RecordID string    `json:"record_id"`
	UserID   string    `json:"user_id"`
	Date     time.Time `json:"date"`
	State    *User     `json:"state"`
}

// FactSnapshot is a point-in-time copy of a fact's response history.
type FactSnapshot struct {
	RecordID string    `json:"record_id"`
	FactID   string    `json:"fact_id"`
	Date     time.Time `json:"date"`
	Results  []bool    `json:"results"`
}
