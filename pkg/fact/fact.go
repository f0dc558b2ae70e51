// Package fact defines the domain model for the scheduling engine: facts,
// per-user review state, scheduling policies, and the immutable audit records
// (decisions, records, snapshots) that link them together.
package fact

import (
	"time"
)

// Fact is a single reviewable item. Embeddings are derived from content at
// creation time and never recomputed in place.
type Fact struct {
	// ID is the unique identifier for this fact.
	ID string `json:"id"`

	// Text is the prompt shown to the user.
	Text string `json:"text"`

	// Answer is the expected answer text.
	Answer string `json:"answer"`

	// Category groups related facts for the continuity factor.
	Category string `json:"category"`

	// DeckID is the optional deck this fact belongs to.
	DeckID string `json:"deck_id,omitempty"`

	// ContentEmbedding is the fixed-length topical vector of the fact text.
	ContentEmbedding []float32 `json:"content_embedding,omitempty"`

	// SkillEmbedding is the fixed-length difficulty/skill vector.
	SkillEmbedding []float32 `json:"skill_embedding,omitempty"`

	// Results is the time-ordered response history across all users.
	Results []bool `json:"results"`
}

// StudyEntry records the last time a user saw a fact and how they answered.
type StudyEntry struct {
	Date     time.Time `json:"date"`
	Response bool      `json:"response"`
}

// User holds a user's identity and all mutable per-fact review state.
// Only the update pipeline mutates a User; scoring reads it.
type User struct {
	// ID is the unique identifier for this user.
	ID string `json:"id"`

	// RecentFacts is a bounded, most-recent-last list of fact ids the user
	// studied, used for the similarity and continuity factors.
	RecentFacts []string `json:"recent_facts"`

	// PreviousStudy maps fact id to the most recent study entry, used for
	// cool-down suppression.
	PreviousStudy map[string]StudyEntry `json:"previous_study"`

	// Leitner state, fact id keyed.
	LeitnerBox map[string]int       `json:"leitner_box"`
	LeitnerDue map[string]time.Time `json:"leitner_due"`

	// SM2 state, fact id keyed.
	SM2EFactor    map[string]float64   `json:"sm2_efactor"`
	SM2Interval   map[string]int       `json:"sm2_interval"`
	SM2Repetition map[string]int       `json:"sm2_repetition"`
	SM2Due        map[string]time.Time `json:"sm2_due"`

	// Results is the time-ordered response history across all facts.
	Results []bool `json:"results"`

	// CountCorrectBefore and CountWrongBefore count prior outcomes per fact,
	// consumed by the recall predictor.
	CountCorrectBefore map[string]int `json:"count_correct_before"`
	CountWrongBefore   map[string]int `json:"count_wrong_before"`

	// Params is the user's active scheduling policy.
	Params Params `json:"params"`
}

// MaxRecentFacts bounds User.RecentFacts.
const MaxRecentFacts = 10

// NewUser creates a user with empty review state and the default policy.
func NewUser(id string) *User {
	return &User{
		ID:                 id,
		RecentFacts:        []string{},
		PreviousStudy:      make(map[string]StudyEntry),
		LeitnerBox:         make(map[string]int),
		LeitnerDue:         make(map[string]time.Time),
		SM2EFactor:         make(map[string]float64),
		SM2Interval:        make(map[string]int),
		SM2Repetition:      make(map[string]int),
		SM2Due:             make(map[string]time.Time),
		Results:            []bool{},
		CountCorrectBefore: make(map[string]int),
		CountWrongBefore:   make(map[string]int),
		Params:             DefaultParams(),
	}
}

// RecordStudy appends a fact to the recent list, evicting the oldest entry
// once the bound is reached, and records the study entry for cool-down.
func (u *User) RecordStudy(factID string, date time.Time, response bool) {
	u.RecentFacts = append(u.RecentFacts, factID)
	if len(u.RecentFacts) > MaxRecentFacts {
		u.RecentFacts = u.RecentFacts[len(u.RecentFacts)-MaxRecentFacts:]
	}
	u.PreviousStudy[factID] = StudyEntry{Date: date, Response: response}
}

// ResetState clears all review state while keeping identity and policy.
func (u *User) ResetState() {
	u.RecentFacts = []string{}
	u.PreviousStudy = make(map[string]StudyEntry)
	u.LeitnerBox = make(map[string]int)
	u.LeitnerDue = make(map[string]time.Time)
	u.SM2EFactor = make(map[string]float64)
	u.SM2Interval = make(map[string]int)
	u.SM2Repetition = make(map[string]int)
	u.SM2Due = make(map[string]time.Time)
	u.Results = []bool{}
	u.CountCorrectBefore = make(map[string]int)
	u.CountWrongBefore = make(map[string]int)
}

// Clone returns a deep copy of the user. Snapshots are built from clones so
// later mutations never leak into the audit log.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.RecentFacts = append([]string(nil), u.RecentFacts...)
	clone.PreviousStudy = cloneMap(u.PreviousStudy)
	clone.LeitnerBox = cloneMap(u.LeitnerBox)
	clone.LeitnerDue = cloneMap(u.LeitnerDue)
	clone.SM2EFactor = cloneMap(u.SM2EFactor)
	clone.SM2Interval = cloneMap(u.SM2Interval)
	clone.SM2Repetition = cloneMap(u.SM2Repetition)
	clone.SM2Due = cloneMap(u.SM2Due)
	clone.Results = append([]bool(nil), u.Results...)
	clone.CountCorrectBefore = cloneMap(u.CountCorrectBefore)
	clone.CountWrongBefore = cloneMap(u.CountWrongBefore)
	return &clone
}

// Clone returns a deep copy of the fact.
func (f *Fact) Clone() *Fact {
	if f == nil {
		return nil
	}
	clone := *f
	clone.ContentEmbedding = append([]float32(nil), f.ContentEmbedding...)
	clone.SkillEmbedding = append([]float32(nil), f.SkillEmbedding...)
	clone.Results = append([]bool(nil), f.Results...)
	return &clone
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
