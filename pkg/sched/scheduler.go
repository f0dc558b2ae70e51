package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/logger"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// ErrFactNotInDecision indicates a response referencing a fact that was not
// part of the decision being consumed.
var ErrFactNotInDecision = errors.New("fact was not part of the decision")

// ErrEmptyBatch indicates an update with no responses.
var ErrEmptyBatch = errors.New("update batch contains no responses")

// Metrics receives scheduler-level observations. Implementations must be
// safe for concurrent use.
type Metrics interface {
	ObserveSchedule(d time.Duration, facts int)
	ObserveUpdate(d time.Duration, responses int)
	PredictorFallback()
}

// EventSink receives domain events for fan-out to subscribers.
type EventSink interface {
	Publish(eventType string, payload any)
}

// Response is one study outcome reported against a decision.
type Response struct {
	FactID                    string `json:"fact_id"`
	Correct                   bool   `json:"correct"`
	Judgement                 string `json:"judgement,omitempty"`
	ElapsedMillisecondsText   int64  `json:"elapsed_milliseconds_text,omitempty"`
	ElapsedMillisecondsAnswer int64  `json:"elapsed_milliseconds_answer,omitempty"`
}

// Scheduler coordinates scoring, state transitions, and the audit log.
// Updates for one user are serialized; distinct users proceed concurrently.
type Scheduler struct {
	store         storage.Storage
	engine        *Engine
	locks         *userLocks
	log           logger.Logger
	metrics       Metrics
	events        EventSink
	defaultPolicy string
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics sets the scheduler's metrics sink.
func WithMetrics(m Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithEvents sets the scheduler's event sink.
func WithEvents(e EventSink) SchedulerOption {
	return func(s *Scheduler) { s.events = e }
}

// WithDefaultPolicy sets the policy assigned to users created on first
// contact. Must name a known policy; unknown names are ignored.
func WithDefaultPolicy(policy string) SchedulerOption {
	return func(s *Scheduler) { s.defaultPolicy = policy }
}

// NewScheduler creates a scheduler on top of the given storage and engine.
func NewScheduler(store storage.Storage, engine *Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:  store,
		engine: engine,
		locks:  newUserLocks(),
		log:    logger.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule ranks the given facts for the user and persists the decision.
// Unknown users and facts are created on first contact; facts arriving
// without embeddings get derived ones so the similarity factors still work.
func (s *Scheduler) Schedule(ctx context.Context, userID string, facts []*fact.Fact, date time.Time) (*fact.Decision, error) {
	start := time.Now()

	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// An empty batch is not an error; it produces no decision record.
	if len(facts) == 0 {
		ranking := s.engine.ScoreAndRank(ctx, user, nil, nil, date)
		return &fact.Decision{
			UserID:    userID,
			Date:      date,
			Order:     ranking.Order,
			Scores:    ranking.Scores,
			Rationale: ranking.Rationale,
		}, nil
	}

	resolved := make([]*fact.Fact, 0, len(facts))
	for _, f := range facts {
		rf, err := s.getOrCreateFact(ctx, f)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, rf)
	}

	recent, err := s.resolveRecent(ctx, user)
	if err != nil {
		return nil, err
	}

	ranking := s.engine.ScoreAndRank(ctx, user, resolved, recent, date)

	decision := &fact.Decision{
		ID:        uuid.NewString(),
		UserID:    userID,
		Date:      date,
		Order:     ranking.Order,
		Scores:    ranking.Scores,
		Rationale: ranking.Rationale,
	}
	if err := s.store.SaveDecision(ctx, decision); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "schedule decided",
		"user_id", userID,
		"decision_id", decision.ID,
		"facts", len(resolved),
		"model", user.Params.Model,
	)
	if s.metrics != nil {
		s.metrics.ObserveSchedule(time.Since(start), len(resolved))
	}
	if s.events != nil {
		s.events.Publish("schedule.decided", decision)
	}
	return decision, nil
}

// Update consumes a decision: it applies the reported responses to the
// user's review state and commits records plus snapshots atomically.
// A decision can be consumed at most once.
func (s *Scheduler) Update(ctx context.Context, decisionID string, responses []Response, date time.Time) ([]*fact.Record, error) {
	start := time.Now()

	if len(responses) == 0 {
		return nil, ErrEmptyBatch
	}

	// The first fetch only resolves the owning user so the lock can be
	// taken. The idempotence check must happen on a fresh copy read under
	// the lock, or two concurrent batches could both see an unconsumed
	// decision and double-count.
	decision, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(decision.UserID)
	defer unlock()

	decision, err = s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if decision.ConsumedAt != nil {
		return nil, fact.ErrDecisionConsumed
	}

	scheduled := make(map[string]bool, len(decision.Order))
	for _, id := range decision.Order {
		scheduled[id] = true
	}
	for _, r := range responses {
		if !scheduled[r.FactID] {
			return nil, fmt.Errorf("%w: %s", ErrFactNotInDecision, r.FactID)
		}
	}

	user, err := s.store.GetUser(ctx, decision.UserID)
	if err != nil {
		return nil, err
	}

	// The snapshot captures the state the decision was scored against, so
	// replaying any record of this batch reproduces the logged ranking.
	preBatch := user.Clone()

	batch := &storage.UpdateBatch{}
	records := make([]*fact.Record, 0, len(responses))

	for _, resp := range responses {
		f, err := s.store.GetFact(ctx, resp.FactID)
		if err != nil {
			return nil, err
		}

		record := &fact.Record{
			ID:                        uuid.NewString(),
			DecisionID:                decision.ID,
			UserID:                    user.ID,
			FactID:                    f.ID,
			DeckID:                    f.DeckID,
			Response:                  resp.Correct,
			Judgement:                 resp.Judgement,
			IsNewFact:                 !hasStudied(preBatch, f.ID),
			ElapsedMillisecondsText:   resp.ElapsedMillisecondsText,
			ElapsedMillisecondsAnswer: resp.ElapsedMillisecondsAnswer,
			Date:                      date,
		}

		batch.UserSnapshots = append(batch.UserSnapshots, &fact.UserSnapshot{
			RecordID: record.ID,
			UserID:   user.ID,
			Date:     date,
			State:    preBatch.Clone(),
		})
		batch.FactSnapshots = append(batch.FactSnapshots, &fact.FactSnapshot{
			RecordID: record.ID,
			FactID:   f.ID,
			Date:     date,
			Results:  append([]bool(nil), f.Results...),
		})

		applyTransitions(user, f.ID, resp.Correct, date)
		user.RecordStudy(f.ID, date, resp.Correct)
		user.Results = append(user.Results, resp.Correct)
		if resp.Correct {
			user.CountCorrectBefore[f.ID]++
		} else {
			user.CountWrongBefore[f.ID]++
		}
		f.Results = append(f.Results, resp.Correct)

		batch.Facts = append(batch.Facts, f)
		batch.Records = append(batch.Records, record)
		records = append(records, record)
	}

	consumed := date
	decision.ConsumedAt = &consumed
	batch.User = user
	batch.Decision = decision

	if err := s.store.ApplyUpdate(ctx, batch); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "update applied",
		"user_id", user.ID,
		"decision_id", decision.ID,
		"responses", len(responses),
	)
	if s.metrics != nil {
		s.metrics.ObserveUpdate(time.Since(start), len(responses))
	}
	if s.events != nil {
		s.events.Publish("update.applied", records)
	}
	return records, nil
}

// SetPolicy switches the user's scheduling policy, creating the user if
// needed. An optional override adjusts individual parameters on top of the
// named policy. Review state is preserved across policy changes.
func (s *Scheduler) SetPolicy(ctx context.Context, userID, policy string, override *fact.ParamsOverride) (*fact.Params, error) {
	params, err := fact.ResolvePolicy(policy)
	if err != nil {
		return nil, err
	}
	params, err = params.Overlay(override)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Params = params
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "policy changed", "user_id", userID, "model", params.Model)
	if s.events != nil {
		s.events.Publish("policy.changed", map[string]string{"user_id": userID, "model": params.Model})
	}
	return &params, nil
}

// ResetUser clears the user's review state while keeping the active policy.
func (s *Scheduler) ResetUser(ctx context.Context, userID string) (*fact.User, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.ResetState()
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "user reset", "user_id", userID)
	if s.events != nil {
		s.events.Publish("user.reset", map[string]string{"user_id": userID})
	}
	return user, nil
}

// ResetFact clears a fact's accumulated study history.
func (s *Scheduler) ResetFact(ctx context.Context, factID string) (*fact.Fact, error) {
	f, err := s.store.GetFact(ctx, factID)
	if err != nil {
		return nil, err
	}
	f.Results = nil
	if err := s.store.SaveFact(ctx, f); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "fact reset", "fact_id", factID)
	return f, nil
}

// GetUser returns the stored user.
func (s *Scheduler) GetUser(ctx context.Context, userID string) (*fact.User, error) {
	return s.store.GetUser(ctx, userID)
}

// GetFact returns the stored fact.
func (s *Scheduler) GetFact(ctx context.Context, factID string) (*fact.Fact, error) {
	return s.store.GetFact(ctx, factID)
}

func (s *Scheduler) getOrCreateUser(ctx context.Context, userID string) (*fact.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	var nf *storage.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}

	user = fact.NewUser(userID)
	if s.defaultPolicy != "" {
		if params, perr := fact.ResolvePolicy(s.defaultPolicy); perr == nil {
			user.Params = params
		}
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user created", "user_id", userID, "model", user.Params.Model)
	return user, nil
}

// getOrCreateFact prefers the stored copy, which carries the accumulated
// study history. New facts are persisted with embeddings filled in.
func (s *Scheduler) getOrCreateFact(ctx context.Context, f *fact.Fact) (*fact.Fact, error) {
	stored, err := s.store.GetFact(ctx, f.ID)
	if err == nil {
		return stored, nil
	}
	var nf *storage.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}

	created := f.Clone()
	if len(created.ContentEmbedding) == 0 {
		created.ContentEmbedding = fact.DeriveEmbedding(created.Text, fact.DefaultEmbeddingDim)
	}
	if len(created.SkillEmbedding) == 0 {
		created.SkillEmbedding = fact.DeriveEmbedding(created.Category+" "+created.Answer, fact.DefaultEmbeddingDim)
	}
	if err := s.store.SaveFact(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Scheduler) resolveRecent(ctx context.Context, user *fact.User) ([]*fact.Fact, error) {
	recent := make([]*fact.Fact, 0, len(user.RecentFacts))
	for _, id := range user.RecentFacts {
		f, err := s.store.GetFact(ctx, id)
		if err != nil {
			var nf *storage.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, err
		}
		recent = append(recent, f)
	}
	return recent, nil
}

// applyTransitions advances both review trackers for one response. They run
// side by side regardless of which policy is active, so switching policies
// never loses state.
func applyTransitions(user *fact.User, factID string, correct bool, date time.Time) {
	ls := ApplyLeitner(user.LeitnerBox[factID], correct, date)
	user.LeitnerBox[factID] = ls.Box
	user.LeitnerDue[factID] = ls.Due

	prior := SM2State{
		EFactor:    user.SM2EFactor[factID],
		Interval:   user.SM2Interval[factID],
		Repetition: user.SM2Repetition[factID],
		Due:        user.SM2Due[factID],
	}
	ns := ApplySM2(prior, correct, date)
	user.SM2EFactor[factID] = ns.EFactor
	user.SM2Interval[factID] = ns.Interval
	user.SM2Repetition[factID] = ns.Repetition
	user.SM2Due[factID] = ns.Due
}

func hasStudied(user *fact.User, factID string) bool {
	_, ok := user.PreviousStudy[factID]
	return ok
}
