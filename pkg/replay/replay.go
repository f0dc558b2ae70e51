// Package replay reconstructs past scheduling decisions from their audit
// snapshots and re-runs the scoring engine over them, either to verify the
// logged ranking or to ask what a different policy would have chosen.
package replay

import (
	"context"
	"errors"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/sched"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// Result describes one replayed decision.
type Result struct {
	RecordID   string    `json:"record_id"`
	DecisionID string    `json:"decision_id"`
	UserID     string    `json:"user_id"`
	FactID     string    `json:"fact_id"`
	Date       time.Time `json:"date"`

	// Model is the policy the replay ran under.
	Model string `json:"model"`

	LoggedOrder   []string `json:"logged_order"`
	ReplayedOrder []string `json:"replayed_order"`

	// Matches reports whether the replayed order equals the logged one. For
	// a replay under the original policy this is the audit check; under an
	// intervention policy a mismatch is the interesting outcome.
	Matches bool `json:"matches"`

	// FactRankBefore and FactRankAfter are the zero-based positions of the
	// record's fact in the logged and replayed orders.
	FactRankBefore int `json:"fact_rank_before"`
	FactRankAfter  int `json:"fact_rank_after"`

	Scores    map[string]fact.FactorScores `json:"scores"`
	Rationale string                       `json:"rationale"`
}

// Replayer re-runs scoring over snapshot state.
type Replayer struct {
	store  storage.Storage
	engine *sched.Engine
}

// NewReplayer creates a replayer over the given storage and engine. The
// engine should use a deterministic predictor so replays are reproducible.
func NewReplayer(store storage.Storage, engine *sched.Engine) *Replayer {
	return &Replayer{store: store, engine: engine}
}

// Replay re-runs the decision a record belongs to, scoring against the
// user state captured when the decision was made.
func (r *Replayer) Replay(ctx context.Context, recordID string) (*Result, error) {
	return r.replay(ctx, recordID, nil)
}

// ReplayWithPolicy re-runs the decision under a different policy, answering
// what the engine would have chosen had the user been on that policy.
func (r *Replayer) ReplayWithPolicy(ctx context.Context, recordID, policy string) (*Result, error) {
	params, err := fact.ResolvePolicy(policy)
	if err != nil {
		return nil, err
	}
	return r.replay(ctx, recordID, &params)
}

func (r *Replayer) replay(ctx context.Context, recordID string, override *fact.Params) (*Result, error) {
	record, err := r.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	decision, err := r.store.GetDecision(ctx, record.DecisionID)
	if err != nil {
		return nil, err
	}
	snap, err := r.store.GetUserSnapshot(ctx, recordID)
	if err != nil {
		return nil, err
	}

	user := snap.State.Clone()
	if override != nil {
		user.Params = *override
	}

	candidates, recent, err := r.reconstruct(ctx, decision, user)
	if err != nil {
		return nil, err
	}

	ranking := r.engine.ScoreAndRank(ctx, user, candidates, recent, decision.Date)

	result := &Result{
		RecordID:       recordID,
		DecisionID:     decision.ID,
		UserID:         record.UserID,
		FactID:         record.FactID,
		Date:           decision.Date,
		Model:          user.Params.Model,
		LoggedOrder:    decision.Order,
		ReplayedOrder:  ranking.Order,
		Matches:        sameOrder(decision.Order, ranking.Order),
		FactRankBefore: indexOf(decision.Order, record.FactID),
		FactRankAfter:  indexOf(ranking.Order, record.FactID),
		Scores:         ranking.Scores,
		Rationale:      ranking.Rationale,
	}
	return result, nil
}

// reconstruct rebuilds the candidate and recent fact sets the decision was
// scored over. Fact histories are rolled back to decision time where a
// sibling record's fact snapshot captured them; facts the batch never
// touched keep their current history.
func (r *Replayer) reconstruct(ctx context.Context, decision *fact.Decision, user *fact.User) (candidates, recent []*fact.Fact, err error) {
	siblings, err := r.store.ListRecords(ctx, &storage.RecordFilter{DecisionID: decision.ID})
	if err != nil {
		return nil, nil, err
	}
	historical := make(map[string][]bool, len(siblings))
	for _, sib := range siblings {
		fs, err := r.store.GetFactSnapshot(ctx, sib.ID)
		if err != nil {
			var nf *storage.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, nil, err
		}
		historical[fs.FactID] = fs.Results
	}

	load := func(id string) (*fact.Fact, error) {
		f, err := r.store.GetFact(ctx, id)
		if err != nil {
			return nil, err
		}
		if results, ok := historical[id]; ok {
			f.Results = append([]bool(nil), results...)
		}
		return f, nil
	}

	for _, id := range decision.Order {
		f, err := load(id)
		if err != nil {
			return nil, nil, err
		}
		candidates = append(candidates, f)
	}
	for _, id := range user.RecentFacts {
		f, err := load(id)
		if err != nil {
			var nf *storage.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, nil, err
		}
		recent = append(recent, f)
	}
	return candidates, recent, nil
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
