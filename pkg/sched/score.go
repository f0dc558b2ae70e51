package sched

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/predict"
)

// Engine scores and ranks candidate facts for one user. It never mutates
// review state; everything it reads comes in through the arguments, which is
// what makes historical snapshots replayable.
type Engine struct {
	predictor predict.Predictor

	// HorizonDays normalizes due-date overdue into [-1, 1].
	HorizonDays float64

	// AnswerSimilarityThreshold is the token-Jaccard similarity above which
	// two answers count as near-duplicates.
	AnswerSimilarityThreshold float64

	// onFallback is invoked when a prediction fails and the neutral score is
	// used instead. Optional.
	onFallback func()
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithFallbackHook registers a callback fired on every predictor fallback.
func WithFallbackHook(fn func()) EngineOption {
	return func(e *Engine) { e.onFallback = fn }
}

// WithHorizonDays overrides the due-priority normalization horizon.
func WithHorizonDays(days float64) EngineOption {
	return func(e *Engine) { e.HorizonDays = days }
}

// WithAnswerSimilarityThreshold overrides the near-duplicate answer cutoff.
func WithAnswerSimilarityThreshold(t float64) EngineOption {
	return func(e *Engine) { e.AnswerSimilarityThreshold = t }
}

// NewEngine creates a scoring engine backed by the given recall predictor.
func NewEngine(p predict.Predictor, opts ...EngineOption) *Engine {
	e := &Engine{
		predictor:                 p,
		HorizonDays:               30,
		AnswerSimilarityThreshold: 0.75,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ranking is the output of one scoring call.
type Ranking struct {
	// Order is the ranked permutation of candidate fact ids.
	Order []string

	// Scores is the per-fact factor breakdown.
	Scores map[string]fact.FactorScores

	// Rationale is a human-readable explanation of the produced order.
	Rationale string
}

// ScoreAndRank ranks the candidate facts for the user at the given date.
// recent holds the user's recently studied facts (resolved by the caller);
// it feeds the similarity and continuity factors. An empty candidate set
// returns an empty order with an explanatory rationale.
func (e *Engine) ScoreAndRank(ctx context.Context, user *fact.User, candidates []*fact.Fact, recent []*fact.Fact, date time.Time) *Ranking {
	if len(candidates) == 0 {
		return &Ranking{
			Order:     []string{},
			Scores:    map[string]fact.FactorScores{},
			Rationale: "no facts received; nothing to schedule",
		}
	}

	params := user.Params
	skillEstimate := e.skillEstimate(user, recent)
	contentCenter := recentContentCenter(recent)
	lastCategory := ""
	if len(recent) > 0 {
		lastCategory = recent[len(recent)-1].Category
	}

	scores := make(map[string]fact.FactorScores, len(candidates))
	for _, f := range candidates {
		fs := fact.FactorScores{
			Leitner:  e.duePriority(user.LeitnerDue, f.ID, date),
			SM2:      e.duePriority(user.SM2Due, f.ID, date),
			Recall:   e.recallScore(ctx, user, f, params),
			Skill:    skillScore(skillEstimate, f),
			Content:  params.ContentSign * fact.CosineSimilarity(contentCenter, f.ContentEmbedding),
			Category: categoryScore(lastCategory, f.Category, params.CategorySign),
			CoolDown: coolDownScore(user, f.ID, date, params),
		}
		scores[f.ID] = fs
	}

	order := e.rank(candidates, scores, params)
	return &Ranking{
		Order:     order,
		Scores:    scores,
		Rationale: rationale(order, scores, params),
	}
}

// rank selects facts greedily by weighted total. The answer factor depends
// on what was already placed ahead, so each step re-evaluates the remaining
// candidates against the selected prefix. Ties break by fact id, giving a
// stable, reproducible order for identical inputs.
func (e *Engine) rank(candidates []*fact.Fact, scores map[string]fact.FactorScores, params fact.Params) []string {
	remaining := make([]*fact.Fact, len(candidates))
	copy(remaining, candidates)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].ID < remaining[j].ID })

	order := make([]string, 0, len(remaining))
	var placed []*fact.Fact

	for len(remaining) > 0 {
		bestIdx := -1
		bestTotal := math.Inf(-1)
		for i, f := range remaining {
			fs := scores[f.ID]
			fs.Answer = e.answerScore(f, placed)
			total := weightedTotal(fs, params)
			// Strictly greater keeps the id-sorted order on ties.
			if total > bestTotal {
				bestTotal = total
				bestIdx = i
			}
		}

		chosen := remaining[bestIdx]
		fs := scores[chosen.ID]
		fs.Answer = e.answerScore(chosen, placed)
		fs.Total = weightedTotal(fs, params)
		scores[chosen.ID] = fs

		order = append(order, chosen.ID)
		placed = append(placed, chosen)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return order
}

func weightedTotal(fs fact.FactorScores, p fact.Params) float64 {
	return p.Content*fs.Content +
		p.Skill*fs.Skill +
		p.Recall*fs.Recall +
		p.Category*fs.Category +
		p.Answer*fs.Answer +
		p.Leitner*fs.Leitner +
		p.SM2*fs.SM2 +
		p.CoolDown*fs.CoolDown
}

// seenDueCap bounds the due-priority of facts with review history. Only a
// never-seen fact reaches the full 1.0, however overdue the backlog gets.
const seenDueCap = 0.95

// duePriority maps a due date to [-1, 1]: never seen is the maximum, overdue
// saturates at seenDueCap, and a far-future due date is suppressive.
func (e *Engine) duePriority(due map[string]time.Time, factID string, date time.Time) float64 {
	d, ok := due[factID]
	if !ok {
		return 1
	}
	overdueDays := date.Sub(d).Hours() / 24
	v := overdueDays / e.HorizonDays
	if v > seenDueCap {
		return seenDueCap
	}
	if v < -1 {
		return -1
	}
	return v
}

// recallScore penalizes deviation of predicted recall from the policy
// target. Prediction failures contribute a neutral zero.
func (e *Engine) recallScore(ctx context.Context, user *fact.User, f *fact.Fact, params fact.Params) float64 {
	features := predict.FeaturesFor(
		user.Results, f.Results,
		user.CountCorrectBefore[f.ID], user.CountWrongBefore[f.ID],
	)
	p, err := e.predictor.Predict(ctx, features)
	if err != nil {
		if e.onFallback != nil {
			e.onFallback()
		}
		return 0
	}
	curve := params.RecallCurve
	if curve <= 0 {
		curve = 1
	}
	return -math.Pow(math.Abs(p-params.RecallTarget), curve)
}

// skillEstimate derives the user's ability frontier: the accuracy-weighted
// mean of the skill embeddings of recently studied facts.
func (e *Engine) skillEstimate(user *fact.User, recent []*fact.Fact) []float32 {
	vectors := make([][]float32, 0, len(recent))
	for _, f := range recent {
		vectors = append(vectors, f.SkillEmbedding)
	}
	mean := fact.MeanVector(vectors)
	if mean == nil {
		return nil
	}
	acc := 0.5
	if len(user.Results) > 0 {
		correct := 0
		for _, r := range user.Results {
			if r {
				correct++
			}
		}
		acc = float64(correct) / float64(len(user.Results))
	}
	// Scale the frontier by recent accuracy: strong users reach further.
	scaled := make([]float32, len(mean))
	for i, v := range mean {
		scaled[i] = v * float32(0.5+acc)
	}
	return scaled
}

func skillScore(estimate []float32, f *fact.Fact) float64 {
	if estimate == nil || len(f.SkillEmbedding) == 0 {
		return 0
	}
	d := fact.EuclideanDistance(estimate, f.SkillEmbedding)
	if math.IsInf(d, 1) {
		return 0
	}
	return 1 / (1 + d)
}

func recentContentCenter(recent []*fact.Fact) []float32 {
	vectors := make([][]float32, 0, len(recent))
	for _, f := range recent {
		vectors = append(vectors, f.ContentEmbedding)
	}
	return fact.MeanVector(vectors)
}

func categoryScore(lastCategory, category string, sign float64) float64 {
	if lastCategory == "" || category == "" {
		return 0
	}
	if lastCategory == category {
		return sign
	}
	return 0
}

// coolDownScore strongly suppresses facts studied within the configured
// window. Correct answers get the longer window.
func coolDownScore(user *fact.User, factID string, date time.Time, params fact.Params) float64 {
	entry, ok := user.PreviousStudy[factID]
	if !ok {
		return 0
	}
	window := params.CoolDownWrong
	if entry.Response {
		window = params.CoolDownCorrect
	}
	if date.Sub(entry.Date) < window {
		return -1
	}
	return 0
}

// answerScore penalizes a candidate whose answer is a near-duplicate of one
// already placed ahead of it, to avoid back-to-back confusable prompts.
func (e *Engine) answerScore(f *fact.Fact, placed []*fact.Fact) float64 {
	if f.Answer == "" {
		return 0
	}
	for _, ahead := range placed {
		if jaccard(fact.Tokens(f.Answer), fact.Tokens(ahead.Answer)) >= e.AnswerSimilarityThreshold {
			return -1
		}
	}
	return 0
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// rationale renders a short explanation of the ranking: the active model and
// the dominant factors of the top fact.
func rationale(order []string, scores map[string]fact.FactorScores, params fact.Params) string {
	if len(order) == 0 {
		return "no facts received; nothing to schedule"
	}
	top := order[0]
	fs := scores[top]

	type weighted struct {
		name  string
		value float64
	}
	contributions := []weighted{
		{"content", params.Content * fs.Content},
		{"skill", params.Skill * fs.Skill},
		{"recall", params.Recall * fs.Recall},
		{"category", params.Category * fs.Category},
		{"answer", params.Answer * fs.Answer},
		{"leitner", params.Leitner * fs.Leitner},
		{"sm2", params.SM2 * fs.SM2},
		{"cool_down", params.CoolDown * fs.CoolDown},
	}
	sort.Slice(contributions, func(i, j int) bool {
		if math.Abs(contributions[i].value) != math.Abs(contributions[j].value) {
			return math.Abs(contributions[i].value) > math.Abs(contributions[j].value)
		}
		return contributions[i].name < contributions[j].name
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "ranked %d facts under %s; top fact %s (total %.3f) driven by",
		len(order), params.Model, top, fs.Total)
	for i, c := range contributions[:3] {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, " %s=%.3f", c.name, c.value)
	}
	return sb.String()
}
