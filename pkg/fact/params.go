package fact

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Params is a scheduling policy: a named repetition model plus one weight per
// scoring factor. Exactly one policy is active per user; changing it takes
// effect on the next scheduling call and never rewrites history.
type Params struct {
	// Model is the policy name: "leitner", "sm2", or "targeted{N}".
	Model string `json:"model"`

	// Factor weights.
	Content  float64 `json:"content"`
	Skill    float64 `json:"skill"`
	Recall   float64 `json:"recall"`
	Category float64 `json:"category"`
	Answer   float64 `json:"answer"`
	Leitner  float64 `json:"leitner"`
	SM2      float64 `json:"sm2"`
	CoolDown float64 `json:"cool_down"`

	// RecallTarget is the desired recall probability for the recall factor.
	RecallTarget float64 `json:"recall_target"`

	// RecallCurve is the exponent applied to the recall-target deviation
	// before it is penalized. 1 is linear, 2 penalizes large misses harder.
	RecallCurve float64 `json:"recall_curve"`

	// ContentSign and CategorySign flip the direction of the similarity and
	// continuity factors: +1 rewards similarity, -1 rewards variety.
	ContentSign  float64 `json:"content_sign"`
	CategorySign float64 `json:"category_sign"`

	// Cool-down windows. A fact studied within the window is suppressed.
	CoolDownCorrect time.Duration `json:"cool_down_correct"`
	CoolDownWrong   time.Duration `json:"cool_down_wrong"`
}

// Cool-down defaults match the original deployment: a fact answered
// correctly stays hidden longer than one answered wrong.
const (
	DefaultCoolDownCorrect = 20 * time.Minute
	DefaultCoolDownWrong   = 1 * time.Minute
	DefaultRecallTarget    = 0.85
)

// DefaultParams returns the default policy, targeted{85}.
func DefaultParams() Params {
	p, _ := ResolvePolicy("targeted85")
	return p
}

// ResolvePolicy maps a policy name to its fixed weight vector.
// Recognized names: "leitner", "sm2", "targeted{N}" with N in [1, 100].
func ResolvePolicy(name string) (Params, error) {
	base := Params{
		Model:           name,
		RecallTarget:    DefaultRecallTarget,
		RecallCurve:     1,
		ContentSign:     1,
		CategorySign:    1,
		CoolDownCorrect: DefaultCoolDownCorrect,
		CoolDownWrong:   DefaultCoolDownWrong,
	}

	switch {
	case name == "leitner":
		base.Leitner = 1
		base.CoolDown = 1
		return base, nil
	case name == "sm2":
		base.SM2 = 1
		base.CoolDown = 1
		return base, nil
	case strings.HasPrefix(name, "targeted"):
		n, err := strconv.Atoi(strings.TrimPrefix(name, "targeted"))
		if err != nil || n < 1 || n > 100 {
			return Params{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
		}
		base.RecallTarget = float64(n) / 100
		base.Content = 1
		base.Skill = 1
		base.Recall = 1
		base.Category = 1
		base.Answer = 1
		base.Leitner = 1
		base.CoolDown = 1
		// sm2 stays 0: the targeted model schedules off leitner state only.
		return base, nil
	default:
		return Params{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// ParamsOverride is a partial set of policy parameters. Nil fields keep the
// value of the named policy they overlay.
type ParamsOverride struct {
	Content  *float64 `json:"content,omitempty"`
	Skill    *float64 `json:"skill,omitempty"`
	Recall   *float64 `json:"recall,omitempty"`
	Category *float64 `json:"category,omitempty"`
	Answer   *float64 `json:"answer,omitempty"`
	Leitner  *float64 `json:"leitner,omitempty"`
	SM2      *float64 `json:"sm2,omitempty"`
	CoolDown *float64 `json:"cool_down,omitempty"`

	RecallTarget *float64 `json:"recall_target,omitempty"`
	RecallCurve  *float64 `json:"recall_curve,omitempty"`
	ContentSign  *float64 `json:"content_sign,omitempty"`
	CategorySign *float64 `json:"category_sign,omitempty"`

	// Cool-down windows in seconds.
	CoolDownCorrectSeconds *float64 `json:"cool_down_correct_seconds,omitempty"`
	CoolDownWrongSeconds   *float64 `json:"cool_down_wrong_seconds,omitempty"`
}

// Overlay applies the override on top of p and validates the result. The
// receiver is not modified.
func (p Params) Overlay(o *ParamsOverride) (Params, error) {
	if o == nil {
		return p, nil
	}
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Content, o.Content)
	set(&p.Skill, o.Skill)
	set(&p.Recall, o.Recall)
	set(&p.Category, o.Category)
	set(&p.Answer, o.Answer)
	set(&p.Leitner, o.Leitner)
	set(&p.SM2, o.SM2)
	set(&p.CoolDown, o.CoolDown)
	set(&p.RecallTarget, o.RecallTarget)
	set(&p.RecallCurve, o.RecallCurve)
	set(&p.ContentSign, o.ContentSign)
	set(&p.CategorySign, o.CategorySign)
	if o.CoolDownCorrectSeconds != nil {
		p.CoolDownCorrect = time.Duration(*o.CoolDownCorrectSeconds * float64(time.Second))
	}
	if o.CoolDownWrongSeconds != nil {
		p.CoolDownWrong = time.Duration(*o.CoolDownWrongSeconds * float64(time.Second))
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks that the parameters are internally consistent.
func (p Params) Validate() error {
	for name, w := range map[string]float64{
		"content": p.Content, "skill": p.Skill, "recall": p.Recall,
		"category": p.Category, "answer": p.Answer, "leitner": p.Leitner,
		"sm2": p.SM2, "cool_down": p.CoolDown,
	} {
		if w < 0 {
			return fmt.Errorf("%w: weight %s must be non-negative, got %v", ErrInvalidParams, name, w)
		}
	}
	if p.RecallTarget <= 0 || p.RecallTarget > 1 {
		return fmt.Errorf("%w: recall_target must be in (0, 1], got %v", ErrInvalidParams, p.RecallTarget)
	}
	if p.RecallCurve <= 0 {
		return fmt.Errorf("%w: recall_curve must be positive, got %v", ErrInvalidParams, p.RecallCurve)
	}
	if p.ContentSign != 1 && p.ContentSign != -1 {
		return fmt.Errorf("%w: content_sign must be +1 or -1, got %v", ErrInvalidParams, p.ContentSign)
	}
	if p.CategorySign != 1 && p.CategorySign != -1 {
		return fmt.Errorf("%w: category_sign must be +1 or -1, got %v", ErrInvalidParams, p.CategorySign)
	}
	if p.CoolDownCorrect < 0 || p.CoolDownWrong < 0 {
		return fmt.Errorf("%w: cool-down windows must be non-negative", ErrInvalidParams)
	}
	return nil
}
