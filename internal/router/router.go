// Package router picks a cost tier for each query without touching the
// network. All signals are derived from the query text itself.
package router

import (
	"regexp"
	"strings"
	"unicode"
)

// Tier is one of three cost/capability classes.
type Tier string

const (
	TierEconomy  Tier = "economy"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Query intents recognized by the routing table. Distinct from the
// conversational intent taxonomy: these only describe compute demand.
const (
	intentNumericalSolving = "numerical_solving"
	intentConceptual       = "conceptual"
	intentGeneral          = "general"
)

// Decision is the routing outcome for one query.
type Decision struct {
	Tier                 Tier
	Model                string
	CostPerMillionTokens float64
	Complexity           int
	Subject              string
	Intent               string
	Language             string
}

// TierConfig binds a tier to a concrete model and price.
type TierConfig struct {
	Model                string
	CostPerMillionTokens float64
}

// Router is a static cost-tiered decision function.
type Router struct {
	tiers map[Tier]TierConfig
}

// New returns a Router over the given tier table.
func New(economy, standard, premium TierConfig) *Router {
	return &Router{tiers: map[Tier]TierConfig{
		TierEconomy:  economy,
		TierStandard: standard,
		TierPremium:  premium,
	}}
}

var complexity4Triggers = []string{"derive", "derivation", "prove", "proof", "from first principles", "rigorous"}
var complexity3Triggers = []string{"calculate", "compute", "solve", "evaluate", "how much", "how many", "numerical"}
var complexity2Triggers = []string{"explain", "why", "how does", "describe", "what is", "difference between"}

var numericalIntentTriggers = []string{"calculate", "compute", "solve for", "find the value", "evaluate"}

var mathVocab = regexp.MustCompile(`\b(equation|integral|derivative|algebra|calculus|matrix|polynomial|fraction|geometry|trigonometry)\b`)
var scienceVocab = regexp.MustCompile(`\b(force|energy|molecule|atom|velocity|acceleration|photosynthesis|gravity|momentum|circuit|reaction)\b`)

// Route is deterministic: identical inputs yield identical decisions.
func (r *Router) Route(query string) Decision {
	lowered := strings.ToLower(query)

	d := Decision{
		Complexity: complexityOf(lowered),
		Subject:    subjectOf(lowered),
		Intent:     queryIntentOf(lowered),
		Language:   languageOf(query),
	}

	// Precedence is fixed: cheap unless the query demands otherwise. A math
	// query at complexity 1 still lands on the standard tier.
	switch {
	case d.Complexity <= 2 && d.Intent != intentNumericalSolving:
		d.Tier = TierEconomy
	case d.Complexity == 3 || d.Subject == "math" || d.Intent == intentNumericalSolving:
		d.Tier = TierStandard
	default:
		d.Tier = TierPremium
	}

	cfg := r.tiers[d.Tier]
	d.Model = cfg.Model
	d.CostPerMillionTokens = cfg.CostPerMillionTokens
	return d
}

func complexityOf(lowered string) int {
	for _, t := range complexity4Triggers {
		if strings.Contains(lowered, t) {
			return 4
		}
	}
	for _, t := range complexity3Triggers {
		if strings.Contains(lowered, t) {
			return 3
		}
	}
	for _, t := range complexity2Triggers {
		if strings.Contains(lowered, t) {
			return 2
		}
	}
	return 1
}

func queryIntentOf(lowered string) string {
	for _, t := range numericalIntentTriggers {
		if strings.Contains(lowered, t) {
			return intentNumericalSolving
		}
	}
	for _, t := range complexity2Triggers {
		if strings.Contains(lowered, t) {
			return intentConceptual
		}
	}
	return intentGeneral
}

func subjectOf(lowered string) string {
	if mathVocab.MatchString(lowered) {
		return "math"
	}
	if scienceVocab.MatchString(lowered) {
		return "science"
	}
	return "general"
}

func languageOf(query string) string {
	devanagari, total := 0, 0
	for _, r := range query {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Devanagari, r) {
			devanagari++
		}
	}
	if total > 0 && float64(devanagari)/float64(total) > 0.3 {
		return "hi"
	}
	return "en"
}
