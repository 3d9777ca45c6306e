package domain

import "fmt"

// Signal names one retrieval signal of the hybrid query engine.
type Signal string

const (
	SignalKeyword  Signal = "keyword"
	SignalAnalyzed Signal = "analyzed"
	SignalSemantic Signal = "semantic"
	SignalFuzzy    Signal = "fuzzy"
	SignalWildcard Signal = "wildcard"
)

// Signals lists every retrieval signal in a fixed order.
var Signals = []Signal{SignalKeyword, SignalAnalyzed, SignalSemantic, SignalFuzzy, SignalWildcard}

// BoostConfig is the full set of ranking weights and thresholds for one
// hybrid query. It is a pure value: optimization produces new configurations
// instead of mutating one in place.
type BoostConfig struct {
	KeywordBoost  float64 `yaml:"keyword_boost" json:"keyword_boost"`
	AnalyzedBoost float64 `yaml:"analyzed_boost" json:"analyzed_boost"`
	SemanticBoost float64 `yaml:"semantic_boost" json:"semantic_boost"`
	FuzzyBoost    float64 `yaml:"fuzzy_boost" json:"fuzzy_boost"`
	WildcardBoost float64 `yaml:"wildcard_boost" json:"wildcard_boost"`

	// K is the number of results retrieved per signal and the cap on the
	// fused result list.
	K int `yaml:"k" json:"k"`
	// ScoreFilter drops fused results scoring below it. Fused scores range
	// up to the sum of the enabled weights. 0 disables.
	ScoreFilter float64 `yaml:"score_filter" json:"score_filter"`
	// Fuzziness is the edit-distance level: "auto", "1", or "2".
	Fuzziness string `yaml:"fuzziness" json:"fuzziness"`
	// MaxExpansions bounds fuzzy term expansion.
	MaxExpansions int `yaml:"max_expansions" json:"max_expansions"`
	// FuzzyMatchThreshold is the [0,1] similarity the evaluator accepts as a
	// fuzzy text match when classifying true positives.
	FuzzyMatchThreshold float64 `yaml:"fuzzy_match_threshold" json:"fuzzy_match_threshold"`
}

// DefaultBoostConfig returns the keyword-only baseline configuration.
func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		KeywordBoost:        1.0,
		K:                   60,
		ScoreFilter:         0.0,
		Fuzziness:           "auto",
		MaxExpansions:       50,
		FuzzyMatchThreshold: 0.8,
	}
}

// Weight returns the boost for one signal.
func (c BoostConfig) Weight(s Signal) float64 {
	switch s {
	case SignalKeyword:
		return c.KeywordBoost
	case SignalAnalyzed:
		return c.AnalyzedBoost
	case SignalSemantic:
		return c.SemanticBoost
	case SignalFuzzy:
		return c.FuzzyBoost
	case SignalWildcard:
		return c.WildcardBoost
	}
	return 0
}

// WithWeights returns a copy of c carrying the given signal weights.
func (c BoostConfig) WithWeights(w map[Signal]float64) BoostConfig {
	out := c
	for s, v := range w {
		switch s {
		case SignalKeyword:
			out.KeywordBoost = v
		case SignalAnalyzed:
			out.AnalyzedBoost = v
		case SignalSemantic:
			out.SemanticBoost = v
		case SignalFuzzy:
			out.FuzzyBoost = v
		case SignalWildcard:
			out.WildcardBoost = v
		}
	}
	return out
}

// TotalWeight sums all signal weights.
func (c BoostConfig) TotalWeight() float64 {
	var total float64
	for _, s := range Signals {
		total += c.Weight(s)
	}
	return total
}

// Validate rejects a configuration before any query is issued.
func (c BoostConfig) Validate() error {
	for _, s := range Signals {
		if c.Weight(s) < 0 {
			return fmt.Errorf("%w: %s boost must not be negative, got %g", ErrConfiguration, s, c.Weight(s))
		}
	}
	if c.TotalWeight() == 0 {
		return fmt.Errorf("%w: at least one signal must have a positive boost", ErrConfiguration)
	}
	if c.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrConfiguration, c.K)
	}
	if c.ScoreFilter < 0 || c.ScoreFilter > c.TotalWeight() {
		return fmt.Errorf("%w: score_filter must be in [0,%g], got %g",
			ErrConfiguration, c.TotalWeight(), c.ScoreFilter)
	}
	switch c.Fuzziness {
	case "auto", "1", "2":
	default:
		return fmt.Errorf("%w: fuzziness must be \"auto\", \"1\" or \"2\", got %q", ErrConfiguration, c.Fuzziness)
	}
	if c.MaxExpansions <= 0 {
		return fmt.Errorf("%w: max_expansions must be positive, got %d", ErrConfiguration, c.MaxExpansions)
	}
	if c.FuzzyMatchThreshold < 0 || c.FuzzyMatchThreshold > 1 {
		return fmt.Errorf("%w: fuzzy_match_threshold must be in [0,1], got %g", ErrConfiguration, c.FuzzyMatchThreshold)
	}
	return nil
}
