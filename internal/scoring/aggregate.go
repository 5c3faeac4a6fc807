package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
)

type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskMinor    RiskLevel = "minor"
	RiskModerate RiskLevel = "moderate"
	RiskMajor    RiskLevel = "major"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskMinimal:  0,
	RiskMinor:    1,
	RiskModerate: 2,
	RiskMajor:    3,
	RiskCritical: 4,
}

// AtLeast reports whether r is as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[r] >= riskRank[other]
}

const (
	TrendRising       = "rising"
	TrendStable       = "stable"
	TrendDeclining    = "declining"
	TrendInsufficient = "insufficient_data"
)

// maxSourceWeight caps how much one source can count, however many signals it sends.
const maxSourceWeight = 2.0

// ControversyAnalysis aggregates the scored signals of one topic.
type ControversyAnalysis struct {
	Topic             string              `json:"topic"`
	OverallScore      float64             `json:"overall_score"`
	Confidence        float64             `json:"confidence"`
	Category          Category            `json:"category"`
	RiskLevel         RiskLevel           `json:"risk_level"`
	RecommendedAction string              `json:"recommended_action"`
	TrendPrediction   string              `json:"trend_prediction"`
	DistinctSources   int                 `json:"distinct_sources"`
	Signals           []ControversySignal `json:"signals"`
}

func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score >= 70:
		return RiskCritical
	case score >= 50:
		return RiskMajor
	case score >= 30:
		return RiskModerate
	case score >= 15:
		return RiskMinor
	default:
		return RiskMinimal
	}
}

func recommendedAction(risk RiskLevel) string {
	switch risk {
	case RiskCritical:
		return "cover immediately with an in-depth piece"
	case RiskMajor:
		return "prioritize for the next release window"
	case RiskModerate:
		return "queue standard coverage"
	case RiskMinor:
		return "monitor for corroborating sources"
	default:
		return "no action"
	}
}

// Aggregate folds signals for one topic into an analysis. Each source's total
// weight is min(2, 1+0.5*(n-1)) shared evenly across its n signals.
func (s *Scorer) Aggregate(signals []ControversySignal) ControversyAnalysis {
	if len(signals) == 0 {
		return ControversyAnalysis{
			Category:          CategoryGeneral,
			RiskLevel:         RiskMinimal,
			RecommendedAction: recommendedAction(RiskMinimal),
			TrendPrediction:   TrendInsufficient,
			Signals:           []ControversySignal{},
		}
	}

	perSource := map[string]int{}
	for _, sig := range signals {
		perSource[sig.Source]++
	}

	var weighted, total float64
	votes := map[Category]int{}
	for _, sig := range signals {
		n := perSource[sig.Source]
		sourceWeight := math.Min(maxSourceWeight, 1+0.5*float64(n-1))
		w := sourceWeight / float64(n)
		weighted += w * sig.Intensity
		total += w
		if sig.Category != "" && sig.Category != CategoryGeneral {
			votes[sig.Category]++
		}
	}

	score := 0.0
	if total > 0 {
		score = clamp(weighted/total, 0, 100)
	}
	score = round(score, 2)
	risk := ClassifyRisk(score)

	return ControversyAnalysis{
		Topic:             signals[0].Keyword,
		OverallScore:      score,
		Confidence:        round(math.Min(1, float64(len(perSource))/float64(s.threshold)), 4),
		Category:          majorityCategory(votes),
		RiskLevel:         risk,
		RecommendedAction: recommendedAction(risk),
		TrendPrediction:   s.trend(signals),
		DistinctSources:   len(perSource),
		Signals:           signals,
	}
}

func majorityCategory(votes map[Category]int) Category {
	best := CategoryGeneral
	bestVotes := 0
	for _, c := range categoryOrder {
		if v := votes[c]; v > bestVotes {
			best, bestVotes = c, v
		}
	}
	return best
}

// trend compares the mean intensity of hot-window signals against older ones.
func (s *Scorer) trend(signals []ControversySignal) string {
	if len(signals) < 2 {
		return TrendInsufficient
	}
	now := s.now()
	var recentSum, olderSum float64
	var recent, older int
	for _, sig := range signals {
		if now.Sub(sig.ObservedAt) <= s.decay.Hot {
			recentSum += sig.Intensity
			recent++
		} else {
			olderSum += sig.Intensity
			older++
		}
	}
	switch {
	case older == 0:
		return TrendRising
	case recent == 0:
		return TrendDeclining
	}
	recentMean := recentSum / float64(recent)
	olderMean := olderSum / float64(older)
	if olderMean <= 0 {
		if recentMean > 0 {
			return TrendRising
		}
		return TrendStable
	}
	ratio := recentMean / olderMean
	switch {
	case ratio > 1.2:
		return TrendRising
	case ratio < 0.8:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Analyze scores raw signals, groups them by keyword and returns analyses
// ordered by score, highest first.
func (s *Scorer) Analyze(signals []signal.Signal) []ControversyAnalysis {
	groups := map[string][]ControversySignal{}
	var order []string
	for _, sig := range signals {
		key := signal.NormalizeKeyword(sig.Keyword)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s.Score(sig))
	}

	out := make([]ControversyAnalysis, 0, len(order))
	for _, key := range order {
		out = append(out, s.Aggregate(groups[key]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OverallScore != out[j].OverallScore {
			return out[i].OverallScore > out[j].OverallScore
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Age is how old the newest signal of the analysis is.
func (a ControversyAnalysis) Age(now time.Time) time.Duration {
	var newest time.Time
	for _, sig := range a.Signals {
		if sig.ObservedAt.After(newest) {
			newest = sig.ObservedAt
		}
	}
	if newest.IsZero() {
		return 0
	}
	return now.Sub(newest)
}
