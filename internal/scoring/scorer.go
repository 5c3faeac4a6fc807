// Package scoring rates signals for trend and controversy strength and folds
// the signals of one topic into an analysis.
package scoring

import (
	"math"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
)

// ControversySignal is the scored form of one Signal.
type ControversySignal struct {
	Keyword             string    `json:"keyword"`
	Source              string    `json:"source"`
	Intensity           float64   `json:"intensity"`
	Sentiment           float64   `json:"sentiment"`
	TimeDecay           float64   `json:"time_decay"`
	ContextRelevance    float64   `json:"context_relevance"`
	SocialAmplification float64   `json:"social_amplification"`
	ObservedAt          time.Time `json:"observed_at"`
	Category            Category  `json:"category"`
	MatchedTerms        []string  `json:"matched_terms,omitempty"`
}

// Decay shapes how a signal's weight falls off with age.
type Decay struct {
	Hot        time.Duration
	Warm       time.Duration
	Cold       time.Duration
	WarmWeight float64
	Floor      float64
}

func DefaultDecay() Decay {
	return Decay{
		Hot:        6 * time.Hour,
		Warm:       24 * time.Hour,
		Cold:       72 * time.Hour,
		WarmWeight: 0.8,
		Floor:      0.1,
	}
}

// Weight is 1 inside Hot, WarmWeight until Warm, then decays exponentially to
// reach Floor exactly at Cold and stays there.
func (d Decay) Weight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	switch {
	case age <= d.Hot:
		return 1
	case age <= d.Warm:
		return d.WarmWeight
	case age >= d.Cold:
		return d.Floor
	}
	span := (d.Cold - d.Warm).Hours()
	if span <= 0 || d.WarmWeight <= d.Floor {
		return d.Floor
	}
	k := math.Log(d.WarmWeight/d.Floor) / span
	w := d.WarmWeight * math.Exp(-k*(age-d.Warm).Hours())
	return math.Max(d.Floor, w)
}

type Options struct {
	Decay               Decay
	ValidationThreshold int
	// Now defaults to the global clock.
	Now func() time.Time
}

type Scorer struct {
	lex       *Lexicon
	decay     Decay
	threshold int
	now       func() time.Time
}

func NewScorer(lex *Lexicon, opts Options) *Scorer {
	if opts.Decay == (Decay{}) {
		opts.Decay = DefaultDecay()
	}
	if opts.ValidationThreshold < 1 {
		opts.ValidationThreshold = 2
	}
	if opts.Now == nil {
		opts.Now = globaltime.Now
	}
	return &Scorer{
		lex:       lex,
		decay:     opts.Decay,
		threshold: opts.ValidationThreshold,
		now:       opts.Now,
	}
}

// Score computes the intensity of one signal.
func (s *Scorer) Score(sig signal.Signal) ControversySignal {
	text := sig.RawText
	if text == "" {
		text = sig.Keyword
	}
	tokens := tokenizeOffsets(text)

	sum, byCategory, matched := s.lexicalSum(tokens)
	raw := math.Min(100, 30*math.Log(1+sum/10))

	decay := s.decay.Weight(s.now().Sub(sig.ObservedAt))
	sentiment := s.sentiment(tokens)
	relevance := s.relevance(tokens, sig.Keyword, len(matched))
	amp := s.lex.Amplification(sig.Source)

	intensity := raw * decay * (1 + 0.5*(-sentiment)) * relevance * amp
	intensity = clamp(intensity, 0, 100)

	return ControversySignal{
		Keyword:             sig.Keyword,
		Source:              sig.Source,
		Intensity:           round(intensity, 4),
		Sentiment:           round(sentiment, 4),
		TimeDecay:           round(decay, 4),
		ContextRelevance:    round(relevance, 4),
		SocialAmplification: amp,
		ObservedAt:          sig.ObservedAt,
		Category:            dominantCategory(byCategory),
		MatchedTerms:        matched,
	}
}

// lexicalSum adds the weight of every domain-term occurrence, each scaled once
// per modifier tier that has a phrase within the window.
func (s *Scorer) lexicalSum(tokens []token) (float64, map[Category]float64, []string) {
	modifierHits := make(map[ModifierKind][]int, len(modifierKinds))
	factors := make(map[ModifierKind]float64, len(modifierKinds))
	for _, m := range s.lex.Modifier {
		if hits := findPhrase(tokens, m.Phrase); len(hits) > 0 {
			modifierHits[m.Kind] = append(modifierHits[m.Kind], hits...)
			factors[m.Kind] = m.Factor
		}
	}

	var (
		sum        float64
		byCategory = map[Category]float64{}
		matched    []string
	)
	for _, term := range s.lex.Terms {
		hits := findPhrase(tokens, term.Phrase)
		if len(hits) == 0 {
			continue
		}
		matched = append(matched, term.Phrase)
		for _, pos := range hits {
			w := term.Weight
			for _, kind := range modifierKinds {
				if withinWindow(pos, modifierHits[kind], s.lex.Window) {
					w *= factors[kind]
				}
			}
			sum += w
			byCategory[term.Category] += w
		}
	}
	return sum, byCategory, matched
}

func withinWindow(pos int, others []int, window int) bool {
	for _, o := range others {
		d := pos - o
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

func (s *Scorer) sentiment(tokens []token) float64 {
	pos := countPhrases(tokens, s.lex.Positive)
	neg := countPhrases(tokens, s.lex.Negative)
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// relevance needs two context hits for full weight. Hits are matched domain
// terms, context keywords, and the topic keyword itself appearing in the text.
func (s *Scorer) relevance(tokens []token, keyword string, domainHits int) float64 {
	hits := domainHits
	for _, c := range s.lex.Context {
		if len(findPhrase(tokens, c)) > 0 {
			hits++
		}
	}
	if kw := normalizePhrase(keyword); kw != "" && len(findPhrase(tokens, kw)) > 0 {
		hits++
	}
	if domainHits == 0 {
		return 0
	}
	return math.Min(1, float64(hits)/2)
}

func dominantCategory(byCategory map[Category]float64) Category {
	best := CategoryGeneral
	bestWeight := 0.0
	for _, c := range categoryOrder {
		if w := byCategory[c]; w > bestWeight {
			best, bestWeight = c, w
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
