package quality

import (
	"math"
	"regexp"
	"strings"
)

// transitionPhrases are sentence openers that read as templated when repeated.
var transitionPhrases = []string{
	"additionally",
	"consequently",
	"finally",
	"firstly",
	"furthermore",
	"however",
	"in addition",
	"in conclusion",
	"in summary",
	"moreover",
	"overall",
	"secondly",
	"therefore",
	"ultimately",
}

var personalMarkers = map[string]struct{}{
	"i": {}, "i'm": {}, "i've": {}, "i'd": {}, "i'll": {},
	"me": {}, "my": {}, "mine": {},
	"we": {}, "we're": {}, "we've": {}, "our": {}, "us": {},
}

const mattrWindow = 50

// naturalness is the share in [0,1] of the dimension earned, plus its inputs.
type naturalness struct {
	score             float64
	sentenceCV        float64
	lexicalDiversity  float64
	personalDensity   float64
	transitionRepeats int
}

func measureNaturalness(st stats) naturalness {
	n := naturalness{
		sentenceCV:        coefficientOfVariation(st.sentenceWords),
		lexicalDiversity:  mattr(st.paragraphWords, mattrWindow),
		transitionRepeats: transitionRepeats(st.paragraphs),
	}

	personal := 0
	for _, w := range st.paragraphWords {
		if _, ok := personalMarkers[w]; ok {
			personal++
		}
	}
	if len(st.paragraphWords) > 0 {
		n.personalDensity = float64(personal) * 1000 / float64(len(st.paragraphWords))
	}

	variance := math.Min(1, n.sentenceCV/0.45)
	diversity := clamp01((n.lexicalDiversity - 0.35) / 0.25)
	voice := math.Min(1, n.personalDensity/3)
	repetition := math.Max(0, 1-float64(n.transitionRepeats)/5)

	n.score = 0.30*variance + 0.25*diversity + 0.20*voice + 0.25*repetition
	return n
}

func coefficientOfVariation(xs []int) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean := sum / float64(len(xs))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		d := float64(x) - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(xs))) / mean
}

// mattr is the moving-average type/token ratio; short texts fall back to plain TTR.
func mattr(tokens []string, window int) float64 {
	if len(tokens) == 0 {
		return 0
	}
	if len(tokens) <= window {
		seen := map[string]struct{}{}
		for _, t := range tokens {
			seen[t] = struct{}{}
		}
		return float64(len(seen)) / float64(len(tokens))
	}

	counts := map[string]int{}
	for _, t := range tokens[:window] {
		counts[t]++
	}
	total := float64(len(counts))
	windows := 1
	for i := window; i < len(tokens); i++ {
		out := tokens[i-window]
		counts[out]--
		if counts[out] == 0 {
			delete(counts, out)
		}
		counts[tokens[i]]++
		total += float64(len(counts))
		windows++
	}
	return total / float64(windows) / float64(window)
}

// transitionRepeats counts sentence openers beyond the first use of each phrase.
func transitionRepeats(paragraphs []string) int {
	counts := map[string]int{}
	for _, p := range paragraphs {
		for _, sentence := range splitSentences(p) {
			if phrase := leadingTransition(sentence); phrase != "" {
				counts[phrase]++
			}
		}
	}
	repeats := 0
	for _, c := range counts {
		if c > 1 {
			repeats += c - 1
		}
	}
	return repeats
}

// transitionTail is what must follow a phrase for it to count as an opener:
// at most one punctuation mark, then whitespace and the rest of the sentence.
const transitionTail = `\p{P}?\s+`

var sentenceTransition = regexp.MustCompile(`(?i)^(` + transitionAlternation() + `)` + transitionTail + `\S`)

func transitionAlternation() string {
	quoted := make([]string, len(transitionPhrases))
	for i, p := range transitionPhrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, "|")
}

func leadingTransition(sentence string) string {
	m := sentenceTransition.FindStringSubmatch(strings.TrimSpace(sentence))
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
