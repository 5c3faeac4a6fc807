// Package similarity compares a candidate against the existing corpus in a
// TF-IDF vector space. It reports similarity; the caller decides what is too close.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const DefaultTopK = 5

type Document struct {
	ID   string
	Text string
}

type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type Report struct {
	MaxSimilarity   float64 `json:"max_similarity"`
	MostSimilarItem *string `json:"most_similar_item"`
	Ranked          []Match `json:"ranked"`
}

// Assess builds the vector space over corpus plus text and returns the cosine
// of text against every corpus member, best topK first.
func Assess(text string, corpus []Document, topK int) Report {
	if topK <= 0 {
		topK = DefaultTopK
	}
	report := Report{Ranked: []Match{}}
	if len(corpus) == 0 {
		return report
	}

	docs := make([]map[string]int, len(corpus)+1)
	for i, doc := range corpus {
		docs[i] = termCounts(doc.Text)
	}
	docs[len(corpus)] = termCounts(text)

	idf := inverseDocumentFrequency(docs)
	vectors := make([]map[string]float64, len(docs))
	for i, counts := range docs {
		vectors[i] = weigh(counts, idf)
	}
	candidate := vectors[len(corpus)]

	matches := make([]Match, 0, len(corpus))
	for i, doc := range corpus {
		matches = append(matches, Match{ID: doc.ID, Score: round6(cosine(candidate, vectors[i]))})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	best := matches[0]
	report.MaxSimilarity = best.Score
	if best.Score > 0 {
		id := best.ID
		report.MostSimilarItem = &id
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	report.Ranked = matches
	return report
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func termCounts(text string) map[string]int {
	counts := map[string]int{}
	for _, tok := range tokenize(text) {
		if _, stop := stopWords[tok]; stop || len(tok) < 2 {
			continue
		}
		counts[tok]++
	}
	return counts
}

// inverseDocumentFrequency uses the smoothed form ln((1+N)/(1+df)) + 1.
func inverseDocumentFrequency(docs []map[string]int) map[string]float64 {
	df := map[string]int{}
	for _, counts := range docs {
		for term := range counts {
			df[term]++
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log((1+n)/(1+float64(d))) + 1
	}
	return idf
}

// weigh uses sublinear term frequency so long documents do not dominate.
func weigh(counts map[string]int, idf map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(counts))
	for term, c := range counts {
		out[term] = (1 + math.Log(float64(c))) * idf[term]
	}
	return out
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, wa := range a {
		dot += wa * b[term]
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Min(1, dot/(na*nb))
}

func norm(v map[string]float64) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "will": {}, "with": {},
}
