// Package quality scores candidate documents against a weighted rubric and
// applies the single mechanical repair pass.
package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
	"github.com/Fzero1925/ai-discovery-sub000/internal/langdetect"
)

const DefaultGate = 85.0

// Result is the outcome of one assessment.
type Result struct {
	Profile     string             `json:"profile"`
	Score       float64            `json:"score"`
	Passed      bool               `json:"passed"`
	Breakdown   map[string]float64 `json:"breakdown"`
	Issues      []string           `json:"issues"`
	Suggestions []string           `json:"suggestions"`
	Metrics     map[string]float64 `json:"metrics"`
}

type Options struct {
	Gate float64
	// ShortFormCategories selects the short-form profile by candidate category.
	ShortFormCategories []string
	// SiteHosts are hostnames whose absolute links count as internal.
	SiteHosts []string
	// Language, when set, adds an issue if the body reads as another language.
	Language string
}

type Assessor struct {
	gate      float64
	shortForm map[string]struct{}
	siteHosts map[string]struct{}
	language  string
	md        goldmark.Markdown
}

func NewAssessor(opts Options) *Assessor {
	gate := opts.Gate
	if gate <= 0 {
		gate = DefaultGate
	}
	a := &Assessor{
		gate:      gate,
		shortForm: map[string]struct{}{},
		siteHosts: map[string]struct{}{},
		language:  strings.ToLower(strings.TrimSpace(opts.Language)),
		md:        goldmark.New(),
	}
	for _, c := range opts.ShortFormCategories {
		a.shortForm[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	for _, h := range opts.SiteHosts {
		a.siteHosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return a
}

func (a *Assessor) Gate() float64 {
	return a.gate
}

// ProfileFor picks the rubric from the candidate's category.
func (a *Assessor) ProfileFor(c content.Candidate) Profile {
	if _, ok := a.shortForm[strings.ToLower(strings.TrimSpace(c.Category))]; ok {
		return ShortForm()
	}
	return LongForm()
}

// Assess scores c against p. It performs no I/O.
func (a *Assessor) Assess(c content.Candidate, p Profile) Result {
	st := analyze(a.md, c.Body, a.siteHosts)
	w := p.Weights
	res := Result{
		Profile:   p.Name,
		Breakdown: make(map[string]float64, 7),
		Metrics:   make(map[string]float64, 12),
	}
	issue := func(format string, args ...any) { res.Issues = append(res.Issues, fmt.Sprintf(format, args...)) }
	suggest := func(s string) { res.Suggestions = append(res.Suggestions, s) }

	// length
	res.Breakdown[DimLength] = w.Length * ratio(st.words, p.TargetWords)
	if st.words < p.MinWords {
		issue("word count %d is below the %s minimum of %d", st.words, p.Name, p.MinWords)
		suggest("expand the body with additional sections and concrete detail")
	} else if st.words < p.TargetWords {
		issue("word count %d is below the %s target of %d", st.words, p.Name, p.TargetWords)
	}

	// structure
	res.Breakdown[DimStructure] = w.Structure * ratio(st.sections, p.MinSections)
	if st.sections < p.MinSections {
		issue("%d section headings, %d expected", st.sections, p.MinSections)
		suggest("split the body into more titled sections")
	}

	// media: two fifths of the points are alt-text coverage.
	coverage := 0.0
	if st.images > 0 {
		coverage = float64(st.imagesWithAlt) / float64(st.images)
	}
	res.Breakdown[DimMedia] = w.Media * (0.6*ratio(st.images, p.MinImages) + 0.4*coverage)
	if st.images < p.MinImages {
		issue("%d images, %d expected", st.images, p.MinImages)
		suggest("add relevant images")
	}
	if st.images > st.imagesWithAlt {
		issue("%d images missing alt text", st.images-st.imagesWithAlt)
		suggest("describe every image with alt text")
	}

	// internal links
	res.Breakdown[DimLinks] = w.Links * ratio(st.internalLinks, p.MinInternalLinks)
	if st.internalLinks < p.MinInternalLinks {
		issue("%d internal links, %d expected", st.internalLinks, p.MinInternalLinks)
		suggest("link to related categories, tags or posts")
	}

	// naturalness
	nat := measureNaturalness(st)
	res.Breakdown[DimNaturalness] = w.Naturalness * nat.score
	if nat.transitionRepeats > 0 {
		issue("%d repeated transition openers", nat.transitionRepeats)
		suggest("vary how sentences open")
	}
	if nat.sentenceCV < 0.2 && len(st.sentenceWords) > 1 {
		issue("sentence lengths are uniform")
		suggest("mix short and long sentences")
	}

	// metadata
	fields := []bool{
		strings.TrimSpace(c.Title) != "",
		strings.TrimSpace(c.Metadata.Description) != "",
		len(c.Metadata.Categories) > 0,
		len(c.Metadata.Tags) > 0,
		len(c.Metadata.Images) > 0,
	}
	present := 0
	for _, ok := range fields {
		if ok {
			present++
		}
	}
	res.Breakdown[DimMetadata] = w.Metadata * float64(present) / float64(len(fields))
	if present < len(fields) {
		issue("%d of %d metadata fields missing", len(fields)-present, len(fields))
		suggest("fill title, description, categories, tags and a cover image")
	}

	// readability
	avg := 0.0
	if len(st.sentenceWords) > 0 {
		total := 0
		for _, n := range st.sentenceWords {
			total += n
		}
		avg = float64(total) / float64(len(st.sentenceWords))
	}
	res.Breakdown[DimReadability] = w.Readability * readabilityShare(avg)
	if avg > 0 && (avg < 12 || avg > 22) {
		issue("average sentence length %.1f words is outside 12-22", avg)
	}

	if a.language != "" {
		sample := strings.Join(st.paragraphs, " ")
		if runes := []rune(sample); len(runes) > 4000 {
			sample = string(runes[:4000])
		}
		detected, ok := langdetect.Matches(sample, a.language)
		if !ok {
			issue("body reads as %q, expected %q", detected, a.language)
		}
		if ok {
			res.Metrics["language_match"] = 1
		} else {
			res.Metrics["language_match"] = 0
		}
	}

	score := 0.0
	for _, key := range dimensions {
		v := round2(res.Breakdown[key])
		res.Breakdown[key] = v
		score += v
	}
	res.Score = round2(math.Min(100, score))
	res.Passed = res.Score >= a.gate && st.words >= p.MinWords

	res.Metrics["words"] = float64(st.words)
	res.Metrics["sections"] = float64(st.sections)
	res.Metrics["images"] = float64(st.images)
	res.Metrics["images_with_alt"] = float64(st.imagesWithAlt)
	res.Metrics["internal_links"] = float64(st.internalLinks)
	res.Metrics["external_links"] = float64(st.externalLinks)
	res.Metrics["sentences"] = float64(len(st.sentenceWords))
	res.Metrics["avg_sentence_length"] = round2(avg)
	res.Metrics["sentence_length_cv"] = round2(nat.sentenceCV)
	res.Metrics["lexical_diversity"] = round2(nat.lexicalDiversity)
	res.Metrics["personal_marker_density"] = round2(nat.personalDensity)
	res.Metrics["transition_repeats"] = float64(nat.transitionRepeats)
	return res
}

// WordCount is the word count the rubric uses.
func (r Result) WordCount() int {
	return int(r.Metrics["words"])
}

// readabilityShare is 1 inside 12-22 words per sentence, tapering linearly to
// 0 at 4 and at 40.
func readabilityShare(avg float64) float64 {
	switch {
	case avg <= 0:
		return 0
	case avg < 12:
		return clamp01((avg - 4) / 8)
	case avg <= 22:
		return 1
	default:
		return clamp01((40 - avg) / 18)
	}
}

func ratio(have, want int) float64 {
	if want <= 0 {
		return 1
	}
	return math.Min(1, float64(have)/float64(want))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
