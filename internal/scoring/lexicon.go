package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Category is a controversy bucket a domain term votes for.
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryReliability Category = "reliability"
	CategoryPrivacy     Category = "privacy"
	CategoryEthical     Category = "ethical"
	CategoryCommercial  Category = "commercial"
	CategoryQuality     Category = "quality"
	CategoryGeneral     Category = "general"
)

// categoryOrder breaks category-vote ties.
var categoryOrder = []Category{
	CategoryReliability,
	CategoryPrivacy,
	CategoryPerformance,
	CategoryEthical,
	CategoryCommercial,
	CategoryQuality,
}

func (c Category) valid() bool {
	for _, known := range categoryOrder {
		if c == known {
			return true
		}
	}
	return false
}

// ModifierKind is the tier of a non-domain lexicon entry.
type ModifierKind string

const (
	ModifierIntensifier ModifierKind = "intensifier"
	ModifierUrgency     ModifierKind = "urgency"
	ModifierTemporal    ModifierKind = "temporal"
)

var modifierKinds = []ModifierKind{ModifierIntensifier, ModifierUrgency, ModifierTemporal}

type Term struct {
	Phrase   string
	Category Category
	Weight   float64
}

type Modifier struct {
	Phrase string
	Kind   ModifierKind
	Factor float64
}

// Lexicon is the validated, typed form of the YAML lexicon file.
type Lexicon struct {
	Window   int
	Terms    []Term
	Modifier []Modifier
	Positive []string
	Negative []string
	Context  []string
	Sources  map[string]float64
}

type lexiconFile struct {
	Window    int                           `yaml:"window"`
	Terms     map[string]map[string]float64 `yaml:"terms"`
	Modifiers map[string]struct {
		Factor float64  `yaml:"factor"`
		Words  []string `yaml:"words"`
	} `yaml:"modifiers"`
	Sentiment struct {
		Positive []string `yaml:"positive"`
		Negative []string `yaml:"negative"`
	} `yaml:"sentiment"`
	Context []string           `yaml:"context"`
	Sources map[string]float64 `yaml:"sources"`
}

// DefaultLexicon returns the embedded lexicon.
func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(defaultLexiconYAML)
}

// LoadLexicon reads path, or the embedded default when path is empty.
func LoadLexicon(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultLexicon()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	lex, err := ParseLexicon(raw)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

// ParseLexicon decodes and validates a YAML lexicon. Unknown categories,
// unknown modifier tiers and non-positive weights are rejected.
func ParseLexicon(raw []byte) (*Lexicon, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}

	lex := &Lexicon{
		Window:  file.Window,
		Sources: make(map[string]float64, len(file.Sources)),
	}
	if lex.Window <= 0 {
		lex.Window = 40
	}

	seen := map[string]string{}
	claim := func(phrase, owner string) error {
		if prev, ok := seen[phrase]; ok {
			return fmt.Errorf("phrase %q listed under both %s and %s", phrase, prev, owner)
		}
		seen[phrase] = owner
		return nil
	}

	for rawCategory, terms := range file.Terms {
		category := Category(strings.ToLower(strings.TrimSpace(rawCategory)))
		if !category.valid() {
			return nil, fmt.Errorf("unknown term category %q", rawCategory)
		}
		for rawPhrase, weight := range terms {
			phrase := normalizePhrase(rawPhrase)
			if phrase == "" {
				return nil, fmt.Errorf("empty term in category %s", category)
			}
			if weight <= 0 || weight > 50 {
				return nil, fmt.Errorf("term %q weight %.2f out of range (0,50]", phrase, weight)
			}
			if err := claim(phrase, "terms."+string(category)); err != nil {
				return nil, err
			}
			lex.Terms = append(lex.Terms, Term{Phrase: phrase, Category: category, Weight: weight})
		}
	}
	if len(lex.Terms) == 0 {
		return nil, fmt.Errorf("lexicon has no domain terms")
	}

	for rawKind, group := range file.Modifiers {
		kind := ModifierKind(strings.ToLower(strings.TrimSpace(rawKind)))
		known := false
		for _, k := range modifierKinds {
			if k == kind {
				known = true
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown modifier tier %q", rawKind)
		}
		if group.Factor < 1 || group.Factor > 3 {
			return nil, fmt.Errorf("modifier tier %s factor %.2f out of range [1,3]", kind, group.Factor)
		}
		for _, word := range group.Words {
			phrase := normalizePhrase(word)
			if phrase == "" {
				continue
			}
			if err := claim(phrase, "modifiers."+string(kind)); err != nil {
				return nil, err
			}
			lex.Modifier = append(lex.Modifier, Modifier{Phrase: phrase, Kind: kind, Factor: group.Factor})
		}
	}

	lex.Positive = normalizeList(file.Sentiment.Positive)
	lex.Negative = normalizeList(file.Sentiment.Negative)
	lex.Context = normalizeList(file.Context)

	for source, weight := range file.Sources {
		if weight < 0 || weight > 2 {
			return nil, fmt.Errorf("source %q amplification %.2f out of range [0,2]", source, weight)
		}
		lex.Sources[strings.ToLower(strings.TrimSpace(source))] = weight
	}

	// Map iteration order is random; keep matching deterministic.
	sort.Slice(lex.Terms, func(i, j int) bool { return lex.Terms[i].Phrase < lex.Terms[j].Phrase })
	sort.Slice(lex.Modifier, func(i, j int) bool { return lex.Modifier[i].Phrase < lex.Modifier[j].Phrase })
	return lex, nil
}

// Amplification is the per-source multiplier, 1 for unknown sources.
func (l *Lexicon) Amplification(source string) float64 {
	if w, ok := l.Sources[strings.ToLower(strings.TrimSpace(source))]; ok {
		return w
	}
	return 1
}

func normalizePhrase(s string) string {
	return strings.Join(tokenize(s), " ")
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if p := normalizePhrase(s); p != "" {
			out = append(out, p)
		}
	}
	return out
}
