package scoring

import (
	"strings"
	"unicode"
)

type token struct {
	text  string
	start int
}

// tokenizeOffsets lowercases s and splits it on anything that is not a letter
// or digit, keeping each token's byte offset for window checks.
func tokenizeOffsets(s string) []token {
	lower := strings.ToLower(s)
	var out []token
	start := -1
	for i, r := range lower {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, token{text: lower[start:i], start: start})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, token{text: lower[start:], start: start})
	}
	return out
}

func tokenize(s string) []string {
	toks := tokenizeOffsets(s)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.text
	}
	return out
}

// findPhrase returns the byte offsets where the space-joined phrase occurs as
// a whole-token sequence.
func findPhrase(tokens []token, phrase string) []int {
	parts := strings.Fields(phrase)
	if len(parts) == 0 || len(parts) > len(tokens) {
		return nil
	}
	var hits []int
	for i := 0; i+len(parts) <= len(tokens); i++ {
		matched := true
		for j, part := range parts {
			if tokens[i+j].text != part {
				matched = false
				break
			}
		}
		if matched {
			hits = append(hits, tokens[i].start)
		}
	}
	return hits
}

func countPhrases(tokens []token, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += len(findPhrase(tokens, p))
	}
	return n
}
