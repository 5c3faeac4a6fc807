// Package content holds candidate documents and the markdown store that
// admitted documents live in until and after release.
package content

import (
	"strings"
	"unicode"
)

// Candidate is a generated document waiting for the quality and similarity gates.
type Candidate struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Metadata Metadata `json:"metadata"`
	Category string   `json:"category"`
}

type Metadata struct {
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Images      []string `json:"images,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Clone returns a deep copy so transforms never share slices with their input.
func (c Candidate) Clone() Candidate {
	out := c
	out.Metadata.Categories = append([]string(nil), c.Metadata.Categories...)
	out.Metadata.Tags = append([]string(nil), c.Metadata.Tags...)
	out.Metadata.Images = append([]string(nil), c.Metadata.Images...)
	return out
}

// Text is what the similarity guard compares.
func (c Candidate) Text() string {
	return strings.TrimSpace(c.Title + "\n\n" + c.Body)
}

// Slugify lowercases s and joins its letter/digit runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	runes := []rune(b.String())
	if len(runes) > 80 {
		return strings.TrimRight(string(runes[:80]), "-")
	}
	return string(runes)
}
