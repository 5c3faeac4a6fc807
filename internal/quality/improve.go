package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
)

const relatedHeading = "## Related resources"

var (
	emptyMarkdownAlt = regexp.MustCompile(`!\[\s*\]\(`)
	htmlImage        = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	htmlAltAttr      = regexp.MustCompile(`(?i)\balt\s*=\s*("([^"]*)"|'([^']*)')`)
	relatedBlock     = regexp.MustCompile(`(?im)^#{1,6}\s+related resources\s*$`)
	transitionOpen   = regexp.MustCompile(`(?i)(^|[.!?]\s+|\n\s*)(` + transitionAlternation() + `)` + transitionTail + `(\S)`)
)

// Improve is the single repair pass: it fills empty alt text, appends a
// related-resources link block when none exists and drops repeated transition
// openers after their first use. It returns a new candidate; c is untouched.
func Improve(c content.Candidate) content.Candidate {
	out := c.Clone()
	body := fillAltText(out.Body, out.Title)
	body = dropRepeatedTransitions(body)
	if !relatedBlock.MatchString(body) {
		body = strings.TrimRight(body, "\n") + "\n\n" + relatedLinks(out) + "\n"
	}
	out.Body = body
	return out
}

func fillAltText(body, title string) string {
	label := strings.TrimSpace(title)
	if label == "" {
		label = "Article"
	}
	n := 0
	next := func() string {
		n++
		return fmt.Sprintf("%s illustration %d", label, n)
	}

	body = emptyMarkdownAlt.ReplaceAllStringFunc(body, func(string) string {
		return "![" + escapeMarkdownAlt(next()) + "]("
	})
	return htmlImage.ReplaceAllStringFunc(body, func(tag string) string {
		m := htmlAltAttr.FindStringSubmatchIndex(tag)
		if m != nil && strings.TrimSpace(strings.Trim(tag[m[2]:m[3]], `"'`)) != "" {
			return tag
		}
		alt := fmt.Sprintf(`alt="%s"`, strings.ReplaceAll(next(), `"`, "'"))
		if m == nil {
			return tag[:4] + " " + alt + tag[4:]
		}
		return tag[:m[0]] + alt + tag[m[1]:]
	})
}

func escapeMarkdownAlt(s string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}

func dropRepeatedTransitions(body string) string {
	seen := map[string]bool{}
	matches := transitionOpen.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return body
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		phrase := strings.ToLower(body[m[4]:m[5]])
		if !seen[phrase] {
			seen[phrase] = true
			continue
		}
		// keep the sentence boundary, drop the opener and capitalize what follows.
		b.WriteString(body[last:m[3]])
		r, size := utf8.DecodeRuneInString(body[m[6]:])
		b.WriteRune(unicode.ToUpper(r))
		last = m[6] + size
	}
	b.WriteString(body[last:])
	return b.String()
}

// relatedLinks builds a tight list so it adds links and a heading without
// touching paragraph-level metrics.
func relatedLinks(c content.Candidate) string {
	type link struct{ label, href string }
	var links []link
	seen := map[string]struct{}{}
	add := func(label, href string) {
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		links = append(links, link{label, href})
	}

	for _, cat := range c.Metadata.Categories {
		if slug := content.Slugify(cat); slug != "" {
			add(cat, "/categories/"+slug+"/")
		}
	}
	for _, tag := range c.Metadata.Tags {
		if slug := content.Slugify(tag); slug != "" {
			add(tag, "/tags/"+slug+"/")
		}
	}
	if len(links) > 4 {
		links = links[:4]
	}
	if len(links) < 2 {
		add("Latest posts", "/posts/")
	}
	if len(links) < 2 {
		add("Archive", "/archives/")
	}

	var b strings.Builder
	b.WriteString(relatedHeading)
	b.WriteString("\n\n")
	for _, l := range links {
		fmt.Fprintf(&b, "- [%s](%s)\n", escapeMarkdownAlt(l.label), l.href)
	}
	return strings.TrimRight(b.String(), "\n")
}
