package quality

import (
	"bytes"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// stats is everything the rubric measures about one markdown body.
type stats struct {
	words          int
	sections       int
	images         int
	imagesWithAlt  int
	internalLinks  int
	externalLinks  int
	paragraphs     []string
	sentenceWords  []int
	paragraphWords []string
}

func analyze(md goldmark.Markdown, body string, siteHosts map[string]struct{}) stats {
	source := []byte(body)
	doc := md.Parser().Parse(text.NewReader(source))

	var st stats
	var plain strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level >= 2 {
				st.sections++
			}
		case *ast.Image:
			st.images++
			if strings.TrimSpace(plainText(node, source)) != "" {
				st.imagesWithAlt++
			}
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			st.countLink(string(node.Destination), siteHosts)
		case *ast.AutoLink:
			st.countLink(string(node.URL(source)), siteHosts)
		case *ast.HTMLBlock, *ast.RawHTML:
			st.countHTML(rawHTML(node, source), siteHosts)
		case *ast.Paragraph:
			st.paragraphs = append(st.paragraphs, plainText(node, source))
		case *ast.Text:
			plain.Write(node.Segment.Value(source))
			plain.WriteByte(' ')
		case *ast.String:
			plain.Write(node.Value)
			plain.WriteByte(' ')
		case *ast.CodeSpan:
			plain.WriteString(plainText(node, source))
			plain.WriteByte(' ')
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	st.words = len(words(plain.String()))
	for _, p := range st.paragraphs {
		st.paragraphWords = append(st.paragraphWords, lowerWords(p)...)
		for _, sentence := range splitSentences(p) {
			if n := len(words(sentence)); n > 0 {
				st.sentenceWords = append(st.sentenceWords, n)
			}
		}
	}
	return st
}

func (st *stats) countLink(dest string, siteHosts map[string]struct{}) {
	switch classifyLink(dest, siteHosts) {
	case linkInternal:
		st.internalLinks++
	case linkExternal:
		st.externalLinks++
	}
}

// countHTML picks up <img> and <a> tags that markdown left as raw HTML.
func (st *stats) countHTML(html string, siteHosts map[string]struct{}) {
	if strings.TrimSpace(html) == "" {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		st.images++
		if alt, ok := sel.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			st.imagesWithAlt++
		}
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		st.countLink(href, siteHosts)
	})
}

type linkKind int

const (
	linkIgnored linkKind = iota
	linkInternal
	linkExternal
)

// classifyLink treats site-relative paths and links to a configured site host
// as internal; bare fragments are ignored.
func classifyLink(dest string, siteHosts map[string]struct{}) linkKind {
	dest = strings.TrimSpace(dest)
	if dest == "" || strings.HasPrefix(dest, "#") {
		return linkIgnored
	}
	u, err := url.Parse(dest)
	if err != nil {
		return linkIgnored
	}
	if u.Scheme == "" && u.Host == "" {
		return linkInternal
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return linkIgnored
	}
	if _, ok := siteHosts[strings.ToLower(u.Hostname())]; ok {
		return linkInternal
	}
	return linkExternal
}

func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.Image:
			if c != n {
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func rawHTML(n ast.Node, source []byte) string {
	var b bytes.Buffer
	switch h := n.(type) {
	case *ast.HTMLBlock:
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		if h.HasClosure() {
			b.Write(h.ClosureLine.Value(source))
		}
	case *ast.RawHTML:
		for i := 0; i < h.Segments.Len(); i++ {
			seg := h.Segments.At(i)
			b.Write(seg.Value(source))
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\''
}

// words splits on anything that is not a letter, digit or apostrophe.
func words(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return !isWordRune(r) })
	out := fields[:0]
	for _, f := range fields {
		if strings.Trim(f, "'") != "" {
			out = append(out, f)
		}
	}
	return out
}

func lowerWords(s string) []string {
	ws := words(s)
	for i, w := range ws {
		ws[i] = strings.ToLower(strings.Trim(w, "'"))
	}
	return ws
}

// splitSentences breaks on runs of . ! ? followed by whitespace or the end.
func splitSentences(s string) []string {
	runes := []rune(strings.TrimSpace(s))
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && isTerminator(runes[j+1]) {
			j++
		}
		if j+1 == len(runes) || unicode.IsSpace(runes[j+1]) {
			if sentence := strings.TrimSpace(string(runes[start : j+1])); sentence != "" {
				out = append(out, sentence)
			}
			start = j + 1
		}
		i = j
	}
	if start < len(runes) {
		if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
