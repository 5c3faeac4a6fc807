package content

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

var (
	ErrExists        = errors.New("content file already exists")
	ErrNoFrontMatter = errors.New("content file has no front matter")
)

const delim = "---"

// FrontMatter is the YAML header of every content file.
type FrontMatter struct {
	Title            string             `yaml:"title"`
	Description      string             `yaml:"description,omitempty"`
	Date             string             `yaml:"date"`
	Draft            bool               `yaml:"draft"`
	Categories       []string           `yaml:"categories,omitempty"`
	Tags             []string           `yaml:"tags,omitempty"`
	Image            string             `yaml:"image,omitempty"`
	Keyword          string             `yaml:"keyword,omitempty"`
	Ref              string             `yaml:"ref,omitempty"`
	QualityScore     float64            `yaml:"quality_score,omitempty"`
	QualityBreakdown map[string]float64 `yaml:"quality_breakdown,omitempty"`
	WordCount        int                `yaml:"word_count,omitempty"`
	PublishedAt      string             `yaml:"published_at,omitempty"`
}

type Document struct {
	Path string
	Meta FrontMatter
	Body string
}

// Draft is everything needed to persist an admitted candidate.
type Draft struct {
	Ref              string
	Keyword          string
	Candidate        Candidate
	QualityScore     float64
	QualityBreakdown map[string]float64
	WordCount        int
	CreatedAt        time.Time
}

// Entry is one corpus member for similarity checks.
type Entry struct {
	ID    string
	Path  string
	Text  string
	Draft bool
}

type Store struct {
	dir string
	md  goldmark.Markdown
}

func NewStore(dir string) *Store {
	return &Store{
		dir: dir,
		md:  goldmark.New(goldmark.WithExtensions(&frontmatter.Extender{})),
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// Write persists d as an unpublished content file and returns its path.
func (s *Store) Write(d Draft) (string, error) {
	if strings.TrimSpace(d.Ref) == "" {
		return "", fmt.Errorf("draft ref is required")
	}
	slug := Slugify(d.Candidate.Title)
	if slug == "" {
		slug = Slugify(d.Keyword)
	}
	if slug == "" {
		slug = "untitled"
	}
	short := d.Ref
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("%s-%s-%s.md", d.CreatedAt.Format("2006-01-02"), slug, short)
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	image := ""
	if len(d.Candidate.Metadata.Images) > 0 {
		image = d.Candidate.Metadata.Images[0]
	}
	doc := Document{
		Path: path,
		Meta: FrontMatter{
			Title:            d.Candidate.Title,
			Description:      d.Candidate.Metadata.Description,
			Date:             d.CreatedAt.Format(time.RFC3339),
			Draft:            true,
			Categories:       d.Candidate.Metadata.Categories,
			Tags:             d.Candidate.Metadata.Tags,
			Image:            image,
			Keyword:          d.Keyword,
			Ref:              d.Ref,
			QualityScore:     d.QualityScore,
			QualityBreakdown: d.QualityBreakdown,
			WordCount:        d.WordCount,
		},
		Body: d.Candidate.Body,
	}
	if err := s.save(doc); err != nil {
		return "", err
	}
	return path, nil
}

// Read parses a content file's front matter and body.
func (s *Store) Read(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read content %s: %w", path, err)
	}
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))

	ctx := parser.NewContext()
	s.md.Parser().Parse(text.NewReader(raw), parser.WithContext(ctx))

	doc := Document{Path: path}
	data := frontmatter.Get(ctx)
	if data == nil {
		doc.Body = string(raw)
		return doc, ErrNoFrontMatter
	}
	if err := data.Decode(&doc.Meta); err != nil {
		return Document{}, fmt.Errorf("decode front matter %s: %w", path, err)
	}
	doc.Body = stripFrontMatter(raw)
	return doc, nil
}

// MarkPublished flips draft to false and stamps the release time in place.
func (s *Store) MarkPublished(path string, at time.Time) error {
	doc, err := s.Read(path)
	if err != nil {
		return err
	}
	doc.Meta.Draft = false
	doc.Meta.Date = at.Format(time.RFC3339)
	doc.Meta.PublishedAt = at.UTC().Format(time.RFC3339)
	return s.save(doc)
}

// Remove deletes a content file; a missing file is fine.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove content %s: %w", path, err)
	}
	return nil
}

// Corpus loads every markdown document under the store, drafts included.
func (s *Store) Corpus() ([]Entry, error) {
	var paths []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.dir {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk content dir: %w", err)
	}
	sort.Strings(paths)

	out := make([]Entry, 0, len(paths))
	for _, path := range paths {
		doc, err := s.Read(path)
		if err != nil && !errors.Is(err, ErrNoFrontMatter) {
			return nil, err
		}
		id := doc.Meta.Ref
		if id == "" {
			id = filepath.Base(path)
		}
		out = append(out, Entry{
			ID:    id,
			Path:  path,
			Text:  strings.TrimSpace(doc.Meta.Title + "\n\n" + doc.Body),
			Draft: doc.Meta.Draft,
		})
	}
	return out, nil
}

func (s *Store) save(doc Document) error {
	header, err := yaml.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("encode front matter: %w", err)
	}
	var b bytes.Buffer
	b.WriteString(delim + "\n")
	b.Write(header)
	b.WriteString(delim + "\n\n")
	b.WriteString(strings.TrimSpace(doc.Body))
	b.WriteByte('\n')
	return store.WriteFile(doc.Path, b.Bytes())
}

func stripFrontMatter(raw []byte) string {
	rest, ok := bytes.CutPrefix(raw, []byte(delim+"\n"))
	if !ok {
		return string(raw)
	}
	idx := bytes.Index(rest, []byte("\n"+delim+"\n"))
	if idx < 0 {
		if bytes.HasSuffix(rest, []byte("\n"+delim)) {
			return ""
		}
		return string(raw)
	}
	return strings.TrimLeft(string(rest[idx+len(delim)+2:]), "\n")
}
