package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
)

// Directory serves pre-generated candidates stored as <keyword-slug>.json.
type Directory struct {
	dir string
}

func NewDirectory(dir string) *Directory {
	return &Directory{dir: dir}
}

func (d *Directory) Name() string {
	return "directory"
}

func (d *Directory) Generate(ctx context.Context, req Request) (content.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return content.Candidate{}, err
	}
	slug := content.Slugify(req.Keyword)
	if slug == "" {
		return content.Candidate{}, fmt.Errorf("%w: keyword %q has no usable slug", ErrNoCandidate, req.Keyword)
	}
	path := filepath.Join(d.dir, slug+".json")
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return content.Candidate{}, fmt.Errorf("%w: %s", ErrNoCandidate, path)
	}
	if err != nil {
		return content.Candidate{}, fmt.Errorf("read candidate %s: %w", path, err)
	}

	var candidate content.Candidate
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return content.Candidate{}, fmt.Errorf("decode candidate %s: %w", path, err)
	}
	return validate(candidate, req)
}
