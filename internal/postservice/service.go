// Package postservice coordinates post files, the compile pipeline and the
// index.
package postservice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/starford/panes/internal/apperr"
	"github.com/starford/panes/internal/checksum"
	"github.com/starford/panes/internal/compile"
	"github.com/starford/panes/internal/index"
	"github.com/starford/panes/internal/post"
	"github.com/starford/panes/internal/storage"
)

// PostDetail is the full representation of a post.
type PostDetail struct {
	Slug        string              `json:"slug"`
	Path        string              `json:"path"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Date        time.Time           `json:"date"`
	Draft       bool                `json:"draft"`
	Islands     []string            `json:"islands"`
	Content     string              `json:"content"`
	HTML        string              `json:"html"`
	Checksum    string              `json:"checksum"`
	References  []compile.Reference `json:"references"`
	Backlinks   []index.Backlink    `json:"backlinks"`
}

// PostListItem is a lightweight item in a list response.
type PostListItem struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Draft       bool      `json:"draft"`
}

// CreateInput describes a new post.
type CreateInput struct {
	Slug string
	Meta post.Meta
	Body string
}

// Service coordinates storage, compilation and index operations.
type Service struct {
	store    storage.Provider
	db       index.PostIndex
	pipeline *compile.Pipeline
}

// NewService creates a new post service.
func NewService(store storage.Provider, db index.PostIndex, p *compile.Pipeline) *Service {
	return &Service{store: store, db: db, pipeline: p}
}

// Pipeline returns the compile pipeline backing the service.
func (s *Service) Pipeline() *compile.Pipeline {
	return s.pipeline
}

// GetPost reads the post with slug from storage, compiles it and enriches it
// with backlinks. Drafts are included.
func (s *Service) GetPost(_ context.Context, slug string) (*PostDetail, error) {
	row, err := s.db.GetPost(slug)
	if err != nil {
		return nil, err
	}
	data, err := s.read(row.Path)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(row.Path, data)
}

// Embed returns the compiled post with slug for framing. Drafts are not
// embeddable.
func (s *Service) Embed(_ context.Context, slug string) (*index.Post, error) {
	p, err := s.db.GetPost(slug)
	if err != nil {
		return nil, err
	}
	if p.Draft {
		return nil, apperr.ErrNotFound
	}
	return p, nil
}

// CreatePost writes a new post at <slug>.md and indexes it.
func (s *Service) CreatePost(_ context.Context, in CreateInput) (*PostDetail, error) {
	if !post.ValidSlug(in.Slug) {
		return nil, fmt.Errorf("%w: slug %q", apperr.ErrInvalid, in.Slug)
	}
	if err := in.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	if _, err := s.db.GetPost(in.Slug); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	path := in.Slug + ".md"
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	content, err := post.Render(in.Meta, in.Body)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, content); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content)
}

// UpdatePost replaces the file of the post with slug. A non-empty ifMatch
// must name the checksum of the file on disk (see checksum.Matches).
func (s *Service) UpdatePost(_ context.Context, slug string, content []byte, ifMatch string) (*PostDetail, error) {
	row, err := s.db.GetPost(slug)
	if err != nil {
		return nil, err
	}
	existing, err := s.read(row.Path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && !checksum.Matches(ifMatch, checksum.Sum(existing)) {
		return nil, apperr.ErrConflict
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if err := s.store.Write(row.Path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(row.Path, content); err != nil {
		return nil, err
	}
	return s.buildDetail(row.Path, content)
}

// DeletePost removes a post from storage and index.
func (s *Service) DeletePost(_ context.Context, slug string) error {
	row, err := s.db.GetPost(slug)
	if err != nil {
		return err
	}
	if err := s.store.Delete(row.Path); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return s.db.DeletePost(row.Path)
}

// RenamePost moves the post with slug to <newSlug>.md in the same
// directory and reindexes it. References to the old slug are left as
// written.
func (s *Service) RenamePost(ctx context.Context, slug, newSlug string) (*PostDetail, error) {
	if !post.ValidSlug(newSlug) {
		return nil, fmt.Errorf("%w: slug %q", apperr.ErrInvalid, newSlug)
	}
	row, err := s.db.GetPost(slug)
	if err != nil {
		return nil, err
	}
	if newSlug == slug {
		return s.GetPost(ctx, slug)
	}
	if _, err := s.db.GetPost(newSlug); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	newPath := filepath.Join(filepath.Dir(row.Path), newSlug+filepath.Ext(row.Path))
	if err := s.store.Move(row.Path, newPath); err != nil {
		return nil, err
	}
	if err := s.db.DeletePost(row.Path); err != nil {
		return nil, err
	}
	data, err := s.read(newPath)
	if err != nil {
		return nil, err
	}
	if err := s.IndexFile(newPath, data); err != nil {
		return nil, err
	}
	return s.buildDetail(newPath, data)
}

// ListPosts returns paginated posts, newest first.
func (s *Service) ListPosts(_ context.Context, limit, offset int, includeDrafts bool) ([]PostListItem, int, error) {
	rows, total, err := s.db.ListPosts(limit, offset, includeDrafts)
	if err != nil {
		return nil, 0, err
	}
	items := make([]PostListItem, len(rows))
	for i, r := range rows {
		items[i] = PostListItem{
			Slug:        r.Slug,
			Title:       r.Title,
			Description: r.Description,
			Date:        r.Date,
			Draft:       r.Draft,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// Backlinks returns the posts referencing the post with slug.
func (s *Service) Backlinks(_ context.Context, slug string) ([]index.Backlink, error) {
	if _, err := s.db.GetPost(slug); err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(slug)
	return nonNilSlice(bl), err
}

// References returns the indexed references of the post with slug.
func (s *Service) References(_ context.Context, slug string) ([]index.RefRow, error) {
	if _, err := s.db.GetPost(slug); err != nil {
		return nil, err
	}
	refs, err := s.db.References(slug)
	return nonNilSlice(refs), err
}

// Unresolved returns every reference across the vault that failed to
// resolve.
func (s *Service) Unresolved(_ context.Context) ([]index.RefRow, error) {
	refs, err := s.db.Unresolved()
	return nonNilSlice(refs), err
}

// IndexFile compiles data and upserts it into the index.
// Exported so that sync and watcher callers can reuse it.
func (s *Service) IndexFile(path string, data []byte) error {
	e, err := s.pipeline.Build(path, data)
	if err != nil {
		return err
	}
	return s.db.UpsertPost(e)
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// buildDetail constructs a PostDetail from raw data without re-reading the file.
func (s *Service) buildDetail(path string, data []byte) (*PostDetail, error) {
	res, err := s.pipeline.Compile(path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	bl, err := s.db.Backlinks(res.Slug)
	if err != nil {
		return nil, err
	}
	m := res.Doc.Meta
	return &PostDetail{
		Slug:        res.Slug,
		Path:        path,
		Title:       res.Doc.Title,
		Description: m.Description,
		Date:        m.Date,
		Draft:       m.Draft,
		Islands:     nonNilSlice(m.Islands),
		Content:     string(data),
		HTML:        res.HTML,
		Checksum:    res.Checksum,
		References:  nonNilSlice(res.References),
		Backlinks:   nonNilSlice(bl),
	}, nil
}

// validateContent checks that content parses and carries valid frontmatter.
func validateContent(content []byte) error {
	doc, err := post.Parse(content)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	if !doc.HasFrontmatter {
		return fmt.Errorf("%w: frontmatter is required", apperr.ErrInvalid)
	}
	if err := doc.Meta.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	return nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
