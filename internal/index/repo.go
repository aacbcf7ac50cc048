package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/panes/internal/apperr"
)

// PostRow represents a row in the posts table.
type PostRow struct {
	Slug        string    `json:"slug"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Draft       bool      `json:"draft"`
	Checksum    string    `json:"checksum"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Post is a full indexed post including its compiled HTML.
type Post struct {
	PostRow
	Body string `json:"body"`
	HTML string `json:"html"`
}

// RefRow represents one reference found in a post and how it resolved.
type RefRow struct {
	Source     string `json:"source"`
	Slug       string `json:"slug"`
	Position   int    `json:"position"`
	Trigger    string `json:"trigger"`
	Hint       string `json:"hint"`
	Content    string `json:"content"`
	Resolved   bool   `json:"resolved"`
	TargetKind string `json:"target_kind,omitempty"`
	TargetURL  string `json:"target_url,omitempty"`
	External   bool   `json:"external,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Entry is everything indexed for one post file.
type Entry struct {
	Post PostRow
	Body string
	HTML string
	Refs []RefRow
}

// SearchResult represents one search hit.
type SearchResult struct {
	Slug    string `json:"slug"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Backlink is a post referencing another post.
type Backlink struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// UpsertPost inserts or replaces a post, its FTS entry and its references
// within a transaction.
func (db *DB) UpsertPost(e *Entry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	p := e.Post
	_, err = tx.Exec(`
		INSERT INTO posts (path, slug, title, description, date, draft, checksum, body, html, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			slug        = excluded.slug,
			title       = excluded.title,
			description = excluded.description,
			date        = excluded.date,
			draft       = excluded.draft,
			checksum    = excluded.checksum,
			body        = excluded.body,
			html        = excluded.html,
			updated_at  = excluded.updated_at
	`, p.Path, p.Slug, p.Title, p.Description, p.Date.UTC(), p.Draft, p.Checksum, e.Body, e.HTML, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert post %s: %w", p.Path, err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, p.Path, p.Title, p.Description, e.Body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM refs WHERE source = ?`, p.Path); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}
	if len(e.Refs) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO refs (source, ordinal, label, hint, content, resolved, target_kind, target_url, is_external, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for i, r := range e.Refs {
			if _, err := stmt.Exec(p.Path, i, r.Trigger, r.Hint, r.Content, r.Resolved, r.TargetKind, r.TargetURL, r.External, r.Error); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeletePost removes a post, its FTS entry and its references.
func (db *DB) DeletePost(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM refs WHERE source = ?`, path); err != nil {
		return fmt.Errorf("index: delete refs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM posts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete post: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a post file, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM posts WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

const postColumns = `slug, path, title, description, date, draft, checksum, updated_at`

func scanPostRow(sc interface{ Scan(...any) error }, extra ...any) (PostRow, error) {
	var r PostRow
	dest := append([]any{&r.Slug, &r.Path, &r.Title, &r.Description, &r.Date, &r.Draft, &r.Checksum, &r.UpdatedAt}, extra...)
	err := sc.Scan(dest...)
	return r, err
}

// GetPost returns the post with the given slug.
func (db *DB) GetPost(slug string) (*Post, error) {
	var p Post
	row := db.conn.QueryRow(`SELECT `+postColumns+`, body, html FROM posts WHERE slug = ?`, slug)
	r, err := scanPostRow(row, &p.Body, &p.HTML)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get post: %w", err)
	}
	p.PostRow = r
	return &p, nil
}

// ListPosts returns posts newest first, plus the total count.
func (db *DB) ListPosts(limit, offset int, includeDrafts bool) ([]PostRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	where := `WHERE draft = 0`
	if includeDrafts {
		where = ``
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM posts ` + where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count posts: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+postColumns+` FROM posts `+where+` ORDER BY date DESC, slug LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list posts: %w", err)
	}
	defer rows.Close()

	var out []PostRow
	for rows.Next() {
		r, err := scanPostRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Backlinks returns the posts whose references resolve to the post with slug.
func (db *DB) Backlinks(slug string) ([]Backlink, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT p.slug, p.title
		FROM refs r
		JOIN posts p ON p.path = r.source
		WHERE r.resolved = 1 AND r.target_kind = 'post' AND r.content = ?
		ORDER BY p.slug
	`, slug)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []Backlink
	for rows.Next() {
		var b Backlink
		if err := rows.Scan(&b.Slug, &b.Title); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const refColumns = `r.source, p.slug, r.ordinal, r.label, r.hint, r.content, r.resolved, r.target_kind, r.target_url, r.is_external, r.error`

func queryRefs(db *DB, where string, args ...any) ([]RefRow, error) {
	rows, err := db.conn.Query(`
		SELECT `+refColumns+`
		FROM refs r
		JOIN posts p ON p.path = r.source
		`+where+`
		ORDER BY p.slug, r.ordinal
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: refs: %w", err)
	}
	defer rows.Close()

	var out []RefRow
	for rows.Next() {
		var r RefRow
		if err := rows.Scan(&r.Source, &r.Slug, &r.Position, &r.Trigger, &r.Hint, &r.Content,
			&r.Resolved, &r.TargetKind, &r.TargetURL, &r.External, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// References returns the references of the post with slug in document order.
func (db *DB) References(slug string) ([]RefRow, error) {
	return queryRefs(db, `WHERE p.slug = ?`, slug)
}

// Unresolved returns every reference that failed to resolve.
func (db *DB) Unresolved() ([]RefRow, error) {
	return queryRefs(db, `WHERE r.resolved = 0`)
}

// AllChecksums returns path → checksum for every indexed post.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
