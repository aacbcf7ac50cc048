// Package assets stores static files referenced by posts under the vault's
// assets directory.
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/panes/internal/apperr"
	"github.com/starford/panes/internal/models"
	"github.com/starford/panes/internal/storage"
)

const (
	// Dir is the vault-relative directory assets live in.
	Dir = "assets"
	// URLPrefix is the public path assets are served under.
	URLPrefix = "/assets/"
	// MaxSize bounds a single asset.
	MaxSize = 10 << 20
)

var (
	ErrUnsupported = errors.New("assets: unsupported file type")
	ErrTooLarge    = errors.New("assets: file too large")
	ErrBadName     = errors.New("assets: invalid filename")
)

var (
	allowedExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true, ".pdf": true,
	}

	mimeToExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Store saves and locates assets through a storage.Provider.
type Store struct {
	files storage.Provider
}

// NewStore returns a Store writing into files.
func NewStore(files storage.Provider) *Store {
	return &Store{files: files}
}

// Save validates data against the extension of name and writes it. name
// must be a plain file name; existing assets are never overwritten.
func (s *Store) Save(name string, data []byte) (*models.Asset, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), MaxSize)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ErrUnsupported, ext)
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return nil, err
	}

	rel := filepath.Join(Dir, name)
	if _, err := s.files.Read(rel); err == nil {
		return nil, fmt.Errorf("assets: %s: %w", name, apperr.ErrAlreadyExists)
	}
	if err := s.files.Write(rel, data); err != nil {
		return nil, fmt.Errorf("assets: save %s: %w", name, err)
	}
	return &models.Asset{Filename: name, Size: int64(len(data)), URL: URLPrefix + name}, nil
}

// Path returns the absolute path of an existing asset.
func (s *Store) Path(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	abs := filepath.Join(s.files.Root(), Dir, name)
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("assets: %s: %w", name, apperr.ErrNotFound)
	}
	return abs, nil
}

// checkName accepts plain file names only: no separators, no traversal.
func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: filename is required", ErrBadName)
	}
	cleaned := filepath.Clean(name)
	if cleaned != name || cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

// SanitizeFilename strips path separators and unsafe characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = uuid.New().String()
	}
	return name
}

// MarkdownImage returns the Markdown snippet embedding a.
func MarkdownImage(a *models.Asset) string {
	return fmt.Sprintf("![%s](%s)", a.Filename, a.URL)
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("%w: content is not an SVG document", ErrUnsupported)
		}
		return nil
	}

	detected := http.DetectContentType(data)
	got := mimeToExt[strings.Split(detected, ";")[0]]
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if got != ext {
		return fmt.Errorf("%w: content does not match extension %s (detected: %s)", ErrUnsupported, ext, detected)
	}
	return nil
}
