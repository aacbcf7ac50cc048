// Package models defines the value types shared by storage and its consumers.
package models

import "time"

// FileMeta describes one post file in the content vault.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Asset describes a stored static asset.
type Asset struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}
