package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/panes/internal/apperr"
	"github.com/starford/panes/internal/assets"
)

type uploadResult struct {
	SavedPath     string `json:"savedPath"`
	Size          int64  `json:"size"`
	MarkdownImage string `json:"markdownImage"`
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := req.GetString("filename", "")

	data, detectedExt, err := assets.Fetch(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if filename == "" {
		filename = assets.FilenameFromURL(rawURL, detectedExt)
	}
	filename = assets.SanitizeFilename(filename)
	if filepath.Ext(filename) == "" && detectedExt != "" {
		filename += detectedExt
	}

	a, err := s.assets.Save(filename, data)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s", assets.URLPrefix+filename)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.Marshal(uploadResult{
		SavedPath:     a.URL,
		Size:          a.Size,
		MarkdownImage: assets.MarkdownImage(a),
	})
	return mcp.NewToolResultText(string(out)), nil
}
