// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes post and reference tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/panes/internal/apperr"
	"github.com/starford/panes/internal/assets"
	"github.com/starford/panes/internal/bracket"
	"github.com/starford/panes/internal/post"
	"github.com/starford/panes/internal/postservice"
	"github.com/starford/panes/internal/resolve"
)

const (
	formatURI    = "panes://post-format"
	defaultLimit = 20
	listLimit    = 500
)

// Server wraps the MCP server with post and reference tools.
type Server struct {
	mcp      *server.MCPServer
	posts    *postservice.Service
	resolver *resolve.Resolver
	assets   *assets.Store
}

// New creates a new MCP server with all tools registered.
func New(posts *postservice.Service, resolver *resolve.Resolver, store *assets.Store) *Server {
	s := &Server{posts: posts, resolver: resolver, assets: store}

	s.mcp = server.NewMCPServer(
		"Panes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Full-text search through published post titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the raw Markdown source of a post, frontmatter included."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Post slug (file stem, e.g. beyond-the-boxes)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Create a new post stored as <slug>.md. "+
			"Content MUST follow the canonical post format (YAML frontmatter with title, date, "+
			"description; Markdown body with [[trigger:content]] references). Read the contract "+
			"first via the get_post_contract tool or the "+formatURI+" resource."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Lowercase slug: letters, digits and hyphens")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the post format contract")),
	), s.createPost)

	s.mcp.AddTool(mcp.NewTool("get_post_contract",
		mcp.WithDescription("Returns the canonical post format contract. "+
			"Call this before creating posts to ensure correct structure."),
	), s.getPostContract)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List posts, newest first."),
		mcp.WithBoolean("drafts", mcp.Description("Include drafts")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all posts whose bracket references resolve to the given post."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the post to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("parse_brackets",
		mcp.WithDescription("Split text into plain text and [[trigger:content]] reference segments "+
			"and return the rendered, escaped markup."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to scan")),
	), s.parseBrackets)

	s.mcp.AddTool(mcp.NewTool("resolve_reference",
		mcp.WithDescription("Resolve a reference payload to its destination URL and kind. "+
			"Fails for anything that is not a registry entry, http(s) URL, post slug or artifact id."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Reference content, e.g. dtd-app or https://example.com")),
	), s.resolveReference)

	s.mcp.AddTool(mcp.NewTool("list_unresolved",
		mcp.WithDescription("List references across all posts that failed to resolve."),
	), s.listUnresolved)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Download an image or PDF from an http(s) URL or base64 data URI "+
			"into the assets directory. Returns a markdownImage snippet to paste into a post."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Source http(s) URL or data: URI")),
		mcp.WithString("filename", mcp.Description("Optional target file name")),
	), s.uploadAsset)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Post Format Contract",
			mcp.WithResourceDescription("Canonical Markdown post format that all posts must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultLimit)
	results, err := s.posts.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.posts.GetPost(ctx, slug)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(p.Content), nil
}

func (s *Server) createPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := post.Parse([]byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !doc.HasFrontmatter {
		return mcp.NewToolResultError("content must start with YAML frontmatter; see get_post_contract"), nil
	}

	p, err := s.posts.CreatePost(ctx, postservice.CreateInput{Slug: slug, Meta: doc.Meta, Body: doc.Body})
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("post already exists: %s", slug)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg := fmt.Sprintf("created: %s", p.Path)
	var broken []string
	for _, r := range p.References {
		if !r.Resolved() {
			broken = append(broken, fmt.Sprintf("[[%s:%s]] (%s)", r.Trigger, r.Content, r.Error))
		}
	}
	if len(broken) > 0 {
		msg += "\nunresolved references:\n" + strings.Join(broken, "\n")
	}
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	drafts := req.GetBool("drafts", false)
	items, _, err := s.posts.ListPosts(ctx, listLimit, 0, drafts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		line := it.Slug
		if it.Title != "" {
			line += "\t" + it.Title
		}
		if it.Draft {
			line += "\t(draft)"
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getPostContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.posts.Backlinks(ctx, slug)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	slugs := make([]string, 0, len(bl))
	for _, b := range bl {
		slugs = append(slugs, b.Slug)
	}
	return mcp.NewToolResultText(strings.Join(slugs, "\n")), nil
}

type parseResult struct {
	Segments []bracket.Segment `json:"segments"`
	HTML     string            `json:"html"`
	Display  string            `json:"display"`
}

func (s *Server) parseBrackets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	segs := bracket.Parse(text)
	return jsonResult(parseResult{
		Segments: segs,
		HTML:     bracket.Render(segs),
		Display:  bracket.Display(segs),
	})
}

type resolveResult struct {
	resolve.Target
	DirectURL string `json:"direct_url"`
}

func (s *Server) resolveReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := s.resolver.Resolve(strings.TrimSpace(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resolveResult{Target: target, DirectURL: resolve.DirectURL(target)})
}

func (s *Server) listUnresolved(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refs, err := s.posts.Unresolved(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(refs) == 0 {
		return mcp.NewToolResultText("no unresolved references"), nil
	}
	return jsonResult(refs)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
