package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/query"
	"github.com/kalambet/basedpeople/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Query   *query.Service
	Version string
}

// NewMCPServer creates a read-only MCP server over the appearance data.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"basedpeople",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("basedpeople: public appearances of technology figures (podcasts, talks, hearings)."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_appearances",
			mcp.WithDescription("Return every recorded appearance of one person, newest first."),
			mcp.WithString("slug", mcp.Description("Person slug, e.g. jane-doe"), mcp.Required()),
		),
		mcpGetAppearances(deps),
	)

	s.AddTool(
		mcp.NewTool("search_appearances",
			mcp.WithDescription("Search appearances by free text, person, type, keywords and date range."),
			mcp.WithString("q", mcp.Description("Free text matched against titles, keywords, names and types")),
			mcp.WithString("slug", mcp.Description("Restrict to one person")),
			mcp.WithString("type", mcp.Description("Appearance type, e.g. Podcast Interview")),
			mcp.WithString("keywords", mcp.Description("Comma-separated keywords; all must be present")),
			mcp.WithString("from", mcp.Description("Earliest date, inclusive (YYYY, YYYY-MM or YYYY-MM-DD)")),
			mcp.WithString("to", mcp.Description("Latest date, inclusive (YYYY, YYYY-MM or YYYY-MM-DD)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchAppearances(deps),
	)

	s.AddTool(
		mcp.NewTool("list_people",
			mcp.WithDescription("List tracked people, optionally filtered by category."),
			mcp.WithString("category", mcp.Description("Category to filter by, e.g. AI Researcher")),
		),
		mcpListPeople(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"people://catalog",
			"People Catalog",
			mcp.WithResourceDescription("Every tracked person as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCatalog(deps),
	)

	return s
}

func mcpGetAppearances(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := req.RequireString("slug")
		if err != nil {
			return mcpError("slug is required"), nil
		}

		data, err := deps.Query.SlugData(slug)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpText(fmt.Sprintf("No appearances recorded for %s yet.", slug)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading appearances failed: %v", err)), nil
		}
		return mcpJSON(data)
	}
}

func mcpSearchAppearances(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		var keywords []string
		for _, k := range strings.Split(req.GetString("keywords", ""), ",") {
			if k = strings.TrimSpace(k); k != "" {
				keywords = append(keywords, k)
			}
		}

		rows, err := deps.Query.Search(query.SearchRequest{
			Filter: storage.Filter{
				Slug:     req.GetString("slug", ""),
				Type:     req.GetString("type", ""),
				Keywords: keywords,
				DateFrom: req.GetString("from", ""),
				DateTo:   req.GetString("to", ""),
			},
			Text:  strings.TrimSpace(req.GetString("q", "")),
			Limit: limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(rows) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(rows)
	}
}

func mcpListPeople(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category := strings.TrimSpace(req.GetString("category", ""))

		people := []catalog.Person{}
		for _, p := range deps.Query.Catalog().All() {
			if category == "" || strings.EqualFold(p.Category, category) {
				people = append(people, p)
			}
		}
		return mcpJSON(people)
	}
}

func mcpResourceCatalog(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Query.Catalog().All())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
