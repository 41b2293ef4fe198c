package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/query"
	"github.com/kalambet/basedpeople/internal/search"
	"github.com/kalambet/basedpeople/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cat, err := catalog.New([]catalog.Person{
		{Name: "Jane Doe", Slug: "jane-doe", Category: "AI Researcher"},
		{Name: "John Roe", Slug: "john-roe", Category: "CEO/Founder"},
	})
	require.NoError(t, err)

	return MCPDeps{Query: query.NewService(store, cat), Version: "test"}, store
}

func seedJane(t *testing.T, store *storage.Store) {
	t.Helper()
	require.NoError(t, store.WriteCompletedAppearances(
		storage.PersonRun{Slug: "jane-doe", Name: "Jane Doe", RunID: "r1"},
		[]storage.Appearance{
			{URL: "https://a", Title: "Scaling laws", Type: "Podcast Interview", Date: "2024-05-01", Keywords: []string{"ai"}},
			{URL: "https://b", Title: "Senate testimony", Type: "Congressional Testimony", Date: "2023-02-10", Keywords: []string{"policy"}},
		},
	))
}

func enableTextIndex(t *testing.T, deps MCPDeps, store *storage.Store) {
	t.Helper()
	idx, err := search.NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	require.NoError(t, idx.Rebuild(store))
	deps.Query.SetIndex(idx)
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "no content in result")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- get_appearances ---

func TestMCPTool_GetAppearances(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedJane(t, store)

	result, err := mcpGetAppearances(deps)(context.Background(), makeCallToolRequest("get_appearances", map[string]interface{}{
		"slug": "jane-doe",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var data query.SlugData
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &data))
	assert.Equal(t, "Jane Doe", data.Result.Name)
	require.Len(t, data.Result.Appearances, 2)
	assert.Equal(t, "2024-05-01", data.Result.Appearances[0].Date, "newest first")
}

func TestMCPTool_GetAppearances_NoData(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpGetAppearances(deps)(context.Background(), makeCallToolRequest("get_appearances", map[string]interface{}{
		"slug": "john-roe",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, "missing data should not be a tool error")
	assert.Contains(t, toolText(t, result), "No appearances")
}

func TestMCPTool_GetAppearances_MissingSlug(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpGetAppearances(deps)(context.Background(), makeCallToolRequest("get_appearances", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "expected tool error for missing slug")
}

// --- search_appearances ---

func TestMCPTool_Search_Filters(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedJane(t, store)

	result, err := mcpSearchAppearances(deps)(context.Background(), makeCallToolRequest("search_appearances", map[string]interface{}{
		"keywords": "Policy",
		"to":       "2023",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var rows []storage.Appearance
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "https://b", rows[0].URL)
}

func TestMCPTool_Search_FreeText(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedJane(t, store)
	enableTextIndex(t, deps, store)

	result, err := mcpSearchAppearances(deps)(context.Background(), makeCallToolRequest("search_appearances", map[string]interface{}{
		"q": "scaling",
	}))
	require.NoError(t, err)

	var rows []storage.Appearance
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Scaling laws", rows[0].Title)
}

func TestMCPTool_Search_FreeTextWithinSlug(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedJane(t, store)
	enableTextIndex(t, deps, store)

	result, err := mcpSearchAppearances(deps)(context.Background(), makeCallToolRequest("search_appearances", map[string]interface{}{
		"q":    "scaling",
		"slug": "john-roe",
	}))
	require.NoError(t, err)
	assert.Equal(t, "[]", toolText(t, result))
}

func TestMCPTool_Search_NoResults(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedJane(t, store)

	result, err := mcpSearchAppearances(deps)(context.Background(), makeCallToolRequest("search_appearances", map[string]interface{}{
		"slug": "john-roe",
	}))
	require.NoError(t, err)
	assert.Equal(t, "[]", toolText(t, result))
}

func TestMCPTool_Search_FreeTextWithoutIndex(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSearchAppearances(deps)(context.Background(), makeCallToolRequest("search_appearances", map[string]interface{}{
		"q": "anything",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "expected tool error when no text index is configured")
}

// --- list_people ---

func TestMCPTool_ListPeople(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	tests := []struct {
		category string
		want     int
	}{
		{"", 2},
		{"ai researcher", 1},
		{"Investor", 0},
	}
	for _, tt := range tests {
		result, err := mcpListPeople(deps)(context.Background(), makeCallToolRequest("list_people", map[string]interface{}{
			"category": tt.category,
		}))
		require.NoError(t, err)

		var people []catalog.Person
		require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &people))
		assert.Len(t, people, tt.want, "category %q", tt.category)
	}
}

// --- resource ---

func TestMCPResource_Catalog(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	contents, err := mcpResourceCatalog(deps)(context.Background(), makeReadResourceRequest("people://catalog"))
	require.NoError(t, err)
	require.Len(t, contents, 1)

	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok, "expected TextResourceContents, got %T", contents[0])
	assert.Equal(t, "application/json", tc.MIMEType)
	assert.Contains(t, tc.Text, `"slug":"jane-doe"`)
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	assert.NotNil(t, NewMCPServer(deps))
}
