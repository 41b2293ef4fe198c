package taskapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResult = `{
  "run": {"run_id": "r1", "status": "completed", "is_active": false},
  "output": {
    "type": "json",
    "content": {
      "name": "Jane Doe",
      "lifePeriods": "Early years, then AI.",
      "searchStrategy": "Podcasts first.",
      "periods": [{"slug": "early", "name": "Early Years"}],
      "appearances": [
        {"url": "https://x", "title": "T", "type": "Podcast Interview", "date": "2024-05-01", "keywords": ["ai"]}
      ]
    }
  }
}`

func TestGetResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tasks/runs/r1/result", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, validResult)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	res, err := c.GetResult(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.Run.RunID)
	require.Len(t, res.Output.Content.Appearances, 1)
	assert.Equal(t, []string{"ai"}, res.Output.Content.Appearances[0].Keywords)
	assert.Equal(t, "Early Years", res.Output.Content.Periods[0].Name)
}

func TestGetResult_EscapesRunID(t *testing.T) {
	var escaped, rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		escaped = r.URL.EscapedPath()
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, validResult)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	_, err := c.GetResult(context.Background(), "a/b?c")
	require.NoError(t, err)
	assert.Equal(t, "/v1/tasks/runs/a%2Fb%3Fc/result", escaped)
	assert.Empty(t, rawQuery, "run id must not leak into the query string")
}

func TestGetResult_EmptyRunID(t *testing.T) {
	c := NewClientWithBaseURL("k", "http://127.0.0.1:1")
	_, err := c.GetResult(context.Background(), "")
	assert.Error(t, err)
}

func TestGetResult_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "run not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	_, err := c.GetResult(context.Background(), "missing")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Body, "run not found")
}

func TestGetResult_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"run":`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	_, err := c.GetResult(context.Background(), "r1")
	require.Error(t, err)
	assert.False(t, IsStatusError(err), "parse failure must not be a status error: %v", err)
}

func TestGetResult_InvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"output":{"type":"json","content":{"appearances":[{"url":"https://x","title":"T","type":"Talk","date":"soon"}]}}}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	_, err := c.GetResult(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestCreateRun(t *testing.T) {
	var got RunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tasks/runs", r.URL.Path)
		assert.Equal(t, betaHeader, r.Header.Get("parallel-beta"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"run_id":"run_42","status":"queued","is_active":true}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	run, err := c.CreateRun(context.Background(), SearchTaskRequest("Jane Doe", "jane-doe", "", "https://example.test/webhook"))
	require.NoError(t, err)
	assert.Equal(t, "run_42", run.RunID)
	assert.Equal(t, "queued", run.Status)

	assert.Equal(t, "jane-doe", got.Metadata["slug"])
	assert.Equal(t, "Jane Doe", got.Metadata["name"])
	assert.Equal(t, "base", got.Processor)
	require.NotNil(t, got.Webhook)
	assert.Equal(t, "https://example.test/webhook", got.Webhook.URL)
	assert.Equal(t, []string{"task_run.status"}, got.Webhook.EventTypes)
	assert.Equal(t, "json", got.TaskSpec.OutputSchema.Type)
	assert.NotEmpty(t, got.TaskSpec.OutputSchema.JSONSchema)
	assert.Contains(t, got.Input, "Jane Doe")
	assert.NotContains(t, got.Input, "{{name}}")
}

func TestCreateRun_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"run_id":"r","status":"queued"}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	_, err := c.CreateRun(context.Background(), SearchTaskRequest("A", "a", "base", ""))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateRun_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	_, err := c.CreateRun(context.Background(), SearchTaskRequest("A", "a", "base", ""))
	assert.True(t, IsStatusError(err), "error = %v, want status error", err)
	assert.Equal(t, int32(1), calls.Load())
}
