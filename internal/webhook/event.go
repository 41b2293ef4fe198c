package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const EventTypeTaskRunStatus = "task_run.status"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Event struct {
	Type      string    `json:"type"`
	Timestamp string    `json:"timestamp"`
	Data      EventData `json:"data"`
}

type EventData struct {
	RunID    string          `json:"run_id"`
	Status   string          `json:"status"`
	IsActive bool            `json:"is_active"`
	Metadata Metadata        `json:"metadata"`
	Error    json.RawMessage `json:"error,omitempty"`
}

type Metadata struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// ParseEvent decodes a verified request body.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return ev, nil
}

// IsStatusEvent reports whether the event is a task run status change.
func (e Event) IsStatusEvent() bool {
	return e.Type == EventTypeTaskRunStatus
}

// IsTerminal reports whether the run has reached completed or failed.
func (e Event) IsTerminal() bool {
	return e.Data.Status == StatusCompleted || e.Data.Status == StatusFailed
}

// ErrorMessage returns the diagnostic carried by the event. The task API
// sends either {"message": "..."} or a bare string.
func (d EventData) ErrorMessage() string {
	raw := bytes.TrimSpace(d.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
