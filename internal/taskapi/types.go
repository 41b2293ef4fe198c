package taskapi

import (
	_ "embed"
	"encoding/json"
	"strings"
)

//go:embed task.md
var searchTaskTemplate string

//go:embed output_schema.json
var searchTaskSchema []byte

const EventTypeTaskRunStatus = "task_run.status"

type RunRequest struct {
	TaskSpec  TaskSpec          `json:"task_spec"`
	Input     string            `json:"input"`
	Processor string            `json:"processor"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Webhook   *WebhookSpec      `json:"webhook,omitempty"`
}

type TaskSpec struct {
	OutputSchema OutputSchema `json:"output_schema"`
}

type OutputSchema struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema"`
}

type WebhookSpec struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
}

// RunResponse is the reply to a run creation.
type RunResponse struct {
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	IsActive bool   `json:"is_active"`
}

// SearchTaskRequest builds the appearance research run for one person.
// The webhook is delivered to webhookURL with the person's slug and name
// attached as metadata.
func SearchTaskRequest(name, slug, processor, webhookURL string) RunRequest {
	if processor == "" {
		processor = "base"
	}
	req := RunRequest{
		TaskSpec: TaskSpec{
			OutputSchema: OutputSchema{
				Type:       "json",
				JSONSchema: json.RawMessage(searchTaskSchema),
			},
		},
		Input:     RenderTask(name),
		Processor: processor,
		Metadata:  map[string]string{"slug": slug, "name": name},
	}
	if webhookURL != "" {
		req.Webhook = &WebhookSpec{
			URL:        webhookURL,
			EventTypes: []string{EventTypeTaskRunStatus},
		}
	}
	return req
}

// RenderTask substitutes every {{name}} placeholder in the task prompt.
func RenderTask(name string) string {
	return strings.ReplaceAll(searchTaskTemplate, "{{name}}", name)
}
