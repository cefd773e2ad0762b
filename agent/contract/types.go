package contract

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

type PlanRequest struct {
	Record   *prospectx.Record `json:"record"`
	Scenario string            `json:"scenario,omitempty"`
}

// Plan is the validated markdown plan and the functions it references in order.
type Plan struct {
	Text       string   `json:"text"`
	References []string `json:"references,omitempty"`
}

// Dispatch records one tool call resolved by the executor.
type Dispatch struct {
	Turn       int    `json:"turn"`
	ToolCallID string `json:"tool_call_id"`
	Function   string `json:"function"`
	Arguments  string `json:"arguments"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (d Dispatch) Failed() bool {
	return d.Error != ""
}

type ExecutionResult struct {
	Messages   []*schema.Message `json:"messages"`
	Turns      int               `json:"turns"`
	Dispatches []Dispatch        `json:"dispatches"`
	Completed  bool              `json:"completed"`
}

// Narrative returns the non-empty assistant texts in conversation order.
func (r ExecutionResult) Narrative() []string {
	var out []string
	for _, msg := range r.Messages {
		if msg == nil || msg.Role != schema.Assistant {
			continue
		}
		if text := strings.TrimSpace(msg.Content); text != "" {
			out = append(out, text)
		}
	}
	return out
}

type RunRequest struct {
	ClientID string         `json:"clientID"`
	Snapshot map[string]any `json:"prospect_data,omitempty"`
	Scenario string         `json:"scenario,omitempty"`
}

type RunResult struct {
	RunID     string            `json:"run_id"`
	Record    *prospectx.Record `json:"record"`
	Plan      string            `json:"plan"`
	Narrative []string          `json:"narrative,omitempty"`
	Turns     int               `json:"turns"`
	Completed bool              `json:"completed"`
}

// FailurePayload is the body returned to callers when an operation fails.
func FailurePayload(operation string, err error) map[string]string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return map[string]string{"error": operation + " failed with error: " + msg}
}

// ToolError is the tool message body sent back to the model for a failed call.
func ToolError(err error) string {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(raw)
}
