package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
)

type recordedRequest struct {
	Model             string           `json:"model"`
	ParallelToolCalls *bool            `json:"parallel_tool_calls"`
	Tools             []map[string]any `json:"tools"`
	Messages          []map[string]any `json:"messages"`
}

func newFakeCompletions(t *testing.T, reply string) (*httptest.Server, func() recordedRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		last recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("X-Title"); got != "account-opening" {
			http.Error(w, "missing title header", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req recordedRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		last = req
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	return srv, func() recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

const toolCallReply = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "Collecting KYC data.",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "collect_kyc_info", "arguments": "{\"prospect_data\":{\"clientID\":\"PROSP1234\"}}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestToolModelGenerate(t *testing.T) {
	t.Parallel()

	srv, last := newFakeCompletions(t, toolCallReply)
	base, err := NewToolModel(Config{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Model:    "test-model",
		SiteName: "account-opening",
	})
	if err != nil {
		t.Fatalf("NewToolModel() error = %v", err)
	}

	m, err := base.WithTools([]*schema.ToolInfo{
		{
			Name: "collect_kyc_info",
			Desc: "KYC Information Collection.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"prospect_data": {Type: schema.Object, Required: true, SubParams: map[string]*schema.ParameterInfo{
					"clientID": {Type: schema.String, Required: true},
				}},
			}),
		},
		{Name: "instructions_complete", Desc: "signal that the execution should end."},
	})
	if err != nil {
		t.Fatalf("WithTools() error = %v", err)
	}

	out, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("execute the plan"),
		{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				ID:       "call_0",
				Function: schema.FunctionCall{Name: "fetch_prospect_details_by_id", Arguments: `{"clientID":"PROSP1234"}`},
			}},
		},
		schema.ToolMessage(`{"clientID":"PROSP1234"}`, "call_0"),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if out.Content != "Collecting KYC data." || len(out.ToolCalls) != 1 {
		t.Fatalf("out = %+v", out)
	}
	if out.ToolCalls[0].ID != "call_1" || out.ToolCalls[0].Function.Name != "collect_kyc_info" {
		t.Fatalf("tool call = %+v", out.ToolCalls[0])
	}
	if out.ResponseMeta == nil || out.ResponseMeta.Usage.TotalTokens != 15 {
		t.Fatalf("response meta = %+v", out.ResponseMeta)
	}

	req := last()
	if req.ParallelToolCalls == nil || *req.ParallelToolCalls {
		t.Fatalf("parallel_tool_calls = %v, want false", req.ParallelToolCalls)
	}
	if len(req.Tools) != 2 || len(req.Messages) != 3 {
		t.Fatalf("request tools=%d messages=%d", len(req.Tools), len(req.Messages))
	}
	fn, _ := req.Tools[0]["function"].(map[string]any)
	if params, _ := fn["parameters"].(map[string]any); params["type"] != "object" {
		t.Fatalf("tool parameters = %v", fn["parameters"])
	}
	if req.Messages[2]["role"] != "tool" || req.Messages[2]["tool_call_id"] != "call_0" {
		t.Fatalf("tool message = %v", req.Messages[2])
	}
}

func TestToolModelWithoutToolsOmitsParallelFlag(t *testing.T) {
	t.Parallel()

	srv, last := newFakeCompletions(t, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`)
	m, err := NewToolModel(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "m", SiteName: "account-opening"})
	if err != nil {
		t.Fatalf("NewToolModel() error = %v", err)
	}
	out, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out.Content != "ok" || len(out.ToolCalls) != 0 {
		t.Fatalf("out = %+v", out)
	}
	if req := last(); req.ParallelToolCalls != nil {
		t.Fatalf("parallel_tool_calls sent without tools: %v", *req.ParallelToolCalls)
	}
}

func TestNewToolModelRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewToolModel(Config{Model: "m"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewToolModel(Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error without model")
	}
}
