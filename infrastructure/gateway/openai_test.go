package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/opsquery/domain/tool"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIGateway(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})
}

func chatReply(w http.ResponseWriter, message map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"model":   "test-model",
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": "stop"}},
		"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func TestNewOpenAIGateway_Defaults(t *testing.T) {
	t.Parallel()

	g := NewOpenAIGateway(OpenAIConfig{})
	if g.baseURL != DefaultOpenAIBaseURL {
		t.Errorf("baseURL = %s, want %s", g.baseURL, DefaultOpenAIBaseURL)
	}
	if g.model != DefaultOpenAIModel {
		t.Errorf("model = %s, want %s", g.model, DefaultOpenAIModel)
	}
	if g.Name() != "openai" {
		t.Errorf("Name() = %s", g.Name())
	}
	if g.maxBytes != DefaultMaxResponseBytes {
		t.Errorf("maxBytes = %d, want %d", g.maxBytes, DefaultMaxResponseBytes)
	}
}

func TestOpenAIGateway_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		chatReply(w, map[string]any{"role": "assistant", "content": strings.Repeat("x", 4096)})
	}))
	t.Cleanup(server.Close)

	tests := []struct {
		name     string
		maxBytes int64
		wantErr  bool
	}{
		{name: "over limit", maxBytes: 1024, wantErr: true},
		{name: "under limit", maxBytes: 64 << 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := NewOpenAIGateway(OpenAIConfig{BaseURL: server.URL, MaxResponseBytes: tt.maxBytes})
			resp, err := g.Complete(context.Background(), Request{Purpose: PurposeAct})
			if tt.wantErr {
				if KindOf(err) != ErrMalformed {
					t.Fatalf("Complete() error = %v, want kind %s", err, ErrMalformed)
				}
				return
			}
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if len(resp.Text) != 4096 {
				t.Errorf("len(Text) = %d, want 4096", len(resp.Text))
			}
		})
	}
}

func TestOpenAIGateway_ToolCall(t *testing.T) {
	t.Parallel()

	var got openAIChatRequest
	g := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %s", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		chatReply(w, map[string]any{
			"role":    "assistant",
			"content": nil,
			"tool_calls": []map[string]any{{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      "extract_time_window",
					"arguments": `{"expression":"last hour"}`,
				},
			}},
		})
	})

	decl := tool.Declaration{
		Name:        "extract_time_window",
		Description: "resolve a window",
		Schema:      tool.MustSchema(tool.Field{Name: "expression", Type: tool.TypeString, Required: true}),
	}
	resp, err := g.Complete(context.Background(), Request{
		Purpose: PurposeAct,
		Messages: []Message{
			{Role: RoleSystem, Content: "system"},
			{Role: RoleUser, Content: "debug my pod"},
			{Role: RoleAssistant, ToolCall: &ToolCall{ID: "call_0", Name: "current_time", Arguments: json.RawMessage(`{}`)}},
			{Role: RoleTool, ToolCallID: "call_0", ToolName: "current_time", Content: `{"time":"now"}`},
		},
		Tools: []tool.Declaration{decl},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if resp.Kind != KindToolCall || resp.ToolCall == nil {
		t.Fatalf("Kind = %s, ToolCall = %v", resp.Kind, resp.ToolCall)
	}
	if resp.ToolCall.Name != "extract_time_window" || string(resp.ToolCall.Arguments) != `{"expression":"last hour"}` {
		t.Errorf("ToolCall = %+v", resp.ToolCall)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	if got.Model != "test-model" || len(got.Tools) != 1 || got.Tools[0].Function.Name != "extract_time_window" {
		t.Errorf("request = %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", got.Temperature)
	}
	if len(got.Messages) != 4 || len(got.Messages[2].ToolCalls) != 1 || got.Messages[3].ToolCallID != "call_0" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if got.ResponseFormat != nil {
		t.Error("ResponseFormat set without schema")
	}
}

func TestOpenAIGateway_Structured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "plain", content: `{"in_scope":true,"rationale":"pod"}`},
		{name: "fenced", content: "```json\n{\"in_scope\":true,\"rationale\":\"pod\"}\n```"},
		{name: "prose", content: `Sure: {"in_scope":true,"rationale":"pod"} hope that helps`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got openAIChatRequest
			g := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				chatReply(w, map[string]any{"role": "assistant", "content": tt.content})
			})

			resp, err := g.Complete(context.Background(), Request{
				Purpose:  PurposeClassify,
				Messages: []Message{{Role: RoleUser, Content: "q"}},
				Schema:   &OutputSchema{Name: "classification", Schema: json.RawMessage(`{"type":"object"}`)},
			})
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}

			var verdict struct {
				InScope bool `json:"in_scope"`
			}
			if err := resp.Decode(&verdict); err != nil || !verdict.InScope {
				t.Errorf("Decode() = %+v, %v", verdict, err)
			}
			if got.ResponseFormat == nil || got.ResponseFormat.JSONSchema.Name != "classification" {
				t.Errorf("ResponseFormat = %+v", got.ResponseFormat)
			}
		})
	}
}

func TestOpenAIGateway_Text(t *testing.T) {
	t.Parallel()

	g := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		chatReply(w, map[string]any{"role": "assistant", "content": "all done"})
	})

	resp, err := g.Complete(context.Background(), Request{Purpose: PurposeAct})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Kind != KindText || resp.Text != "all done" {
		t.Errorf("Response = %+v", resp)
	}
	if err := resp.Decode(&struct{}{}); !IsKind(err, ErrMalformed) {
		t.Errorf("Decode(text) error = %v, want malformed", err)
	}
}

func TestOpenAIGateway_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		schema  bool
		want    ErrorKind
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: ErrAPI,
		},
		{
			name: "overloaded",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "slow down", http.StatusTooManyRequests)
			},
			want: ErrUnavailable,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			want: ErrMalformed,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			want: ErrMalformed,
		},
		{
			name: "api error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
			},
			want: ErrAPI,
		},
		{
			name: "unparseable structured output",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				chatReply(w, map[string]any{"role": "assistant", "content": "I think yes"})
			},
			schema: true,
			want:   ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newTestOpenAI(t, tt.handler)
			req := Request{Purpose: PurposeClassify}
			if tt.schema {
				req.Schema = &OutputSchema{Name: "verdict", Schema: json.RawMessage(`{}`)}
			}

			_, err := g.Complete(context.Background(), req)
			if KindOf(err) != tt.want {
				t.Errorf("Complete() error = %v, want kind %s", err, tt.want)
			}
		})
	}
}

func TestOpenAIGateway_Timeout(t *testing.T) {
	t.Parallel()

	g := newTestOpenAI(t, func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Complete(ctx, Request{Purpose: PurposeAct})
	if !IsKind(err, ErrTimeout) {
		t.Errorf("Complete() error = %v, want timeout", err)
	}
}

func TestOpenAIGateway_Unreachable(t *testing.T) {
	t.Parallel()

	g := NewOpenAIGateway(OpenAIConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := g.Complete(context.Background(), Request{Purpose: PurposeAct})
	if !IsKind(err, ErrTransport) {
		t.Errorf("Complete() error = %v, want transport", err)
	}
}
