package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults for OpenAI-compatible endpoints.
const (
	DefaultOpenAIBaseURL = "https://genai.rcac.purdue.edu/api"
	DefaultOpenAIModel   = "gpt-oss:120b"

	// DefaultMaxResponseBytes bounds how much of a response body is read.
	DefaultMaxResponseBytes = 8 << 20
)

// OpenAIGateway implements Gateway for OpenAI-compatible chat completion
// endpoints, including self-hosted servers such as Ollama and vLLM.
type OpenAIGateway struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	maxBytes  int64
	client    *http.Client
}

// OpenAIConfig configures the OpenAI-compatible gateway.
type OpenAIConfig struct {
	APIKey    string        // Optional for self-hosted endpoints
	BaseURL   string        // Default: DefaultOpenAIBaseURL; /chat/completions is appended
	Model     string        // Default: DefaultOpenAIModel
	MaxTokens int           // Default: unset (provider decides)
	Timeout   time.Duration // Default: 120s
	Client    *http.Client  // Optional; overrides Timeout

	// MaxResponseBytes rejects larger response bodies as malformed.
	// Default: DefaultMaxResponseBytes.
	MaxResponseBytes int64
}

// NewOpenAIGateway creates a new OpenAI-compatible gateway.
func NewOpenAIGateway(config OpenAIConfig) *OpenAIGateway {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	model := config.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := config.Client
	if client == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	maxBytes := config.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}

	return &OpenAIGateway{
		apiKey:    config.APIKey,
		baseURL:   baseURL,
		model:     model,
		maxTokens: config.MaxTokens,
		maxBytes:  maxBytes,
		client:    client,
	}
}

// Name returns the provider name.
func (g *OpenAIGateway) Name() string {
	return "openai"
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponseFormat struct {
	Type       string           `json:"type"`
	JSONSchema openAIJSONSchema `json:"json_schema"`
}

type openAIJSONSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string           `json:"role"`
			Content   *string          `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Complete implements the Gateway interface.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return Response{}, &Error{Kind: ErrMalformed, Provider: g.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, &Error{Kind: ErrTransport, Provider: g.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return Response{}, transportError(g.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		return Response{}, transportError(g.Name(), fmt.Errorf("read response: %w", err))
	}
	if int64(len(respBody)) > g.maxBytes {
		return Response{}, &Error{Kind: ErrMalformed, Provider: g.Name(), Status: resp.StatusCode,
			Err: fmt.Errorf("response exceeds %d bytes", g.maxBytes)}
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, statusError(g.Name(), resp.StatusCode, fmt.Errorf("%s", truncate(string(respBody), 512)))
	}

	var chat openAIChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return Response{}, &Error{Kind: ErrMalformed, Provider: g.Name(), Err: fmt.Errorf("parse response: %w", err)}
	}
	if chat.Error != nil {
		return Response{}, &Error{Kind: ErrAPI, Provider: g.Name(), Status: resp.StatusCode,
			Err: fmt.Errorf("%s: %s", chat.Error.Type, chat.Error.Message)}
	}
	if len(chat.Choices) == 0 {
		return Response{}, &Error{Kind: ErrMalformed, Provider: g.Name(), Err: errNoChoices}
	}

	msg := chat.Choices[0].Message
	out := Response{
		Usage: Usage{
			PromptTokens:     chat.Usage.PromptTokens,
			CompletionTokens: chat.Usage.CompletionTokens,
			TotalTokens:      chat.Usage.TotalTokens,
		},
	}
	if msg.Content != nil {
		out.Text = *msg.Content
	}

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := json.RawMessage(call.Function.Arguments)
		if strings.TrimSpace(call.Function.Arguments) == "" {
			args = json.RawMessage(`{}`)
		}
		out.Kind = KindToolCall
		out.ToolCall = &ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: args}
		return out, nil
	}

	if req.Schema != nil {
		obj, err := extractObject(out.Text)
		if err != nil {
			return Response{}, &Error{Kind: ErrMalformed, Provider: g.Name(), Err: err}
		}
		out.Kind = KindStructured
		out.Object = obj
		return out, nil
	}

	out.Kind = KindText
	return out, nil
}

func (g *OpenAIGateway) buildRequest(req Request) openAIChatRequest {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := openAIMessage{Role: string(m.Role), Content: m.Content}
		switch {
		case m.Role == RoleAssistant && m.ToolCall != nil:
			tc := openAIToolCall{ID: m.ToolCall.ID, Type: "function"}
			tc.Function.Name = m.ToolCall.Name
			tc.Function.Arguments = string(m.ToolCall.Arguments)
			om.ToolCalls = []openAIToolCall{tc}
		case m.Role == RoleTool:
			om.ToolCallID = m.ToolCallID
			om.Name = m.ToolName
		}
		messages = append(messages, om)
	}

	temperature := req.Temperature
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}

	out := openAIChatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   maxTokens,
	}

	for _, d := range req.Tools {
		out.Tools = append(out.Tools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema.JSONSchema(),
			},
		})
	}

	if req.Schema != nil {
		out.ResponseFormat = &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: openAIJSONSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      req.Schema.Schema,
			},
		}
	}

	return out
}

// extractObject pulls a JSON object out of model text, tolerating code
// fences and surrounding prose.
func extractObject(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in response")
		}
		s = s[start : end+1]
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("parse structured response: %w", err)
	}
	return json.RawMessage(s), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
