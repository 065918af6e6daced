package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicGateway implements Gateway on the Anthropic Messages API.
// Structured output is requested by forcing a tool named after the schema.
type AnthropicGateway struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// AnthropicConfig configures the Anthropic gateway.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string        // Optional; for proxies and tests
	Model     string        // Default: DefaultAnthropicModel
	MaxTokens int           // Default: 1024
	Timeout   time.Duration // Default: SDK default
}

// NewAnthropicGateway creates a new Anthropic gateway.
func NewAnthropicGateway(config AnthropicConfig) *AnthropicGateway {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	model := config.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := int64(config.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &AnthropicGateway{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name returns the provider name.
func (g *AnthropicGateway) Name() string {
	return "anthropic"
}

// Complete implements the Gateway interface.
func (g *AnthropicGateway) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := g.buildParams(req)
	if err != nil {
		return Response{}, &Error{Kind: ErrMalformed, Provider: g.Name(), Err: err}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Response{}, statusError(g.Name(), apiErr.StatusCode, err)
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return Response{}, transportError(g.Name(), err)
	}

	out := Response{
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			if req.Schema != nil && block.Name == req.Schema.Name {
				out.Kind = KindStructured
				out.Object = json.RawMessage(block.Input)
				continue
			}
			if out.ToolCall == nil {
				out.ToolCall = &ToolCall{ID: block.ID, Name: block.Name, Arguments: json.RawMessage(block.Input)}
			}
		}
	}
	out.Text = strings.Join(text, "\n")

	switch {
	case out.Kind == KindStructured:
		return out, nil
	case out.ToolCall != nil:
		out.Kind = KindToolCall
		return out, nil
	case req.Schema != nil:
		obj, err := extractObject(out.Text)
		if err != nil {
			return Response{}, &Error{Kind: ErrMalformed, Provider: g.Name(), Err: err}
		}
		out.Kind = KindStructured
		out.Object = obj
		return out, nil
	default:
		out.Kind = KindText
		return out, nil
	}
}

func (g *AnthropicGateway) buildParams(req Request) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam

	// Consecutive messages from the same side are merged into one turn.
	var role Role
	var blocks []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	add := func(r Role, b anthropic.ContentBlockParamUnion) {
		if r != role {
			flush()
			role = r
		}
		blocks = append(blocks, b)
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			if m.Content != "" {
				add(RoleAssistant, anthropic.NewTextBlock(m.Content))
			}
			if m.ToolCall != nil {
				add(RoleAssistant, anthropic.NewToolUseBlock(m.ToolCall.ID, toolInput(m.ToolCall.Arguments), m.ToolCall.Name))
			}
		case RoleTool:
			add(RoleUser, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			add(RoleUser, anthropic.NewTextBlock(m.Content))
		}
	}
	flush()

	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	for _, d := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       "object",
					Properties: d.Schema.Properties(),
					Required:   d.Schema.Required(),
				},
			},
		})
	}

	if req.Schema != nil {
		schema, err := schemaParam(req.Schema.Schema)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("output schema %q: %w", req.Schema.Name, err)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        req.Schema.Name,
				Description: anthropic.String(req.Schema.Description),
				InputSchema: schema,
			},
		})
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		}
	}

	return params, nil
}

func schemaParam(raw json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	var doc struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: doc.Properties,
		Required:   doc.Required,
	}, nil
}

// toolInput replays earlier arguments; malformed ones are sent as a string
// so the request stays valid.
func toolInput(args json.RawMessage) any {
	if json.Valid(args) {
		return args
	}
	return map[string]string{"raw": string(args)}
}
