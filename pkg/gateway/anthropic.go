package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/worldofchami/bakerelay/pkg/models"
)

type AnthropicConfig struct {
	APIKey      string  `envconfig:"API_KEY"`
	BaseURL     string  `envconfig:"BASE_URL"`
	Model       string  `default:"claude-3-5-haiku-latest"`
	MaxTokens   int64   `split_words:"true" default:"2048"`
	Temperature float64 `default:"0.7"`
	MaxSteps    int     `split_words:"true" default:"10"`
}

// AnthropicAgent runs a tool-use loop against the Messages API: each tool
// call the model makes is executed on the session and fed back until the
// model answers without calling tools.
type AnthropicAgent struct {
	client      anthropic.Client
	session     Session
	tools       []anthropic.ToolUnionParam
	model       string
	maxTokens   int64
	temperature float64
	maxSteps    int
	log         zerolog.Logger
}

var _ Agent = (*AnthropicAgent)(nil)

// AnthropicBinder binds an AnthropicAgent to the session's tools.
func AnthropicBinder(conf AnthropicConfig, log zerolog.Logger, opts ...option.RequestOption) Binder {
	return func(_ context.Context, session Session) (Agent, error) {
		return NewAnthropicAgent(conf, session, log, opts...)
	}
}

func NewAnthropicAgent(conf AnthropicConfig, session Session, log zerolog.Logger, opts ...option.RequestOption) (*AnthropicAgent, error) {
	if conf.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(conf.APIKey)}
	if conf.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(conf.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	a := &AnthropicAgent{
		client:      anthropic.NewClient(reqOpts...),
		session:     session,
		tools:       buildAnthropicToolSpecs(session.Tools()),
		model:       conf.Model,
		maxTokens:   conf.MaxTokens,
		temperature: conf.Temperature,
		maxSteps:    conf.MaxSteps,
		log:         log,
	}
	if a.model == "" {
		a.model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 2048
	}
	if a.maxSteps <= 0 {
		a.maxSteps = 10
	}
	return a, nil
}

func (a *AnthropicAgent) Run(ctx context.Context, turns []models.Turn) ([]models.Turn, error) {
	system, messages, err := convertToAnthropicMessages(turns)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, errors.New("no user content to send")
	}

	var produced []models.Turn
	for step := 0; step < a.maxSteps; step++ {
		response, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(a.model),
			MaxTokens:   a.maxTokens,
			Temperature: anthropic.Float(a.temperature),
			System:      system,
			Messages:    messages,
			Tools:       a.tools,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to call Anthropic API: %w", err)
		}

		assistant, blocks := assistantTurn(response, a.log)
		produced = append(produced, assistant)
		if len(assistant.ToolCalls) == 0 {
			return produced, nil
		}
		messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		results := make([]anthropic.ContentBlockParamUnion, 0, len(assistant.ToolCalls))
		for _, call := range assistant.ToolCalls {
			result := a.executeTool(ctx, call)
			produced = append(produced, result)
			results = append(results, anthropic.NewToolResultBlock(call.ID, result.Content, result.IsError))
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}
	return nil, fmt.Errorf("agent did not finish within %d steps", a.maxSteps)
}

func (a *AnthropicAgent) executeTool(ctx context.Context, call models.ToolCall) models.Turn {
	a.log.Debug().Str("tool", call.Name).Interface("args", call.Arguments).Msg("executing tool")
	res, err := a.session.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		a.log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		return models.Turn{Role: models.RoleTool, ToolCallID: call.ID, Content: fmt.Sprintf("Error: %v", err), IsError: true}
	}
	content := res.Text
	if content == "" {
		content = "(no output)"
	}
	return models.Turn{Role: models.RoleTool, ToolCallID: call.ID, Content: content, IsError: res.IsError}
}

// assistantTurn converts a response into a Turn and the matching blocks to
// replay on the next request.
func assistantTurn(response *anthropic.Message, log zerolog.Logger) (models.Turn, []anthropic.ContentBlockParamUnion) {
	turn := models.Turn{Role: models.RoleAssistant}
	var texts []string
	var blocks []anthropic.ContentBlockParamUnion

	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			if block.Text == "" {
				continue
			}
			texts = append(texts, block.Text)
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		case anthropic.ToolUseBlock:
			var args map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					log.Warn().Err(err).Str("tool", block.Name).Str("tool_call_id", block.ID).Msg("malformed tool input")
				}
			}
			turn.ToolCalls = append(turn.ToolCalls, models.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
			blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
		}
	}
	turn.Content = strings.Join(texts, "\n")
	return turn, blocks
}

// convertToAnthropicMessages splits system turns into the system prompt and
// maps the rest to messages. Consecutive turns that land on the same role
// are merged, as the API requires alternating roles.
func convertToAnthropicMessages(turns []models.Turn) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam

	push := func(role anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, t := range turns {
		switch t.Role {
		case models.RoleSystem:
			if text := t.Text(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case models.RoleUser:
			blocks, err := userBlocks(t)
			if err != nil {
				return nil, nil, err
			}
			push(anthropic.MessageParamRoleUser, blocks)
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := t.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, call := range t.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks)
		case models.RoleTool:
			push(anthropic.MessageParamRoleUser, []anthropic.ContentBlockParamUnion{
				anthropic.NewToolResultBlock(t.ToolCallID, t.Text(), t.IsError),
			})
		default:
			return nil, nil, fmt.Errorf("unknown role %q", t.Role)
		}
	}
	return system, messages, nil
}

func userBlocks(t models.Turn) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range t.ContentParts() {
		switch p.Type {
		case models.PartText:
			if p.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		case models.PartDocument:
			if p.MediaType != models.MediaTypePDF {
				return nil, fmt.Errorf("unsupported document type %q", p.MediaType)
			}
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: p.Data}))
		}
	}
	return blocks, nil
}

func buildAnthropicToolSpecs(tools []Tool) []anthropic.ToolUnionParam {
	specs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: tool.InputSchema["properties"]}
		if req, ok := tool.InputSchema["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		spec := &anthropic.ToolParam{
			Name:        tool.Name,
			InputSchema: schema,
		}
		if tool.Description != "" {
			spec.Description = anthropic.String(tool.Description)
		}
		specs = append(specs, anthropic.ToolUnionParam{OfTool: spec})
	}
	return specs
}
