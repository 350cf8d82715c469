package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/tracing"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/rs/zerolog"

	"github.com/worldofchami/bakerelay/pkg/models"
)

type OpenAIConfig struct {
	Model string `default:"gpt-4o"`
	Name  string `default:"BakeRelay"`
}

// OpenAIAgent runs the turns through openai-agents-go. The library keeps its
// own tool loop, so only the final output comes back as an assistant turn.
type OpenAIAgent struct {
	name  string
	model string
	tools []agents.Tool
	log   zerolog.Logger
}

var _ Agent = (*OpenAIAgent)(nil)

// ErrDocumentUnsupported is returned when turns carry document parts the
// provider cannot send.
var ErrDocumentUnsupported = errors.New("document parts are not supported by this provider")

func OpenAIBinder(conf OpenAIConfig, log zerolog.Logger) Binder {
	return func(_ context.Context, session Session) (Agent, error) {
		return NewOpenAIAgent(conf, session, log), nil
	}
}

func NewOpenAIAgent(conf OpenAIConfig, session Session, log zerolog.Logger) *OpenAIAgent {
	// Disable OpenAI tracing to prevent console spam
	tracing.SetTracingDisabled(true)

	a := &OpenAIAgent{name: conf.Name, model: conf.Model, log: log}
	if a.name == "" {
		a.name = "BakeRelay"
	}
	if a.model == "" {
		a.model = "gpt-4o"
	}
	for _, t := range session.Tools() {
		a.tools = append(a.tools, sessionTool(session, t, log))
	}
	return a
}

func sessionTool(session Session, tool Tool, log zerolog.Logger) agents.FunctionTool {
	return agents.FunctionTool{
		Name:             tool.Name,
		Description:      tool.Description,
		ParamsJSONSchema: tool.InputSchema,
		StrictJSONSchema: param.NewOpt(false),
		OnInvokeTool: func(ctx context.Context, arguments string) (any, error) {
			var args map[string]any
			if strings.TrimSpace(arguments) != "" {
				if err := json.Unmarshal([]byte(arguments), &args); err != nil {
					return nil, fmt.Errorf("invalid arguments for %s: %w", tool.Name, err)
				}
			}
			log.Debug().Str("tool", tool.Name).Interface("args", args).Msg("executing tool")
			res, err := session.CallTool(ctx, tool.Name, args)
			if err != nil {
				return nil, err
			}
			if res.IsError {
				return "Error: " + res.Text, nil
			}
			return res.Text, nil
		},
	}
}

func (a *OpenAIAgent) Run(ctx context.Context, turns []models.Turn) ([]models.Turn, error) {
	instructions, input, err := flatten(turns)
	if err != nil {
		return nil, err
	}

	agent := agents.New(a.name).
		WithInstructions(instructions).
		WithModel(a.model).
		WithTools(a.tools...)

	result, err := agents.Run(ctx, agent, input)
	if err != nil {
		return nil, err
	}
	output, ok := result.FinalOutput.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected final output type %T", result.FinalOutput)
	}
	return []models.Turn{models.AssistantTurn(output)}, nil
}

// flatten joins system turns into instructions and renders the rest as a
// role-prefixed transcript.
func flatten(turns []models.Turn) (string, string, error) {
	var instructions []string
	var lines []string
	for _, t := range turns {
		if t.HasDocument() {
			return "", "", ErrDocumentUnsupported
		}
		text := t.Text()
		switch t.Role {
		case models.RoleSystem:
			instructions = append(instructions, text)
		case models.RoleUser:
			lines = append(lines, "User: "+text)
		case models.RoleAssistant:
			if text != "" {
				lines = append(lines, "Assistant: "+text)
			}
		case models.RoleTool:
			lines = append(lines, "Tool result: "+text)
		}
	}
	if len(lines) == 0 {
		return "", "", errors.New("no user content to send")
	}
	// a single user turn is sent as-is
	if len(lines) == 1 && strings.HasPrefix(lines[0], "User: ") {
		return strings.Join(instructions, "\n\n"), strings.TrimPrefix(lines[0], "User: "), nil
	}
	return strings.Join(instructions, "\n\n"), strings.Join(lines, "\n"), nil
}
