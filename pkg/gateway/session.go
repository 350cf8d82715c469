package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/worldofchami/bakerelay/pkg/config"
	"github.com/worldofchami/bakerelay/pkg/utils"
)

const (
	clientName    = "bakerelay"
	clientVersion = "0.1.0"
)

// MultiSession is one MCP client session per configured tool server, with
// tools merged into a single namespace.
type MultiSession struct {
	sessions map[string]*mcpsdk.ClientSession
	tools    []Tool
	owner    map[string]string
	log      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*MultiSession)(nil)

// NamedTransport pairs a server name with a ready-to-connect transport.
type NamedTransport struct {
	Name      string
	Transport mcpsdk.Transport
}

// Opener returns a SessionOpener connecting to every server in servers.
func Opener(servers []config.ToolServer, log zerolog.Logger) SessionOpener {
	return func(ctx context.Context) (Session, error) {
		transports := make([]NamedTransport, 0, len(servers))
		for _, s := range servers {
			t, err := BuildTransport(s)
			if err != nil {
				return nil, err
			}
			transports = append(transports, NamedTransport{Name: s.Name, Transport: t})
		}
		return Connect(ctx, transports, log)
	}
}

// BuildTransport maps a tool-server entry to its go-sdk transport.
func BuildTransport(s config.ToolServer) (mcpsdk.Transport, error) {
	switch s.Transport {
	case config.TransportStdio:
		cmd := exec.Command(s.Command, s.Args...)
		cmd.Env = os.Environ()
		for k, v := range s.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		cmd.Stderr = os.Stderr
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case config.TransportSSE:
		return &mcpsdk.SSEClientTransport{
			Endpoint:   s.URL,
			HTTPClient: utils.NewHTTPClientWithHeaders(s.Headers, 0),
		}, nil
	case config.TransportStreamable:
		return &mcpsdk.StreamableClientTransport{
			Endpoint:   s.URL,
			HTTPClient: utils.NewHTTPClientWithHeaders(s.Headers, 0),
		}, nil
	default:
		return nil, fmt.Errorf("tool server %q: unsupported transport %q", s.Name, s.Transport)
	}
}

// Connect opens a client session on each transport and lists its tools. On
// any failure the sessions opened so far are closed.
func Connect(ctx context.Context, transports []NamedTransport, log zerolog.Logger) (*MultiSession, error) {
	if len(transports) == 0 {
		return nil, errors.New("no tool servers configured")
	}

	ms := &MultiSession{
		sessions: make(map[string]*mcpsdk.ClientSession, len(transports)),
		owner:    make(map[string]string),
		log:      log,
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil)
	for _, nt := range transports {
		cs, err := client.Connect(ctx, nt.Transport, nil)
		if err != nil {
			_ = ms.Close()
			return nil, fmt.Errorf("connect tool server %q: %w", nt.Name, err)
		}
		ms.sessions[nt.Name] = cs

		for tool, err := range cs.Tools(ctx, nil) {
			if err != nil {
				_ = ms.Close()
				return nil, fmt.Errorf("list tools on %q: %w", nt.Name, err)
			}
			if prev, dup := ms.owner[tool.Name]; dup {
				_ = ms.Close()
				return nil, fmt.Errorf("tool %q exposed by both %q and %q", tool.Name, prev, nt.Name)
			}
			ms.owner[tool.Name] = nt.Name
			ms.tools = append(ms.tools, Tool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: schemaMap(tool.InputSchema),
				Server:      nt.Name,
			})
		}
		log.Info().Str("server", nt.Name).
			Int("tools", len(lo.Filter(ms.tools, func(t Tool, _ int) bool { return t.Server == nt.Name }))).
			Msg("tool server connected")
	}

	sort.Slice(ms.tools, func(i, j int) bool { return ms.tools[i].Name < ms.tools[j].Name })
	return ms, nil
}

func (m *MultiSession) Tools() []Tool {
	return append([]Tool(nil), m.tools...)
}

func (m *MultiSession) CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	server, ok := m.owner[name]
	if !ok {
		return ToolResult{}, fmt.Errorf("unknown tool %q", name)
	}
	cs := m.sessions[server]
	if args == nil {
		args = map[string]any{}
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return ToolResult{}, fmt.Errorf("call %s on %s: %w", name, server, err)
	}
	return ToolResult{Text: resultText(res), IsError: res.IsError}, nil
}

// Close ends every client session. In-flight calls fail with a transport
// error. Only the first call closes anything.
func (m *MultiSession) Close() error {
	m.closeOnce.Do(func() {
		var errs []error
		for name, cs := range m.sessions {
			if err := cs.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}

func resultText(res *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}

func schemaMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}
