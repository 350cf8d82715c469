package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const (
	TransportStdio      = "stdio"
	TransportSSE        = "sse"
	TransportStreamable = "streamable_http"
)

// ToolServer describes one MCP tool backend the gateway connects to at start.
type ToolServer struct {
	Name      string            `mapstructure:"-"`
	Transport string            `mapstructure:"transport"`
	URL       string            `mapstructure:"url"`
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Env       map[string]string `mapstructure:"env"`
	Headers   map[string]string `mapstructure:"headers"`
}

// LoadToolServers reads the tool-server file. The file maps server names to
// their connection settings, optionally nested under "mcpServers". Values may
// reference environment variables as ${VAR}.
func LoadToolServers(path string) ([]ToolServer, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if !strings.Contains(path, ".") {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read tool servers %s: %w", path, err)
	}

	raw := map[string]ToolServer{}
	var err error
	// viper lower-cases keys
	if v.IsSet("mcpservers") {
		err = v.UnmarshalKey("mcpservers", &raw)
	} else {
		err = v.Unmarshal(&raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode tool servers %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("tool servers %s: no servers configured", path)
	}

	servers := make([]ToolServer, 0, len(raw))
	for name, s := range raw {
		s.Name = name
		norm, err := normalize(s)
		if err != nil {
			return nil, err
		}
		servers = append(servers, norm)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

func normalize(s ToolServer) (ToolServer, error) {
	s.URL = os.ExpandEnv(strings.TrimSpace(s.URL))
	s.Command = os.ExpandEnv(strings.TrimSpace(s.Command))
	for i, a := range s.Args {
		s.Args[i] = os.ExpandEnv(a)
	}

	// Environment variable names are conventionally upper case; viper has
	// already folded them.
	env := make(map[string]string, len(s.Env))
	for k, val := range s.Env {
		env[strings.ToUpper(k)] = os.ExpandEnv(val)
	}
	s.Env = env

	headers := make(map[string]string, len(s.Headers))
	for k, val := range s.Headers {
		headers[k] = os.ExpandEnv(val)
	}
	s.Headers = headers

	switch strings.ToLower(strings.TrimSpace(s.Transport)) {
	case "":
		if s.Command != "" {
			s.Transport = TransportStdio
		} else {
			s.Transport = TransportStreamable
		}
	case "stdio":
		s.Transport = TransportStdio
	case "sse":
		s.Transport = TransportSSE
	case "streamable_http", "streamable-http", "http":
		s.Transport = TransportStreamable
	default:
		return s, fmt.Errorf("tool server %q: unsupported transport %q", s.Name, s.Transport)
	}

	if s.Transport == TransportStdio && s.Command == "" {
		return s, fmt.Errorf("tool server %q: stdio transport requires a command", s.Name)
	}
	if s.Transport != TransportStdio && s.URL == "" {
		return s, fmt.Errorf("tool server %q: %s transport requires a url", s.Name, s.Transport)
	}
	return s, nil
}
