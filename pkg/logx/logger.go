package logx

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/worldofchami/bakerelay/pkg/models"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// Init configures the global logger. Components derive their own loggers
// from log.Logger with a "component" field.
func Init(opts ...Config) {
	conf := safe(opts...)
	log.Logger = New(os.Stdout, *conf)
}

func New(w io.Writer, conf Config) zerolog.Logger {
	var l zerolog.Logger
	if conf.PrettyFormat {
		l = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	} else {
		l = zerolog.New(w).With().Timestamp().Logger()
	}

	if conf.Debug {
		l = l.Level(zerolog.DebugLevel)
	} else {
		l = l.Level(zerolog.InfoLevel)
	}

	return l.With().Caller().Logger()
}

func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

const maxPreview = 500

// Transcript logs an agent exchange turn by turn at debug level. Document
// payloads are never logged, only their media type and size.
func Transcript(l zerolog.Logger, title string, turns []models.Turn) {
	if l.GetLevel() > zerolog.DebugLevel {
		return
	}
	l.Debug().Str("title", title).Int("turns", len(turns)).Msg("agent transcript")
	for i, t := range turns {
		ev := l.Debug().Int("index", i).Str("role", string(t.Role))
		if text := t.Text(); text != "" {
			ev = ev.Str("content", preview(text))
		}
		for _, p := range t.Parts {
			if p.Type == models.PartDocument {
				ev = ev.Str("document", p.MediaType).Int("document_bytes", len(p.Data)*3/4)
			}
		}
		if len(t.ToolCalls) > 0 {
			names := make([]string, 0, len(t.ToolCalls))
			for _, tc := range t.ToolCalls {
				names = append(names, tc.Name)
			}
			ev = ev.Strs("tool_calls", names).Interface("tool_args", t.ToolCalls)
		}
		if t.ToolCallID != "" {
			ev = ev.Str("tool_call_id", t.ToolCallID).Bool("tool_error", t.IsError)
		}
		ev.Msg("turn")
	}
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxPreview {
		return s
	}
	cut := maxPreview
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
