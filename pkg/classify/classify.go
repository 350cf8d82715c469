// Package classify maps the agent's final text to an Outcome.
//
// A structured reply (see prompt.Reply) embedded in the text wins. Without
// one, the case-folded text is matched against configurable markers.
package classify

import (
	"encoding/json"
	"strings"

	"github.com/worldofchami/bakerelay/pkg/models"
	"github.com/worldofchami/bakerelay/pkg/prompt"
)

type Route string

const (
	RouteLead    Route = "lead"
	RouteConfirm Route = "confirm"
	RouteWebhook Route = "webhook"
)

const (
	StatusFlavorOptionsSent = "Order identified, flavor options sent"
	StatusPaymentLinkSent   = "Order processed, payment link sent"

	UnknownError      = "unknown error"
	UnrecognizedReply = "unrecognized agent reply"
)

// SucceededStatus is the fixed status line reported for a successful route.
func (r Route) SucceededStatus() string {
	if r == RouteWebhook {
		return StatusPaymentLinkSent
	}
	return StatusFlavorOptionsSent
}

type Config struct {
	Structured       bool   `default:"true"`
	Fallback         bool   `default:"true"`
	IgnoredMarker    string `split_words:"true" default:"message ignored"`
	FailedMarker     string `split_words:"true" default:"error"`
	DiagnosticMarker string `split_words:"true" default:"error:"`
}

var DefaultConfig = Config{
	Structured:       true,
	Fallback:         true,
	IgnoredMarker:    "message ignored",
	FailedMarker:     "error",
	DiagnosticMarker: "error:",
}

type Classifier struct {
	conf Config
}

func New(conf Config) *Classifier {
	conf.IgnoredMarker = strings.ToLower(conf.IgnoredMarker)
	conf.FailedMarker = strings.ToLower(conf.FailedMarker)
	conf.DiagnosticMarker = strings.ToLower(conf.DiagnosticMarker)
	return &Classifier{conf: conf}
}

func Default() *Classifier {
	return New(DefaultConfig)
}

func (c *Classifier) Classify(route Route, text string) models.Outcome {
	if c.conf.Structured {
		if reply, ok := ExtractReply(text); ok {
			return fromReply(route, reply)
		}
	}
	if !c.conf.Fallback {
		return models.Failed(UnrecognizedReply)
	}
	return c.byMarkers(route, text)
}

func (c *Classifier) byMarkers(route Route, text string) models.Outcome {
	folded := strings.ToLower(text)
	switch {
	case c.conf.IgnoredMarker != "" && strings.Contains(folded, c.conf.IgnoredMarker):
		return models.Ignored()
	case c.conf.FailedMarker != "" && strings.Contains(folded, c.conf.FailedMarker):
		return models.Failed(c.diagnostic(folded))
	default:
		return models.Succeeded(route.SucceededStatus())
	}
}

func (c *Classifier) diagnostic(folded string) string {
	if c.conf.DiagnosticMarker == "" {
		return UnknownError
	}
	_, after, found := strings.Cut(folded, c.conf.DiagnosticMarker)
	if !found {
		return UnknownError
	}
	if d := strings.TrimSpace(after); d != "" {
		return d
	}
	return UnknownError
}

func fromReply(route Route, r prompt.Reply) models.Outcome {
	switch r.Outcome {
	case prompt.ReplyIgnored:
		return models.Ignored()
	case prompt.ReplyFailed:
		d := strings.TrimSpace(r.Diagnostic)
		if d == "" {
			d = UnknownError
		}
		return models.Failed(d)
	default:
		return models.Succeeded(route.SucceededStatus())
	}
}

// The structured reply is asked for at the end of the text, so only the tail
// is searched and only a bounded number of candidate objects are decoded.
const (
	maxReplyScan      = 4 << 10
	maxReplyCandidate = 64
)

// ExtractReply finds the last JSON object in text that decodes into a Reply
// with a known outcome.
func ExtractReply(text string) (prompt.Reply, bool) {
	if len(text) > maxReplyScan {
		text = text[len(text)-maxReplyScan:]
	}
	tried := 0
	for start := strings.LastIndexByte(text, '{'); start >= 0 && tried < maxReplyCandidate; start = strings.LastIndexByte(text[:start], '{') {
		tried++
		var r prompt.Reply
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&r); err != nil {
			continue
		}
		r.Outcome = strings.ToLower(strings.TrimSpace(r.Outcome))
		switch r.Outcome {
		case prompt.ReplyIgnored, prompt.ReplySucceeded, prompt.ReplyFailed:
			return r, true
		}
	}
	return prompt.Reply{}, false
}
