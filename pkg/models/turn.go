package models

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type PartType string

const (
	PartText     PartType = "text"
	PartDocument PartType = "document"
)

const MediaTypePDF = "application/pdf"

// Part is one typed piece of a multi-part turn. Document parts carry their
// payload base64-encoded.
type Part struct {
	Type      PartType `json:"type"`
	Text      string   `json:"text,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	Data      string   `json:"data,omitempty"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Turn is one role-tagged step of a conversation with the agent. Either
// Content or Parts is set, never both.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Parts      []Part     `json:"parts,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

func SystemTurn(text string) Turn    { return Turn{Role: RoleSystem, Content: text} }
func UserTurn(text string) Turn      { return Turn{Role: RoleUser, Content: text} }
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Content: text} }

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func DocumentPart(mediaType, base64Data string) Part {
	return Part{Type: PartDocument, MediaType: mediaType, Data: base64Data}
}

// Text returns the textual content of the turn, joining text parts with a
// newline. Document parts are skipped.
func (t Turn) Text() string {
	if len(t.Parts) == 0 {
		return t.Content
	}
	var texts []string
	for _, p := range t.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasDocument reports whether any part of the turn is a document.
func (t Turn) HasDocument() bool {
	for _, p := range t.Parts {
		if p.Type == PartDocument {
			return true
		}
	}
	return false
}

// ContentParts returns the turn content as parts, promoting plain content to
// a single text part.
func (t Turn) ContentParts() []Part {
	if len(t.Parts) > 0 {
		return append([]Part(nil), t.Parts...)
	}
	if t.Content == "" {
		return nil
	}
	return []Part{TextPart(t.Content)}
}

// Clone returns a deep copy so callers can hand turns across goroutines
// without sharing slices or maps.
func (t Turn) Clone() Turn {
	out := t
	if t.Parts != nil {
		out.Parts = append([]Part(nil), t.Parts...)
	}
	if t.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			out.ToolCalls[i] = ToolCall{ID: tc.ID, Name: tc.Name, Arguments: cloneArgs(tc.Arguments)}
		}
	}
	return out
}

func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// FinalText returns the text of the last assistant turn, or "" when the
// sequence has none.
func FinalText(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant && len(turns[i].ToolCalls) == 0 {
			return turns[i].Text()
		}
	}
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			return turns[i].Text()
		}
	}
	return ""
}

func cloneArgs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}
