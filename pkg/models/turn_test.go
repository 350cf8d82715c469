package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurnText(t *testing.T) {
	assert.Equal(t, "hello", UserTurn("hello").Text())

	multi := Turn{Role: RoleUser, Parts: []Part{
		TextPart("first"),
		DocumentPart(MediaTypePDF, "JVBERi0="),
		TextPart("second"),
	}}
	assert.Equal(t, "first\nsecond", multi.Text())
	assert.True(t, multi.HasDocument())
	assert.False(t, UserTurn("x").HasDocument())
}

func TestContentParts(t *testing.T) {
	assert.Nil(t, Turn{Role: RoleUser}.ContentParts())
	assert.Equal(t, []Part{TextPart("hi")}, UserTurn("hi").ContentParts())
}

func TestCloneDoesNotShare(t *testing.T) {
	orig := Turn{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "1", Name: "send", Arguments: map[string]any{"to": "+1"}}},
		Parts:     []Part{TextPart("a")},
	}
	cp := orig.Clone()
	cp.ToolCalls[0].Arguments["to"] = "+2"
	cp.Parts[0].Text = "b"

	assert.Equal(t, "+1", orig.ToolCalls[0].Arguments["to"])
	assert.Equal(t, "a", orig.Parts[0].Text)
}

func TestFinalText(t *testing.T) {
	turns := []Turn{
		UserTurn("order a cake"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "send_whatsapp_message"}}},
		{Role: RoleTool, ToolCallID: "c1", Content: "sent"},
		AssistantTurn("done"),
	}
	assert.Equal(t, "done", FinalText(turns))
	assert.Equal(t, "", FinalText([]Turn{UserTurn("x")}))
}

func TestOutcomeConstructors(t *testing.T) {
	assert.Equal(t, Outcome{Category: CategoryIgnored, Status: "Message ignored"}, Ignored())
	f := Failed("payment failed")
	assert.Equal(t, CategoryFailed, f.Category)
	assert.Equal(t, "payment failed", f.Status)
	assert.Equal(t, "payment failed", f.Diagnostic)
}
