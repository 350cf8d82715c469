package prompt

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

const (
	ReplyIgnored   = "ignored"
	ReplySucceeded = "succeeded"
	ReplyFailed    = "failed"
)

// Reply is the structured object the agent is asked to end its answer with.
type Reply struct {
	Outcome    string `json:"outcome" jsonschema:"required,enum=ignored,enum=succeeded,enum=failed,description=Result of processing the request"`
	Status     string `json:"status" jsonschema:"required,description=Short human readable status line"`
	Diagnostic string `json:"diagnostic,omitempty" jsonschema:"description=What went wrong when outcome is failed"`
}

var replySchema = sync.OnceValue(func() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&Reply{})
	schema.Version = ""
	b, err := json.Marshal(schema)
	if err != nil {
		return `{"type":"object"}`
	}
	return string(b)
})

// ReplySchema returns the JSON schema of Reply.
func ReplySchema() string {
	return replySchema()
}
