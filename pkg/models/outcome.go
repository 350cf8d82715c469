package models

type Category string

const (
	CategoryIgnored   Category = "ignored"
	CategorySucceeded Category = "succeeded"
	CategoryFailed    Category = "failed"
)

// Outcome is the classified result of routing one event. Status is the
// user-facing line; Diagnostic is only set for failures.
type Outcome struct {
	Category   Category `json:"category"`
	Status     string   `json:"status"`
	Diagnostic string   `json:"diagnostic,omitempty"`
}

const StatusIgnored = "Message ignored"

func Ignored() Outcome {
	return Outcome{Category: CategoryIgnored, Status: StatusIgnored}
}

func Succeeded(status string) Outcome {
	return Outcome{Category: CategorySucceeded, Status: status}
}

func Failed(diagnostic string) Outcome {
	return Outcome{Category: CategoryFailed, Status: diagnostic, Diagnostic: diagnostic}
}
