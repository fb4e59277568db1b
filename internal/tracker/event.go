package tracker

// Kind identifies an execution event.
type Kind string

const (
	AgentStart        Kind = "agent_start"
	AgentComplete     Kind = "agent_complete"
	AgentFail         Kind = "agent_fail"
	SynthesisStart    Kind = "synthesis_start"
	SynthesisComplete Kind = "synthesis_complete"
	PaymentConfirmed  Kind = "payment_confirmed"
)

// IsSignal reports whether k is a presentation-only signal that never enters
// the execution log.
func (k Kind) IsSignal() bool {
	switch k {
	case SynthesisStart, SynthesisComplete, PaymentConfirmed:
		return true
	default:
		return false
	}
}

// Event is one entry on the bus. Timestamp is Unix milliseconds.
type Event struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"event"`
	AgentName    string `json:"agentName,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	DurationMs   *int64 `json:"durationMs,omitempty"`
	OutputLength *int   `json:"outputLength,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Summary aggregates the execution log.
type Summary struct {
	Total           int   `json:"total"`
	Completed       int   `json:"completed"`
	Failed          int   `json:"failed"`
	TotalDurationMs int64 `json:"totalDurationMs"`
}
