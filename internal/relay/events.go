package relay

import "time"

// Outcome names a terminal dispatch state. Bus events are "relay." + Outcome.
type Outcome string

const (
	OutcomeDelivered    Outcome = "delivered"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeRejected     Outcome = "rejected"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeMisconfig    Outcome = "misconfigured"
	OutcomeFailed       Outcome = "failed"
)

const EventPrefix = "relay."

func (o Outcome) EventType() string { return EventPrefix + string(o) }

// Event is the payload of every relay.* bus event.
type Event struct {
	Outcome  Outcome       `json:"outcome"`
	Source   string        `json:"source"`
	Type     string        `json:"type,omitempty"`
	Title    string        `json:"title,omitempty"`
	ChatID   string        `json:"chat_id,omitempty"`
	ThreadID int           `json:"thread_id,omitempty"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	At       time.Time     `json:"at"`

	// Text is the delivered HTML (only for delivered events).
	Text string `json:"text,omitempty"`
}
