package models

// Outcome classifies one contact attempt. Values match the Status_lead codes
// already present in the reporting table, so they are stable.
type Outcome string

const (
	// OutcomePending is the in-flight value. It is never persisted.
	OutcomePending Outcome = "Pending"

	OutcomeSent          Outcome = "Sent"
	OutcomeFailedNewChat Outcome = "Failed-NewChat"
	OutcomeNotFound      Outcome = "NotFound"
	OutcomeFailedSend    Outcome = "Failed-Send"
	OutcomeError         Outcome = "Error"
)

func (o Outcome) String() string { return string(o) }

var terminalOutcomes = map[Outcome]bool{
	OutcomeSent:          true,
	OutcomeFailedNewChat: true,
	OutcomeNotFound:      true,
	OutcomeFailedSend:    true,
	OutcomeError:         true,
}

// IsTerminal reports whether the outcome ends a lead's processing.
func (o Outcome) IsTerminal() bool {
	return terminalOutcomes[o]
}

func (o Outcome) IsValid() bool {
	return o == OutcomePending || terminalOutcomes[o]
}
