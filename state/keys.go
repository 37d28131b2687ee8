package state

// Well-known state keys for message-based workflows.
const (
	StateKeyMessages     = "messages"
	StateKeyUserInput    = "user_input"
	StateKeyLastResponse = "last_response"
	StateKeyMetadata     = "metadata"
)
