package types

// Envelope is the uniform shape of every JSON HTTP response: a parsable
// business error still returns HTTP 200 with Success=false; transport-level
// failures use the matching HTTP status instead.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the error payload carried by a failed Envelope.
type EnvelopeError struct {
	Message string `json:"message"`
}

// OK wraps a successful payload.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail wraps an error message.
func Fail(message string) Envelope {
	return Envelope{Success: false, Error: &EnvelopeError{Message: message}}
}
