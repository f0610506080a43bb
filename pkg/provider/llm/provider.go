// Package llm defines the Backend interface for large language model
// reasoning.
//
// A Backend receives the full conversation history — including the system
// preamble on the first turn — and returns the assistant's next reply as
// plain text. Streaming is deliberately out of scope: the reply is spoken
// aloud, and speech synthesis needs the complete sentence anyway.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// backendError is a sentinel error type for backend failures.
type backendError string

func (e backendError) Error() string { return string(e) }

const (
	// ErrRemoteCallFailed indicates the request never produced a usable HTTP
	// response: connection refused, timeout, non-2xx status.
	ErrRemoteCallFailed = backendError("llm: remote call failed")

	// ErrInvalidResponse indicates the service responded but the payload did
	// not contain a reply in the expected shape.
	ErrInvalidResponse = backendError("llm: invalid response")
)

// Backend produces assistant replies from conversation history.
type Backend interface {
	// Complete sends the conversation and returns the assistant's reply,
	// whitespace-trimmed. Errors wrap ErrRemoteCallFailed or
	// ErrInvalidResponse. Complete honours ctx cancellation and deadlines.
	Complete(ctx context.Context, req Request) (string, error)
}
