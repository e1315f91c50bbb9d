package services

import "fmt"

// HTTPStatusError is returned when an endpoint answers with a status outside the success range.
// Nothing is streamed in that case.
type HTTPStatusError struct {
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Code)
}

// NetworkError wraps a failure to send the request or to receive the response headers.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StreamReadError wraps a failure while reading the response body after streaming has begun.
type StreamReadError struct {
	Err error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("stream read error: %v", e.Err)
}

func (e *StreamReadError) Unwrap() error {
	return e.Err
}

// ParseWarning reports a data payload that is not a valid completion chunk. It never aborts a
// stream.
type ParseWarning struct {
	Payload string
	Err     error
}

func (e *ParseWarning) Error() string {
	return fmt.Sprintf("unparseable chunk %q: %v", e.Payload, e.Err)
}

func (e *ParseWarning) Unwrap() error {
	return e.Err
}
