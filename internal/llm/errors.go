package llm

import (
	"errors"
	"fmt"
)

// TransportError means the endpoint could not be reached or the request
// timed out before a response arrived.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Body holds the raw response text.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// SchemaError means the response decoded but did not carry the expected
// content field.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unexpected response shape: %s", e.Reason)
}

// ParseError means the completion text was not valid JSON even after fence
// stripping and repair.
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse completion as JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind names the failure class of err for logs and metrics.
func Kind(err error) string {
	var (
		transportErr *TransportError
		httpErr      *HTTPError
		schemaErr    *SchemaError
		parseErr     *ParseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transportErr):
		return "transport_error"
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &schemaErr):
		return "schema_error"
	case errors.As(err, &parseErr):
		return "parse_error"
	default:
		return "error"
	}
}
