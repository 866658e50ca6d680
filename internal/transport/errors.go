package transport

import "fmt"

// UnprocessedMessageError is returned when an inbound frame cannot be
// mapped to a known message kind, or is missing a field a known kind
// requires (e.g. a data/next/error frame with no id).
type UnprocessedMessageError struct {
	Raw string
}

func (e *UnprocessedMessageError) Error() string {
	return fmt.Sprintf("gqlws: unprocessed message: %s", e.Raw)
}

// NeitherErrorNorPayloadReceivedError is returned for a well-formed
// data/next/error frame carrying an id but neither a payload nor an
// error.
type NeitherErrorNorPayloadReceivedError struct {
	ID string
}

func (e *NeitherErrorNorPayloadReceivedError) Error() string {
	return fmt.Sprintf("gqlws: operation %s: neither error nor payload received", e.ID)
}

// NetworkError wraps a socket-level disconnect.
type NetworkError struct {
	Inner error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gqlws: network error: %s", e.Inner)
}

func (e *NetworkError) Unwrap() error { return e.Inner }

// ParseError wraps malformed JSON. A frame that parses but has no type
// is reported as an UnprocessedMessageError instead.
type ParseError struct {
	Inner error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gqlws: parse error: %s", e.Inner)
}

func (e *ParseError) Unwrap() error { return e.Inner }

// ErrNotConnected is returned by operations that require an active
// socket (e.g. sending while disconnected with no sticky replay target).
var ErrNotConnected = fmt.Errorf("gqlws: not connected")

// ErrUnsupportedSubProtocol is returned at construction time when the
// configured sub-protocol is not one of graphql-ws or graphql-transport-ws.
var ErrUnsupportedSubProtocol = fmt.Errorf("gqlws: unsupported sub-protocol")
