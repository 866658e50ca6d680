package transport

// SubProtocol identifies one of the two supported GraphQL-over-WebSocket
// sub-protocols, negotiated by the Sec-WebSocket-Protocol header and
// fixed at construction time rather than re-read from a header on every
// send (see SPEC_FULL.md §11.2 for rejecting an unknown one).
type SubProtocol int

const (
	// SubProtocolUnknown is the zero value; NewTransport rejects it.
	SubProtocolUnknown SubProtocol = iota
	// SubProtocolGraphQLWS is the legacy "graphql-ws" sub-protocol:
	// start/stop framing.
	SubProtocolGraphQLWS
	// SubProtocolGraphQLTransportWS is the modern "graphql-transport-ws"
	// sub-protocol: subscribe/complete framing.
	SubProtocolGraphQLTransportWS
)

// WireName returns the Sec-WebSocket-Protocol header value for sp.
func (sp SubProtocol) WireName() string {
	switch sp {
	case SubProtocolGraphQLWS:
		return "graphql-ws"
	case SubProtocolGraphQLTransportWS:
		return "graphql-transport-ws"
	default:
		return ""
	}
}

// ParseSubProtocol maps a Sec-WebSocket-Protocol header value to a
// SubProtocol. It returns SubProtocolUnknown for anything else.
func ParseSubProtocol(name string) SubProtocol {
	switch name {
	case "graphql-ws":
		return SubProtocolGraphQLWS
	case "graphql-transport-ws":
		return SubProtocolGraphQLTransportWS
	default:
		return SubProtocolUnknown
	}
}

// startKind returns the outbound kind used to begin an operation under sp.
func (sp SubProtocol) startKind() messageKind {
	if sp == SubProtocolGraphQLWS {
		return kindStart
	}
	return kindSubscribe
}

// stopKind returns the outbound kind used to cancel an operation under sp.
func (sp SubProtocol) stopKind() messageKind {
	if sp == SubProtocolGraphQLWS {
		return kindStop
	}
	return kindComplete
}

// messageKind is the wire-level "type" field of a protocol message.
type messageKind string

const (
	// Outbound kinds.
	kindConnectionInit      messageKind = "connection_init"
	kindConnectionTerminate messageKind = "connection_terminate"
	kindStart               messageKind = "start"
	kindSubscribe           messageKind = "subscribe"
	kindStop                messageKind = "stop"
	kindComplete            messageKind = "complete"
	kindPing                messageKind = "ping"
	kindPong                messageKind = "pong"

	// Inbound-only kinds.
	kindData                messageKind = "data"
	kindNext                messageKind = "next"
	kindError               messageKind = "error"
	kindConnectionAck       messageKind = "connection_ack"
	kindConnectionKeepAlive messageKind = "connection_keep_alive"
	kindStartAck            messageKind = "start_ack"
	kindConnectionError     messageKind = "connection_error"
)

// recognizedInbound reports whether kind is a kind the codec knows how
// to route, including echoes of outbound kinds (which dispatch must
// still recognize in order to report them via UnprocessedMessageError).
func recognizedInbound(kind messageKind) bool {
	switch kind {
	case kindData, kindNext, kindError, kindComplete,
		kindConnectionAck, kindConnectionKeepAlive, kindStartAck,
		kindPing, kindPong,
		kindConnectionInit, kindConnectionTerminate, kindSubscribe, kindStart, kindStop, kindConnectionError:
		return true
	default:
		return false
	}
}

// isOutboundEcho reports whether kind is one of the kinds this transport
// only ever sends, never expects to legitimately receive. connection_error
// is included here per spec: it is treated as an unprocessed echo, not
// dispatched as a connection-level error (spec.md §4.6).
func isOutboundEcho(kind messageKind) bool {
	switch kind {
	case kindConnectionInit, kindConnectionTerminate, kindSubscribe, kindStart, kindStop, kindConnectionError:
		return true
	default:
		return false
	}
}
