package transport

import (
	"encoding/json"
	"strings"
)

// Operation is a single GraphQL operation submitted to Send: a query,
// mutation, or subscription document plus its variables. This is the
// transport's narrowed view of the teacher's multi-protocol
// protocol.Request (internal/protocol/protocol.go in the teacher):
// gqlws only ever carries a GraphQL document over a socket, so the
// HTTP-shaped fields (method, per-protocol auth, response metadata)
// have no home here.
type Operation struct {
	Query     string
	Variables map[string]any
}

// RequestBody is the injected policy that shapes the GraphQL request
// JSON for an operation (spec.md §6.5). The default implementation
// always sends the full query document and never an APQ hash, per
// spec.md §6.5's "disables automatic-persisted-query behavior".
type RequestBody func(op Operation) (json.RawMessage, error)

// DefaultRequestBody is the default RequestBody policy.
func DefaultRequestBody(op Operation) (json.RawMessage, error) {
	body := struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables,omitempty"`
	}{
		Query:     op.Query,
		Variables: op.Variables,
	}
	return json.Marshal(body)
}

// IDCreator produces a unique string id per outbound operation
// (spec.md §6.5). See internal/idgen for the default monotonic
// generator.
type IDCreator func() string

// IsSubscription reports whether op's GraphQL document is a
// subscription operation, determining whether its subscribe message is
// retained for reconnect replay (spec.md §3 "Subscription record").
// Ported near-verbatim from the teacher's isSubscription in
// internal/protocol/graphql/subscription.go.
func IsSubscription(query string) bool {
	q := strings.TrimSpace(query)

	for strings.HasPrefix(q, "#") {
		idx := strings.IndexByte(q, '\n')
		if idx == -1 {
			return false
		}
		q = strings.TrimSpace(q[idx+1:])
	}

	return strings.HasPrefix(strings.ToLower(q), "subscription")
}
