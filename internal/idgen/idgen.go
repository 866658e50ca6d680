// Package idgen provides the default message id creator for the
// transport: a monotonically increasing, lexically sortable string per
// outbound operation.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces a unique string id per call. It is safe for
// concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New returns the default Generator: ULIDs seeded from a monotonic
// entropy source, so ids generated within the same millisecond still
// sort in call order.
func New() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NextID returns the next id. It implements the transport's IDCreator
// function type.
func (g *Generator) NextID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return id.String()
}
