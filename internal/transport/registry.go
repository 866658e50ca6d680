package transport

import (
	"sort"
	"sync"
)

// Result is what a Sink receives: exactly one of Payload or Err is set.
type Result struct {
	Payload []byte
	Err     error
}

// Sink is the per-operation result consumer a caller registers with
// Send. It is invoked at-most-once for one-shot operations and
// unbounded-many times for subscriptions (spec.md §3 "Subscriber
// record").
type Sink func(Result)

// registry is the Subscriber Registry of spec.md §4.3: two keyed maps
// behind a single mutating boundary. sync.RWMutex is used (rather than a
// plain Mutex, as the teacher's SubscriptionClient uses for its much
// smaller single-subscription state) because dispatch/broadcastError
// are read-heavy relative to register/remove, mirroring
// nasnet-community-nasnet-panel's subscription Manager.
type registry struct {
	mu            sync.RWMutex
	subscribers   map[string]Sink
	subscriptions map[string]string // id -> serialized subscribe message
}

func newRegistry() *registry {
	return &registry{
		subscribers:   make(map[string]Sink),
		subscriptions: make(map[string]string),
	}
}

// register adds a subscriber record for id, and a subscription record
// too when subscribeMsg is non-empty (i.e. the operation is a
// subscription).
func (r *registry) register(id string, sink Sink, subscribeMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[id] = sink
	if subscribeMsg != "" {
		r.subscriptions[id] = subscribeMsg
	}
}

// dispatch invokes the sink for id if present and reports whether it
// was found; missing ids are otherwise ignored (the subscriber may have
// already removed itself). The caller logs a dispatch-miss using the
// returned bool (SPEC_FULL.md §4.9).
func (r *registry) dispatch(id string, result Result) bool {
	r.mu.RLock()
	sink, ok := r.subscribers[id]
	r.mu.RUnlock()
	if ok {
		sink(result)
	}
	return ok
}

// completeIfOneShot removes id from subscribers iff it is present there
// and NOT in subscriptions -- i.e. iff it names a one-shot operation,
// not a subscription (spec.md §4.3).
func (r *registry) completeIfOneShot(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, isSubscription := r.subscriptions[id]; isSubscription {
		return
	}
	delete(r.subscribers, id)
}

// remove deletes id from both maps. Idempotent: removing an absent id
// is a no-op (spec.md §8 property 6, "unsubscribe twice").
func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, id)
	delete(r.subscriptions, id)
}

// broadcastError invokes every subscriber sink with err as a failure
// result. Subscribers are not removed, so they can recover on reconnect.
func (r *registry) broadcastError(err error) {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.subscribers))
	for _, sink := range r.subscribers {
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()
	for _, sink := range sinks {
		sink(Result{Err: err})
	}
}

// replayMessages returns every subscription's serialized subscribe
// message, for replay after reconnect (spec.md §4.4), sorted in
// ascending id order. Map iteration order is randomized, and the
// Outbound Queue's drain only sorts by the key each message is
// re-enqueued under -- which is assigned in whatever order the caller
// re-enqueues in, not the original id order -- so the sort has to
// happen here, before replaySubscriptions re-enqueues anything
// (spec.md §8 scenario S2).
func (r *registry) replayMessages() []struct {
	ID      string
	Message string
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		ID      string
		Message string
	}, 0, len(r.subscriptions))
	for id, msg := range r.subscriptions {
		out = append(out, struct {
			ID      string
			Message string
		}{ID: id, Message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// snapshot returns a read-only copy of the ids currently present in
// each map, for tests that assert on registry membership without
// reaching into private state via reflection.
func (r *registry) snapshot() (subscribers, subscriptions map[string]bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subscribers = make(map[string]bool, len(r.subscribers))
	for id := range r.subscribers {
		subscribers[id] = true
	}
	subscriptions = make(map[string]bool, len(r.subscriptions))
	for id := range r.subscriptions {
		subscriptions[id] = true
	}
	return subscribers, subscriptions
}
