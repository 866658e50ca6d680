package transport

import "sort"

// queueEntry is one staged outbound message: spec.md §3 "Queue entry".
type queueEntry struct {
	Key     int
	Message string
}

// outboundQueue stages messages produced before the server has
// acknowledged the connection (spec.md §4.2). Keys are strictly
// increasing within a connection attempt unless the caller reuses one
// explicitly (the reconnect-replay in-place-overwrite path of spec.md
// §4.4).
type outboundQueue struct {
	entries map[int]string
	nextKey int
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{entries: make(map[int]string)}
}

// enqueue stages message under key, or under a freshly allocated key
// (max existing + 1, or 1 if empty) when key is nil. It returns the key
// actually used.
func (q *outboundQueue) enqueue(message string, key *int) int {
	var k int
	if key != nil {
		k = *key
	} else {
		k = q.nextKey + 1
	}
	q.entries[k] = message
	if k > q.nextKey {
		q.nextKey = k
	}
	return k
}

// findByContent returns the key of an existing entry whose message is
// identical to want, for the reconnect-replay overwrite path of
// spec.md §4.4. ok is false if no such entry exists.
func (q *outboundQueue) findByContent(want string) (key int, ok bool) {
	for k, v := range q.entries {
		if v == want {
			return k, true
		}
	}
	return 0, false
}

// drain returns every staged entry in ascending key order and empties
// the queue. The operation is a single call relative to the caller, so
// as long as the caller holds whatever serializes access to the queue,
// drain is atomic relative to concurrent enqueues (spec.md §5).
func (q *outboundQueue) drain() []queueEntry {
	if len(q.entries) == 0 {
		return nil
	}
	out := make([]queueEntry, 0, len(q.entries))
	for k, v := range q.entries {
		out = append(out, queueEntry{Key: k, Message: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	q.entries = make(map[int]string)
	q.nextKey = 0
	return out
}

// len reports the number of currently staged entries, for logging.
func (q *outboundQueue) len() int { return len(q.entries) }
