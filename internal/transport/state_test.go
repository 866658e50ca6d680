package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// recordingWriter stubs the stateMachine's writeDirect/writeOrQueue/
// scheduleReconnect collaborators so handle* methods can be exercised
// without a real socket or serial task.
type recordingWriter struct {
	mu              sync.Mutex
	direct          []string
	queued          []string
	reconnectDelays []time.Duration
}

func (w *recordingWriter) writeDirect(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.direct = append(w.direct, text)
	return nil
}

func (w *recordingWriter) writeOrQueue(_ context.Context, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queued = append(w.queued, text)
}

func (w *recordingWriter) scheduleReconnect(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reconnectDelays = append(w.reconnectDelays, d)
}

type recordingDelegate struct {
	mu          sync.Mutex
	connects    int
	reconnects  int
	disconnects []error
}

func (d *recordingDelegate) DidConnect() {
	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
}

func (d *recordingDelegate) DidReconnect() {
	d.mu.Lock()
	d.reconnects++
	d.mu.Unlock()
}

func (d *recordingDelegate) DidDisconnect(err error) {
	d.mu.Lock()
	d.disconnects = append(d.disconnects, err)
	d.mu.Unlock()
}

func (d *recordingDelegate) OnPing([]byte) {}
func (d *recordingDelegate) OnPong([]byte) {}

func newTestStateMachine() (*stateMachine, *recordingWriter, *recordingDelegate) {
	sm := newStateMachine(SubProtocolGraphQLTransportWS, newOutboundQueue(), newRegistry(), nil, zerolog.Nop())
	w := &recordingWriter{}
	d := &recordingDelegate{}
	sm.writeDirect = w.writeDirect
	sm.writeOrQueue = w.writeOrQueue
	sm.scheduleReconnect = w.scheduleReconnect
	sm.delegate = d
	sm.backoffPolicy = backoff.NewExponentialBackOff()
	return sm, w, d
}

func TestHandleSocketConnectedFirstTime(t *testing.T) {
	sm, w, d := newTestStateMachine()

	sm.handleSocketConnected(context.Background())

	state, acked, lastErr := sm.snapshot()
	if state != Connected {
		t.Errorf("state = %v, want Connected", state)
	}
	if acked {
		t.Error("acked should be false immediately after SocketConnected, before an ack arrives")
	}
	if lastErr != nil {
		t.Errorf("lastErr = %v, want nil", lastErr)
	}
	if d.connects != 1 || d.reconnects != 0 {
		t.Errorf("connects=%d reconnects=%d, want 1/0", d.connects, d.reconnects)
	}
	if len(w.direct) != 1 {
		t.Fatalf("expected exactly one direct write (connection_init), got %d", len(w.direct))
	}
	if decode(w.direct[0]).Type != kindConnectionInit {
		t.Errorf("first direct write type = %v, want connection_init", decode(w.direct[0]).Type)
	}
}

func TestHandleSocketConnectedSecondTimeIsAReconnect(t *testing.T) {
	sm, _, d := newTestStateMachine()
	sm.reg.register("sub-1", func(Result) {}, `{"id":"sub-1","type":"subscribe"}`)

	sm.handleSocketConnected(context.Background())
	sm.handleSocketConnected(context.Background())

	if d.connects != 1 {
		t.Errorf("connects = %d, want 1 (only the first SocketConnected)", d.connects)
	}
	if d.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1 (the second SocketConnected)", d.reconnects)
	}
}

func TestReplaySubscriptionsAllowDuplicates(t *testing.T) {
	sm, w, _ := newTestStateMachine()
	sm.allowSendingDuplicates = true
	sm.reg.register("sub-1", func(Result) {}, `{"id":"sub-1","type":"subscribe"}`)

	sm.replaySubscriptions(context.Background())

	if len(w.queued) != 1 {
		t.Fatalf("expected the subscribe message to be replayed via writeOrQueue, got %d calls", len(w.queued))
	}
}

func TestReplaySubscriptionsOrdersByAscendingID(t *testing.T) {
	sm, w, _ := newTestStateMachine()
	sm.allowSendingDuplicates = true
	// Registered out of order: a correct replay must not depend on map
	// iteration order (spec.md §8 scenario S2).
	for _, id := range []string{"5", "1", "9", "3"} {
		sm.reg.register(id, func(Result) {}, `{"id":"`+id+`","type":"subscribe"}`)
	}

	sm.replaySubscriptions(context.Background())

	if len(w.queued) != 4 {
		t.Fatalf("expected 4 replayed messages, got %d", len(w.queued))
	}
	want := []string{"1", "3", "5", "9"}
	for i, msg := range w.queued {
		if decode(msg).ID != want[i] {
			t.Errorf("queued[%d] id = %q, want %q", i, decode(msg).ID, want[i])
		}
	}
}

func TestReplaySubscriptionsForbidDuplicatesOverwritesStagedEntry(t *testing.T) {
	sm, w, _ := newTestStateMachine()
	sm.allowSendingDuplicates = false
	msg := `{"id":"sub-1","type":"subscribe"}`
	sm.reg.register("sub-1", func(Result) {}, msg)
	sm.queue.enqueue(msg, nil) // already staged from before the disconnect

	sm.replaySubscriptions(context.Background())

	if len(w.queued) != 0 {
		t.Errorf("expected no writeOrQueue call when an identical message is already staged, got %d", len(w.queued))
	}
	if sm.queue.len() != 1 {
		t.Errorf("queue length = %d, want 1 (overwritten in place, not duplicated)", sm.queue.len())
	}
}

func TestReplaySubscriptionsForbidDuplicatesFallsBackWhenNothingStaged(t *testing.T) {
	sm, w, _ := newTestStateMachine()
	sm.allowSendingDuplicates = false
	msg := `{"id":"sub-1","type":"subscribe"}`
	sm.reg.register("sub-1", func(Result) {}, msg)

	sm.replaySubscriptions(context.Background())

	if len(w.queued) != 1 {
		t.Errorf("expected a writeOrQueue fallback when nothing is staged, got %d calls", len(w.queued))
	}
}

func TestHandleInboundAckDrainsQueue(t *testing.T) {
	sm, w, _ := newTestStateMachine()
	sm.queue.enqueue("staged-1", nil)
	sm.queue.enqueue("staged-2", nil)

	sm.handleInboundAck(context.Background())

	_, acked, _ := sm.snapshot()
	if !acked {
		t.Error("acked should be true after handleInboundAck")
	}
	if len(w.direct) != 2 {
		t.Fatalf("expected the staged entries to be flushed via writeDirect, got %d", len(w.direct))
	}
	if sm.queue.len() != 0 {
		t.Error("queue should be empty after the ack drains it")
	}
}

func TestHandleInboundPingRepliesAndDrainsEvenUnacked(t *testing.T) {
	sm, w, _ := newTestStateMachine()
	sm.queue.enqueue("staged", nil)

	sm.handleInboundPing(context.Background())

	_, acked, _ := sm.snapshot()
	if acked {
		t.Error("handling an inbound ping should not itself set acked")
	}
	if len(w.direct) != 2 {
		t.Fatalf("expected a pong plus the drained entry, got %d direct writes", len(w.direct))
	}
	if decode(w.direct[0]).Type != kindPong {
		t.Errorf("first direct write = %v, want pong", decode(w.direct[0]).Type)
	}
}

func TestHandleSocketDisconnectClean(t *testing.T) {
	sm, w, d := newTestStateMachine()
	sm.reconnect = true
	sm.state = Connected
	sm.acked = true

	sm.handleSocketDisconnect(context.Background(), nil)

	state, acked, lastErr := sm.snapshot()
	if state != Disconnected || acked || lastErr != nil {
		t.Errorf("got state=%v acked=%v lastErr=%v, want Disconnected/false/nil", state, acked, lastErr)
	}
	if len(d.disconnects) != 1 || d.disconnects[0] != nil {
		t.Errorf("disconnects = %v, want a single nil entry", d.disconnects)
	}
	if len(w.reconnectDelays) != 1 {
		t.Error("a clean disconnect with reconnect enabled should schedule a reconnect")
	}
}

func TestHandleSocketDisconnectFirstFailureBroadcastsAndFails(t *testing.T) {
	sm, _, d := newTestStateMachine()
	sm.reconnect = false
	sm.state = Connected
	var got error
	sm.reg.register("op-1", func(r Result) { got = r.Err }, "")

	boom := errors.New("boom")
	sm.handleSocketDisconnect(context.Background(), boom)

	state, _, lastErr := sm.snapshot()
	if state != Failed {
		t.Errorf("state = %v, want Failed (reconnect disabled)", state)
	}
	if lastErr == nil || !errors.Is(lastErr, boom) {
		t.Errorf("lastErr = %v, want it to wrap %v", lastErr, boom)
	}
	if got == nil {
		t.Error("the registered subscriber should have been broadcast the error")
	}
	if len(d.disconnects) != 1 {
		t.Errorf("expected exactly one DidDisconnect call, got %d", len(d.disconnects))
	}
}

func TestHandleSocketDisconnectSuppressesFailedToFailedCascade(t *testing.T) {
	sm, _, d := newTestStateMachine()
	sm.reconnect = false
	sm.state = Connected
	calls := 0
	sm.reg.register("op-1", func(Result) { calls++ }, "")

	sm.handleSocketDisconnect(context.Background(), errors.New("first failure"))
	if calls != 1 {
		t.Fatalf("after the first failure, subscriber should have been notified once, got %d", calls)
	}
	if len(d.disconnects) != 1 {
		t.Fatalf("expected one DidDisconnect after the first failure, got %d", len(d.disconnects))
	}

	// A second error while already Failed must be captured but not
	// re-broadcast or re-notify: spec.md's redundant-error-cascade
	// suppression.
	sm.handleSocketDisconnect(context.Background(), errors.New("second failure"))

	if calls != 1 {
		t.Errorf("a second disconnect while Failed should not re-broadcast, got %d calls", calls)
	}
	if len(d.disconnects) != 1 {
		t.Errorf("a second disconnect while Failed should not fire DidDisconnect again, got %d", len(d.disconnects))
	}

	_, _, lastErr := sm.snapshot()
	if lastErr == nil || lastErr.Error() == "" {
		t.Error("the second error should still be captured as lastErr")
	}
}

func TestBeforeReconnectAttemptClearsFailed(t *testing.T) {
	sm, _, _ := newTestStateMachine()
	sm.state = Failed

	sm.beforeReconnectAttempt()

	state, _, _ := sm.snapshot()
	if state != Disconnected {
		t.Errorf("state = %v, want Disconnected", state)
	}
}

func TestBeforeReconnectAttemptIsNoopWhenNotFailed(t *testing.T) {
	sm, _, _ := newTestStateMachine()
	sm.state = Connected

	sm.beforeReconnectAttempt()

	state, _, _ := sm.snapshot()
	if state != Connected {
		t.Errorf("state = %v, want unchanged Connected", state)
	}
}

func TestNextBackoffDelayDefaultsWhenNoPolicy(t *testing.T) {
	sm, _, _ := newTestStateMachine()
	sm.backoffPolicy = nil
	if d := sm.nextBackoffDelay(); d != 500*time.Millisecond {
		t.Errorf("nextBackoffDelay() = %v, want 500ms", d)
	}
}

func TestNextBackoffDelayUsesPolicy(t *testing.T) {
	sm, _, _ := newTestStateMachine()
	sm.backoffPolicy = backoff.NewConstantBackOff(250 * time.Millisecond)
	if d := sm.nextBackoffDelay(); d != 250*time.Millisecond {
		t.Errorf("nextBackoffDelay() = %v, want 250ms", d)
	}
}
