package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ConnState is one of the three socket states of spec.md §3.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

// sharedState holds the fields spec.md §5 requires to be safely
// readable from arbitrary goroutines without going through the serial
// task: connection state, ack flag, reconnect configuration, and last
// error. Guarded by a plain Mutex (not RWMutex): reads and writes are
// both cheap single-field operations, so read/write contention is not
// worth a reader-preferring lock here (contrast registry.go, where
// dispatch is a hot path under many concurrent sinks).
type sharedState struct {
	mu          sync.Mutex
	state       ConnState
	acked       bool
	reconnect   bool
	reconnected bool
	lastErr     error
}

func (s *sharedState) snapshot() (state ConnState, acked bool, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.acked, s.lastErr
}

func (s *sharedState) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected
}

func (s *sharedState) getReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnect
}

func (s *sharedState) setReconnect(v bool) {
	s.mu.Lock()
	s.reconnect = v
	s.mu.Unlock()
}

// stateMachine drives the transitions of spec.md §4.4. Its event
// handlers (handle*) are invoked only from the Facade's serial task, so
// they may freely mutate queue/registry without additional locking;
// only sharedState is touched from other goroutines and is guarded
// accordingly.
type stateMachine struct {
	sharedState

	sp       SubProtocol
	queue    *outboundQueue
	reg      *registry
	socket   Socket
	logger   zerolog.Logger
	delegate Delegate

	allowSendingDuplicates bool
	connectingPayload      json.RawMessage

	backoffPolicy backoff.BackOff

	// writeDirect writes a message straight to the socket, bypassing the
	// queue (used for connection_init and pong per spec.md §3).
	writeDirect func(ctx context.Context, text string) error
	// writeOrQueue writes when acked, else stages in the queue.
	writeOrQueue func(ctx context.Context, text string)
	// scheduleReconnect arranges for a reconnect attempt after the
	// backoff policy's next interval, on the serial task.
	scheduleReconnect func(delay time.Duration)
}

func newStateMachine(sp SubProtocol, queue *outboundQueue, reg *registry, socket Socket, logger zerolog.Logger) *stateMachine {
	return &stateMachine{
		sp:                     sp,
		queue:                  queue,
		reg:                    reg,
		socket:                 socket,
		logger:                 logger,
		allowSendingDuplicates: true,
	}
}

func (sm *stateMachine) resetBackoff() {
	if eb, ok := sm.backoffPolicy.(*backoff.ExponentialBackOff); ok {
		eb.Reset()
	}
}

// handleSocketConnected implements the SocketConnected row of spec.md
// §4.4's transition table.
func (sm *stateMachine) handleSocketConnected(ctx context.Context) {
	sm.mu.Lock()
	sm.lastErr = nil
	sm.acked = false
	sm.state = Connected
	wasReconnected := sm.reconnected
	sm.mu.Unlock()

	sm.resetBackoff()

	initMsg, err := encodeConnectionInit(sm.connectingPayload)
	if err == nil {
		_ = sm.writeDirect(ctx, initMsg)
	}

	if wasReconnected {
		sm.logger.Debug().Msg("socket reconnected")
		sm.replaySubscriptions(ctx)
		if sm.delegate != nil {
			sm.delegate.DidReconnect()
		}
	} else {
		sm.logger.Debug().Msg("socket connected")
		if sm.delegate != nil {
			sm.delegate.DidConnect()
		}
	}

	sm.mu.Lock()
	sm.reconnected = true
	sm.mu.Unlock()
}

// replaySubscriptions re-sends every active subscription's subscribe
// message after a reconnect (spec.md §4.4's replay algorithm).
func (sm *stateMachine) replaySubscriptions(ctx context.Context) {
	for _, sub := range sm.reg.replayMessages() {
		if sm.allowSendingDuplicates {
			sm.writeOrQueue(ctx, sub.Message)
			continue
		}
		if key, ok := sm.queue.findByContent(sub.Message); ok {
			k := key
			sm.queue.enqueue(sub.Message, &k)
			continue
		}
		sm.writeOrQueue(ctx, sub.Message)
	}
}

// handleInboundAck implements the InboundAck row.
func (sm *stateMachine) handleInboundAck(ctx context.Context) {
	sm.mu.Lock()
	sm.acked = true
	sm.mu.Unlock()
	sm.logger.Debug().Msg("connection_ack received")
	sm.drainQueue(ctx)
}

// handleKeepAliveLike implements the InboundKeepAlive/StartAck/Pong row:
// these all just prove the socket is live and trigger a drain.
func (sm *stateMachine) handleKeepAliveLike(ctx context.Context) {
	sm.drainQueue(ctx)
}

// handleInboundPing implements the InboundPing row: reply pong, then
// drain, even if not yet acked (spec.md scenario S6).
func (sm *stateMachine) handleInboundPing(ctx context.Context) {
	pong, err := encodePong()
	if err == nil {
		_ = sm.writeDirect(ctx, pong)
	}
	sm.drainQueue(ctx)
}

func (sm *stateMachine) drainQueue(ctx context.Context) {
	entries := sm.queue.drain()
	if len(entries) > 0 {
		sm.logger.Debug().Int("count", len(entries)).Msg("draining outbound queue")
	}
	for _, entry := range entries {
		_ = sm.writeDirect(ctx, entry.Message)
	}
}

// handleSocketDisconnect implements the three SocketDisconnect rows.
func (sm *stateMachine) handleSocketDisconnect(ctx context.Context, err error) {
	sm.mu.Lock()
	prevState := sm.state
	sm.mu.Unlock()

	if err == nil {
		sm.logger.Debug().Msg("socket disconnected cleanly")
		sm.mu.Lock()
		sm.lastErr = nil
		sm.state = Disconnected
		sm.acked = false
		reconnect := sm.reconnect
		sm.mu.Unlock()

		if sm.delegate != nil {
			sm.delegate.DidDisconnect(nil)
		}
		if reconnect {
			sm.scheduleReconnect(sm.nextBackoffDelay())
		}
		return
	}

	if prevState == Failed {
		// Suppress duplicate-error storms: capture the error but do not
		// re-run disconnection handling (spec.md §4.4).
		sm.logger.Debug().Err(err).Msg("suppressing duplicate disconnect error while already failed")
		sm.mu.Lock()
		sm.lastErr = &NetworkError{Inner: err}
		sm.mu.Unlock()
		return
	}

	sm.logger.Warn().Err(err).Msg("socket disconnected with error")
	netErr := &NetworkError{Inner: err}
	sm.reg.broadcastError(netErr)

	sm.mu.Lock()
	sm.lastErr = netErr
	sm.acked = false
	reconnect := sm.reconnect
	sm.mu.Unlock()

	if sm.delegate != nil {
		sm.delegate.DidDisconnect(netErr)
	}

	if reconnect {
		sm.mu.Lock()
		sm.state = Disconnected
		sm.mu.Unlock()
		sm.scheduleReconnect(sm.nextBackoffDelay())
		return
	}

	sm.mu.Lock()
	sm.state = Failed
	sm.mu.Unlock()
}

func (sm *stateMachine) nextBackoffDelay() time.Duration {
	if sm.backoffPolicy == nil {
		return 500 * time.Millisecond
	}
	d := sm.backoffPolicy.NextBackOff()
	if d == backoff.Stop {
		return 500 * time.Millisecond
	}
	return d
}

// beforeReconnectAttempt implements spec.md §4.4's "before reconnecting,
// transition Failed -> Disconnected" rule, so any error during the
// retry is treated as a first disconnect rather than suppressed.
func (sm *stateMachine) beforeReconnectAttempt() {
	sm.mu.Lock()
	if sm.state == Failed {
		sm.state = Disconnected
	}
	sm.mu.Unlock()
}
