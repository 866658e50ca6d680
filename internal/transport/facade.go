// Package transport implements the core of a GraphQL subscription
// transport over a single WebSocket connection: see SPEC_FULL.md.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sadopc/gqlws/internal/config"
	"github.com/sadopc/gqlws/internal/idgen"
	"github.com/sadopc/gqlws/internal/logging"
)

// Transport is the public facade of spec.md §4.5, composing the Codec,
// Outbound Queue, Subscriber Registry and Connection State Machine
// behind a single serial task.
type Transport struct {
	sm     *stateMachine
	socket Socket
	sp     SubProtocol

	requestBody RequestBody
	idCreator   IDCreator
	logger      zerolog.Logger

	clientName    string
	clientVersion string

	group *errgroup.Group
	gctx  context.Context

	cmds chan func(context.Context)
	stop context.CancelFunc
}

// NewTransport constructs a Transport. The Socket collaborator must be
// supplied via opts.Socket (use NewSocket for the default coder/
// websocket-backed adapter) already pointed at the target URL.
func NewTransport(opts Options) (*Transport, error) {
	if opts.SubProtocol != SubProtocolGraphQLWS && opts.SubProtocol != SubProtocolGraphQLTransportWS {
		return nil, ErrUnsupportedSubProtocol
	}
	if opts.Socket == nil {
		return nil, fmt.Errorf("gqlws: Options.Socket is required")
	}
	opts.setDefaults(config.Load())

	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = logging.New(nil)
	}

	idc := opts.IDCreator
	if idc == nil {
		idc = idgen.New().NextID
	}

	q := newOutboundQueue()
	reg := newRegistry()
	sm := newStateMachine(opts.SubProtocol, q, reg, opts.Socket, logger)
	sm.delegate = opts.Delegate
	sm.allowSendingDuplicates = *opts.AllowSendingDuplicates
	sm.connectingPayload = opts.ConnectingPayload
	sm.reconnect = opts.Reconnect
	sm.backoffPolicy = newBackoffPolicy(opts.ReconnectionInterval)

	t := &Transport{
		sm:            sm,
		socket:        opts.Socket,
		sp:            opts.SubProtocol,
		requestBody:   opts.RequestBody,
		idCreator:     idc,
		logger:        logger,
		clientName:    opts.ClientName,
		clientVersion: opts.ClientVersion,
		cmds:          make(chan func(context.Context), 64),
	}

	t.applyIdentificationHeaders()

	ctx, cancel := context.WithCancel(context.Background())
	t.stop = cancel
	group, gctx := errgroup.WithContext(ctx)
	t.group = group
	t.gctx = gctx

	sm.writeDirect = t.writeDirect
	sm.writeOrQueue = t.writeOrQueue
	sm.scheduleReconnect = t.scheduleReconnect

	opts.Socket.SetDelegate(&socketBridge{t: t})

	group.Go(func() error {
		t.run(gctx)
		return nil
	})

	if *opts.ConnectOnInit {
		t.connectNow(ctx)
	}

	return t, nil
}

func newBackoffPolicy(initial time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.RandomizationFactor = 0 // first delay is exactly initial, never less
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0 // never give up
	eb.Reset()
	return eb
}

func (t *Transport) applyIdentificationHeaders() {
	req := t.socket.Request()
	if req.Headers == nil {
		req.Headers = make(http.Header)
	}
	for k, v := range identificationHeaders(t.clientName, t.clientVersion) {
		req.Headers.Set(k, v)
	}
	req.SubProtocols = []string{t.sp.WireName()}
}

// run is the serial task: every mutation of queue/registry/state beyond
// the thread-safe sharedState fields flows through here, in submission
// order.
func (t *Transport) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-t.cmds:
			if !ok {
				return
			}
			cmd(ctx)
		}
	}
}

func (t *Transport) submit(cmd func(context.Context)) {
	select {
	case t.cmds <- cmd:
	case <-t.gctx.Done():
	}
}

// submitSync submits cmd and blocks until it has run, for operations
// (Close, the internal reconnect driven by UpdateHeaders/
// UpdateConnectingPayload) that must observe completion before
// returning.
func (t *Transport) submitSync(cmd func(context.Context)) {
	done := make(chan struct{})
	t.submit(func(ctx context.Context) {
		cmd(ctx)
		close(done)
	})
	select {
	case <-done:
	case <-t.gctx.Done():
	}
}

func (t *Transport) writeDirect(ctx context.Context, text string) error {
	return t.socket.Write(ctx, text)
}

// writeOrQueue implements spec.md §3's global invariant: while not yet
// acked, only connection_init/pong bypass the queue.
func (t *Transport) writeOrQueue(ctx context.Context, text string) {
	_, acked, _ := t.sm.snapshot()
	if acked {
		_ = t.writeDirect(ctx, text)
		return
	}
	t.sm.queue.enqueue(text, nil)
}

func (t *Transport) scheduleReconnect(delay time.Duration) {
	t.logger.Debug().Dur("delay", delay).Msg("scheduling reconnect")
	t.group.Go(func() error {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-t.gctx.Done():
			return nil
		}
		t.submit(func(ctx context.Context) {
			t.logger.Debug().Msg("attempting reconnect")
			t.sm.beforeReconnectAttempt()
			t.connectNow(ctx)
		})
		return nil
	})
}

func (t *Transport) connectNow(ctx context.Context) {
	if err := t.socket.Connect(ctx); err != nil {
		t.sm.mu.Lock()
		t.sm.lastErr = &NetworkError{Inner: err}
		reconnect := t.sm.reconnect
		t.sm.mu.Unlock()
		if reconnect {
			t.scheduleReconnect(t.sm.nextBackoffDelay())
		}
	}
}

// socketBridge adapts Socket delegate callbacks onto the serial task.
type socketBridge struct{ t *Transport }

func (b *socketBridge) OnConnect() {
	b.t.submit(func(ctx context.Context) { b.t.sm.handleSocketConnected(ctx) })
}

func (b *socketBridge) OnDisconnect(err error) {
	b.t.submit(func(ctx context.Context) { b.t.sm.handleSocketDisconnect(ctx, err) })
}

func (b *socketBridge) OnText(text string) {
	b.t.submit(func(ctx context.Context) { b.t.dispatchInbound(ctx, text) })
}

func (b *socketBridge) OnBinary(data []byte) {
	b.t.logger.Warn().Int("bytes", len(data)).Msg("dropping unexpected binary frame")
}

// logDispatchMiss logs an inbound message that named an id with no
// registered subscriber, per SPEC_FULL.md §4.9's dispatch-miss event.
func (t *Transport) logDispatchMiss(id string, found bool) {
	if !found {
		t.logger.Debug().Str("id", id).Msg("dispatch: no subscriber registered for id")
	}
}

// dispatchInbound implements spec.md §4.6's inbound dispatch table.
func (t *Transport) dispatchInbound(ctx context.Context, raw string) {
	res := decode(raw)
	if res.Err != nil {
		t.sm.reg.broadcastError(res.Err)
		return
	}

	switch res.Type {
	case kindData, kindNext:
		if res.ID == "" {
			t.sm.reg.broadcastError(&UnprocessedMessageError{Raw: raw})
			return
		}
		if len(res.Payload) == 0 {
			t.logDispatchMiss(res.ID, t.sm.reg.dispatch(res.ID, Result{Err: &NeitherErrorNorPayloadReceivedError{ID: res.ID}}))
			return
		}
		t.logDispatchMiss(res.ID, t.sm.reg.dispatch(res.ID, Result{Payload: res.Payload}))

	case kindError:
		if res.ID == "" {
			t.sm.reg.broadcastError(&UnprocessedMessageError{Raw: raw})
			return
		}
		if len(res.Payload) == 0 {
			t.logDispatchMiss(res.ID, t.sm.reg.dispatch(res.ID, Result{Err: &NeitherErrorNorPayloadReceivedError{ID: res.ID}}))
			return
		}
		t.logDispatchMiss(res.ID, t.sm.reg.dispatch(res.ID, Result{Err: fmt.Errorf("gqlws: operation %s: %s", res.ID, string(res.Payload))}))

	case kindComplete:
		if res.ID == "" {
			t.sm.reg.broadcastError(&UnprocessedMessageError{Raw: raw})
			return
		}
		t.sm.reg.completeIfOneShot(res.ID)

	case kindConnectionAck:
		t.sm.handleInboundAck(ctx)

	case kindConnectionKeepAlive, kindStartAck:
		t.sm.handleKeepAliveLike(ctx)

	case kindPong:
		t.sm.handleKeepAliveLike(ctx)

	case kindPing:
		t.sm.handleInboundPing(ctx)

	default:
		if isOutboundEcho(res.Type) {
			t.sm.reg.broadcastError(&UnprocessedMessageError{Raw: raw})
		}
	}
}

// Send serializes op, obtains an id, and writes (or queues) the
// operation's start message. It returns "" if the sticky error is set
// (spec.md §7 "fails fast with the sticky error").
func (t *Transport) Send(op Operation, sink Sink) (string, error) {
	_, _, lastErr := t.sm.snapshot()
	if lastErr != nil {
		return "", lastErr
	}

	body, err := t.requestBody(op)
	if err != nil {
		return "", err
	}

	id := t.idCreator()
	msg, err := encodeStart(t.sp, id, body)
	if err != nil {
		return "", err
	}

	subscribeMsg := ""
	if IsSubscription(op.Query) {
		subscribeMsg = msg
	}
	t.sm.reg.register(id, sink, subscribeMsg)

	t.submit(func(ctx context.Context) { t.writeOrQueue(ctx, msg) })
	return id, nil
}

// Unsubscribe cancels operation id: writes a stop/complete message and
// removes its subscriber and subscription records. Idempotent: an id
// with no registered subscriber (already unsubscribed, or a one-shot the
// server has completed) writes nothing.
func (t *Transport) Unsubscribe(id string) {
	if subs, _ := t.sm.reg.snapshot(); !subs[id] {
		return
	}
	t.sm.reg.remove(id)
	msg, err := encodeStop(t.sp, id)
	if err != nil {
		return
	}
	t.submit(func(ctx context.Context) { t.writeOrQueue(ctx, msg) })
}

// Ping forwards to the Socket's native ping, orthogonal to GraphQL-level
// ping/pong frames.
func (t *Transport) Ping(data []byte, completion func(error)) {
	t.socket.WritePing(context.Background(), data, completion)
}

// UpdateHeaders mutates the socket request's headers. If
// reconnectIfConnected is true and the transport is currently connected,
// it triggers an internal reconnect with Reconnect temporarily disabled
// so the mid-flight teardown is not itself retried.
func (t *Transport) UpdateHeaders(headers map[string]string, reconnectIfConnected bool) {
	t.submit(func(context.Context) {
		req := t.socket.Request()
		if req.Headers == nil {
			req.Headers = make(http.Header)
		}
		for k, v := range headers {
			req.Headers.Set(k, v)
		}
	})
	t.maybeInternalReconnect(reconnectIfConnected)
}

// UpdateConnectingPayload sets the connection_init payload sent on the
// next (re)connect.
func (t *Transport) UpdateConnectingPayload(payload json.RawMessage, reconnectIfConnected bool) {
	t.submit(func(ctx context.Context) { t.sm.connectingPayload = payload })
	t.maybeInternalReconnect(reconnectIfConnected)
}

func (t *Transport) maybeInternalReconnect(reconnectIfConnected bool) {
	if !reconnectIfConnected || !t.sm.isConnected() {
		return
	}
	t.submitSync(func(ctx context.Context) {
		prev := t.sm.getReconnect()
		t.sm.setReconnect(false)
		_ = t.socket.Disconnect(0)
		t.sm.setReconnect(prev)
		t.connectNow(ctx)
	})
}

// IsConnected reports whether state is Connected (ack-independent).
func (t *Transport) IsConnected() bool { return t.sm.isConnected() }

// Error returns the last captured error, or nil.
func (t *Transport) Error() error {
	_, _, err := t.sm.snapshot()
	return err
}

// Pause disconnects without reconnecting, using a forced 2s timeout
// (spec.md §4.4 "Facade.pause").
func (t *Transport) Pause() {
	t.submitSync(func(ctx context.Context) {
		t.sm.setReconnect(false)
		_ = t.socket.Disconnect(2 * time.Second)
	})
}

// Resume reconnects, optionally re-enabling automatic reconnection.
func (t *Transport) Resume(autoReconnect bool) {
	t.submit(func(ctx context.Context) {
		t.sm.setReconnect(autoReconnect)
		t.connectNow(ctx)
	})
}

// Close tears the transport down: disables reconnection, best-effort
// sends connection_terminate, clears queued messages and subscription
// records, disconnects the socket without a forced timeout, detaches
// the delegate, and drops all subscriber sinks without invoking them.
func (t *Transport) Close() {
	t.submitSync(func(ctx context.Context) {
		t.sm.setReconnect(false)

		if msg, err := encodeConnectionTerminate(); err == nil {
			_ = t.writeDirect(ctx, msg)
		}

		t.sm.queue.drain()
		t.sm.reg.mu.Lock()
		t.sm.reg.subscribers = make(map[string]Sink)
		t.sm.reg.subscriptions = make(map[string]string)
		t.sm.reg.mu.Unlock()

		_ = t.socket.Disconnect(0)
		t.socket.SetDelegate(nil)
	})

	t.stop()
	_ = t.group.Wait()
}
