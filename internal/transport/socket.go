package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// SocketRequest is the mutable URL+headers+sub-protocol list a Socket
// dials with. UpdateHeaders mutates its Headers in place; the change
// takes effect on the next Connect (spec.md §4.5).
type SocketRequest struct {
	URL          string
	Headers      http.Header
	SubProtocols []string
}

// SocketDelegate receives lifecycle and data notifications from a
// Socket. It is the upward half of the contract in spec.md §6.3; the
// downward half is the Socket interface below.
type SocketDelegate interface {
	OnConnect()
	OnDisconnect(err error)
	OnText(text string)
	OnBinary(data []byte)
}

// Socket is the abstract WebSocket collaborator the core depends on
// (spec.md §6.3). It is deliberately minimal: frame I/O, TLS and
// optional SOCKS proxying are the collaborator's concern, not the
// core's.
type Socket interface {
	// Request returns the mutable dial request. Callers may edit its
	// Headers/SubProtocols between calls to Connect.
	Request() *SocketRequest
	SetDelegate(d SocketDelegate)
	Connect(ctx context.Context) error
	// Disconnect closes the connection. If forceTimeout is non-zero, the
	// close is forced after that duration even if a graceful close
	// handshake has not completed (used by Facade.pause, spec.md §4.4).
	Disconnect(forceTimeout time.Duration) error
	Write(ctx context.Context, text string) error
	// WritePing issues a native (non-GraphQL) ping and invokes completion
	// with the result, orthogonal to the GraphQL-level ping/pong frames.
	WritePing(ctx context.Context, data []byte, completion func(error))
}

// SOCKSCapable is an optional capability a Socket implementation may
// satisfy. Callers must type-assert for it; an implementation that does
// not satisfy it is treated as if SOCKSProxyEnabled always returns
// false and SetSOCKSProxyEnabled is a no-op (spec.md §6.3).
type SOCKSCapable interface {
	SOCKSProxyEnabled() bool
	SetSOCKSProxyEnabled(bool)
}

// SOCKSProxyEnabled feature-detects SOCKS support on s, returning false
// when s does not implement SOCKSCapable.
func SOCKSProxyEnabled(s Socket) bool {
	if sc, ok := s.(SOCKSCapable); ok {
		return sc.SOCKSProxyEnabled()
	}
	return false
}

// SetSOCKSProxyEnabled feature-detects SOCKS support on s, no-op'ing
// when s does not implement SOCKSCapable.
func SetSOCKSProxyEnabled(s Socket, enabled bool) {
	if sc, ok := s.(SOCKSCapable); ok {
		sc.SetSOCKSProxyEnabled(enabled)
	}
}

// wsSocket is the default Socket implementation, built on
// github.com/coder/websocket. It does not implement SOCKSCapable: the
// underlying client has no SOCKS dialer hook, so SOCKSProxyEnabled/
// SetSOCKSProxyEnabled feature-detect it away for free.
type wsSocket struct {
	mu       sync.Mutex
	req      SocketRequest
	delegate SocketDelegate
	conn     *websocket.Conn
	cancel   context.CancelFunc
}

// NewSocket returns the default Socket adapter, dialing url with the
// given initial headers. Sub-protocols are set separately via
// Request().SubProtocols before the first Connect.
func NewSocket(url string, headers http.Header) Socket {
	if headers == nil {
		headers = make(http.Header)
	}
	return &wsSocket{req: SocketRequest{URL: url, Headers: headers}}
}

func (s *wsSocket) Request() *SocketRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &s.req
}

func (s *wsSocket) SetDelegate(d SocketDelegate) {
	s.mu.Lock()
	s.delegate = d
	s.mu.Unlock()
}

func (s *wsSocket) Connect(ctx context.Context) error {
	s.mu.Lock()
	req := s.req
	s.mu.Unlock()

	readCtx, cancel := context.WithCancel(context.Background())

	conn, _, err := websocket.Dial(ctx, req.URL, &websocket.DialOptions{
		HTTPHeader:   req.Headers,
		Subprotocols: req.SubProtocols,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("dialing %s: %w", req.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	delegate := s.delegate
	s.mu.Unlock()

	if delegate != nil {
		delegate.OnConnect()
	}

	go s.readLoop(readCtx, conn, delegate)
	return nil
}

func (s *wsSocket) readLoop(ctx context.Context, conn *websocket.Conn, delegate SocketDelegate) {
	for {
		typ, reader, err := conn.Reader(ctx)
		if err != nil {
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			if delegate != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					delegate.OnDisconnect(nil)
				} else {
					delegate.OnDisconnect(err)
				}
			}
			return
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			if delegate != nil {
				delegate.OnDisconnect(fmt.Errorf("reading message body: %w", err))
			}
			return
		}

		switch typ {
		case websocket.MessageText:
			if delegate != nil {
				delegate.OnText(string(data))
			}
		case websocket.MessageBinary:
			if delegate != nil {
				delegate.OnBinary(data)
			}
		}
	}
}

func (s *wsSocket) Disconnect(forceTimeout time.Duration) error {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	if forceTimeout > 0 {
		timer := time.AfterFunc(forceTimeout, func() { _ = conn.CloseNow() })
		defer timer.Stop()
	}

	err := conn.Close(websocket.StatusNormalClosure, "client closed")
	if cancel != nil {
		cancel()
	}
	return err
}

func (s *wsSocket) Write(ctx context.Context, text string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, []byte(text))
}

// WritePing ignores data: coder/websocket's control-frame Ping carries no
// application payload, so the native ping here cannot echo one. Callers
// wanting a payload round-trip should use the GraphQL-level ping/pong
// frames instead (spec.md §3's PingMessage/PongMessage).
func (s *wsSocket) WritePing(ctx context.Context, data []byte, completion func(error)) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		if completion != nil {
			completion(ErrNotConnected)
		}
		return
	}
	go func() {
		err := conn.Ping(ctx)
		if completion != nil {
			completion(err)
		}
	}()
}
