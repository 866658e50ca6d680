package transport

// Delegate receives the transport's lifecycle notifications (spec.md
// §6.4). Implementations should embed NoopDelegate to get default
// empty hooks for OnPing/OnPong without having to declare every method
// -- the capability interface carries no default itself; the no-op
// default lives in NoopDelegate.
type Delegate interface {
	// DidConnect fires on the first successful connection.
	DidConnect()
	// DidReconnect fires on every connection after the first.
	DidReconnect()
	// DidDisconnect fires whenever the socket drops, with the causing
	// error if any (nil for a clean disconnect).
	DidDisconnect(err error)
	// OnPing/OnPong are hooks for native ping/pong traffic (distinct from
	// GraphQL-level ping/pong frames). The Transport never calls them:
	// the SocketDelegate contract has no ping/pong notifications.
	OnPing(data []byte)
	OnPong(data []byte)
}

// NoopDelegate implements Delegate with empty methods. Embed it in a
// caller's delegate type to only override the hooks that matter.
type NoopDelegate struct{}

func (NoopDelegate) DidConnect()         {}
func (NoopDelegate) DidReconnect()       {}
func (NoopDelegate) DidDisconnect(error) {}
func (NoopDelegate) OnPing(data []byte)  {}
func (NoopDelegate) OnPong(data []byte)  {}
