package interfaces

// Channel is the bidirectional message handle supplied by the transport
// layer. The core never opens or accepts connections itself; it only sends.
//
// Implementations must make SendJSON safe for concurrent use and must return
// an error wrapping ErrChannelClosed once the underlying transport is
// unrecoverably gone, so the broadcast engine can distinguish eviction-worthy
// failures from transient ones.
type Channel interface {
	// SendJSON marshals v and delivers it to the remote peer.
	SendJSON(v interface{}) error

	// IsAlive reports whether the channel is still usable for sends.
	IsAlive() bool

	// Close releases the channel. Safe to call more than once.
	Close() error
}
