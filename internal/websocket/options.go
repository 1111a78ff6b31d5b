package websocket

import "time"

// Options carries the transport tuning knobs for participant connections.
// The zero value of any field falls back to its default, so callers only set
// what they need to override.
type Options struct {
	// PingInterval is how often the server pings an idle peer.
	PingInterval time.Duration
	// ReadTimeout bounds the wait for any inbound frame; each pong resets it.
	ReadTimeout time.Duration
	// WriteTimeout bounds both the enqueue wait and the wire write of an
	// outbound frame, including control frames.
	WriteTimeout time.Duration
	// BufferSize is the outbound queue depth per connection.
	BufferSize int
}

// DefaultOptions returns the production transport defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = def.BufferSize
	}
	return o
}
