// Package transport delivers the engine's event stream for one session. A
// Channel hands raw frames to exactly one consumer; decoding and all
// business logic stay on the controller side of the boundary. Frames arrive
// in order, at most once — the transport relays whatever ordering guarantee
// the engine provides and adds nothing of its own.
package transport

import "context"

// Opener opens the event channel for a session.
type Opener interface {
	Open(ctx context.Context, sessionID string) (Channel, error)
}

// Channel is one live event stream. Frames is closed when the stream ends,
// whether by Close, by the peer, or by a transport fault; after it closes,
// Err reports the fault, or nil for a clean shutdown. Close is idempotent.
type Channel interface {
	Frames() <-chan []byte
	Close() error
	Err() error
}
