package core

// Frame is an encoded outbound payload.
type Frame []byte

// Sink abstracts the messaging transport of one connection.
// Owned by the adapter; the adapter must Close() it.
type Sink interface {
	// TrySend enqueues without blocking. It fails with ErrBackpressure when
	// the buffer is full and ErrConnectionClosed after Close.
	TrySend(Frame) error
	Close()
}
