// Package transport defines the narrow seam between the channel client
// and the live-update primitive, plus the production websocket
// implementation. The channel client only ever sees Dialer and Conn, so
// tests and alternative transports plug in without touching it.
package transport

import (
	"context"
	"errors"
	"time"
)

// Conn is one open bidirectional channel for a single job.
type Conn interface {
	// Read blocks until the next inbound payload or a read error.
	// A clean peer shutdown returns an error satisfying IsNormalClosure.
	Read() ([]byte, error)

	// Write sends one payload frame.
	Write(payload []byte) error

	// Ping sends a keepalive probe with the given deadline.
	Ping(deadline time.Time) error

	// Close performs the close handshake and releases the connection.
	Close(reason string) error
}

// Dialer opens channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// normalClosure marks read errors caused by a clean close handshake.
type normalClosure struct{ err error }

func (e normalClosure) Error() string { return e.err.Error() }
func (e normalClosure) Unwrap() error { return e.err }

// MarkNormalClosure wraps err so IsNormalClosure reports true for it.
func MarkNormalClosure(err error) error {
	if err == nil {
		return nil
	}
	return normalClosure{err: err}
}

// IsNormalClosure reports whether a read error represents a clean close
// rather than an unexpected drop. Unexpected drops trigger reconnects;
// clean closes do not.
func IsNormalClosure(err error) bool {
	var nc normalClosure
	return errors.As(err, &nc)
}
