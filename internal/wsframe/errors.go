// Package wsframe implements a server-side RFC 6455 WebSocket framing layer
// over an arbitrary byte-oriented transport: the HTTP Upgrade handshake, and
// a stateful stream that shuttles opaque binary payloads in and out of
// WebSocket frames.
//
// The package deliberately does not implement permessage-deflate,
// fragmentation reassembly, client-role WebSocket, or PING/PONG generation.
package wsframe

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a framing-layer error so callers can decide whether to
// retry, disconnect, or propagate.
type Kind int

const (
	// KindWouldBlock means the transport would block or was interrupted;
	// retryable, and any bytes already delivered this call are valid.
	KindWouldBlock Kind = iota
	// KindTransportEOF means the transport returned 0 (orderly close).
	KindTransportEOF
	// KindBrokenPipe means a write was attempted after the stream closed.
	KindBrokenPipe
	// KindProtocolViolation means a frame header violated RFC 6455 (bad RSV,
	// reserved opcode, or an over-long/non-final control frame).
	KindProtocolViolation
	// KindHandshakeInvalid means the HTTP Upgrade request failed validation.
	KindHandshakeInvalid
)

func (k Kind) String() string {
	switch k {
	case KindWouldBlock:
		return "would-block"
	case KindTransportEOF:
		return "transport-eof"
	case KindBrokenPipe:
		return "broken-pipe"
	case KindProtocolViolation:
		return "protocol-violation"
	case KindHandshakeInvalid:
		return "handshake-invalid"
	default:
		return fmt.Sprintf("unknown-kind(%d)", int(k))
	}
}

// Error is the out-of-band error kind the framing core reports through,
// per spec §7.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, wsframe.ErrBrokenPipe) against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: errors.Wrap(cause, kind.String())}
}

// Sentinels usable with errors.Is. Only Kind is compared.
var (
	ErrWouldBlock        = &Error{Kind: KindWouldBlock}
	ErrTransportEOF      = &Error{Kind: KindTransportEOF}
	ErrBrokenPipe        = &Error{Kind: KindBrokenPipe}
	ErrProtocolViolation = &Error{Kind: KindProtocolViolation}
	ErrHandshakeInvalid  = &Error{Kind: KindHandshakeInvalid}
)
