// Package rpcerr classifies upstream transport errors into the kinds
// spec §4.A/§7 enumerate and drives the retry-forever-or-die policy the
// scan engine runs every upstream call through.
package rpcerr

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
)

// Kind classifies an upstream error for retry/fatal dispatch.
type Kind int

const (
	KindTransportAborted Kind = iota
	KindTransportRefused
	KindTransportReset
	KindTransportBroken
	KindDecode
	KindRemoteError
)

func (k Kind) String() string {
	switch k {
	case KindTransportAborted:
		return "transport_aborted"
	case KindTransportRefused:
		return "transport_refused"
	case KindTransportReset:
		return "transport_reset"
	case KindTransportBroken:
		return "transport_broken"
	case KindDecode:
		return "decode"
	case KindRemoteError:
		return "remote_error"
	default:
		return "unknown"
	}
}

// Fatal reports whether this kind terminates the process, per spec §4.A:
// connection-refused/reset/aborted and broken-pipe conditions are
// unrecoverable; everything else is retried indefinitely.
func (k Kind) Fatal() bool {
	switch k {
	case KindTransportRefused, KindTransportReset, KindTransportAborted, KindTransportBroken:
		return true
	default:
		return false
	}
}

// Error wraps an upstream failure with its classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// RemoteError wraps a JSON-RPC error response from the node (as opposed
// to a transport failure).
type RemoteError struct{ error }

func NewRemoteError(err error) error { return RemoteError{err} }

// Classify maps a raw error from the transport into an *Error carrying
// one of the Kind values above. Unrecognized errors default to
// KindDecode and are therefore retried, not treated as fatal; only the
// specific transport and context failures matched below are fatal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var remote RemoteError
	if errors.As(err, &remote) {
		return &Error{Kind: KindRemoteError, Err: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransportAborted, Err: err}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &Error{Kind: KindDecode, Err: err}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{Kind: KindTransportRefused, Err: err}
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return &Error{Kind: KindTransportReset, Err: err}
	}
	if errors.Is(err, syscall.EPIPE) {
		return &Error{Kind: KindTransportBroken, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Classify(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTransportAborted, Err: err}
		}
		return &Error{Kind: KindTransportReset, Err: err}
	}

	// Anything else (malformed JSON, schema mismatch) is a decode error:
	// retried, since it is as likely to be a transient truncated read as
	// a genuine protocol break.
	return &Error{Kind: KindDecode, Err: err}
}

// FatalHandler is invoked when a fatal-classified error is observed.
// The default implementation logs and exits the process (spec §4.A:
// "liveness is more important than best-effort continuation"); tests
// inject a handler that records the call instead of killing the test
// binary.
type FatalHandler interface {
	Fatal(err *Error)
}

// LogAndExit is the production FatalHandler.
type LogAndExit struct{ Exit func(code int) }

func NewLogAndExit() *LogAndExit {
	return &LogAndExit{Exit: osExit}
}

func (h *LogAndExit) Fatal(err *Error) {
	log.Crit("fatal upstream error, terminating", "kind", err.Kind, "err", err.Err)
	h.Exit(1)
}

// RetryForever runs op until it succeeds, retrying every transient
// error with no backoff (spec §4.A: "operations block until success"),
// and invoking fatal exactly once for the first fatal-classified error.
// Retrying never catches ctx cancellation: spec has no internal
// timeouts, but an explicit shutdown must still be able to unwind a
// blocked scanner.
func RetryForever[T any](ctx context.Context, fatal FatalHandler, op func(context.Context) (T, error)) T {
	for {
		v, err := op(ctx)
		if err == nil {
			return v
		}
		if ctx.Err() != nil {
			var zero T
			return zero
		}
		classified := Classify(err)
		if classified.Kind.Fatal() {
			fatal.Fatal(classified)
			var zero T
			return zero
		}
	}
}
