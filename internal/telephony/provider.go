// Package telephony owns the call-platform boundary.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request types provider-agnostic; business logic never sees SDK types.
package telephony

import "context"

// TransferRequest asks the platform to hand the remote participant off to
// another destination. A successful transfer ends this agent's involvement
// in the call.
type TransferRequest struct {
	RoomName            string
	ParticipantIdentity string

	// Destination is an opaque address, typically E.164 or a tel:/sip: URI.
	Destination string

	// PlayDialtone keeps the caller on a dial tone while the transfer runs.
	PlayDialtone bool
}

// TransferClient performs call transfers against the platform.
//
// Transfer invokes the platform exactly once per call and never retries;
// deciding whether to re-announce and continue the call belongs to the
// session layer. The client is constructed lazily on first use and must be
// released with Close when the session ends.
type TransferClient interface {
	Transfer(ctx context.Context, req TransferRequest) error
	Close() error
}

// ErrorKind classifies transfer failures.
type ErrorKind string

const (
	// ErrPlatformUnavailable: the platform client could not be constructed
	// or reached (missing credentials, network failure).
	ErrPlatformUnavailable ErrorKind = "platform_unavailable"

	// ErrRejectedByPlatform: the platform took the request but reported the
	// transfer failed (invalid or unreachable destination).
	ErrRejectedByPlatform ErrorKind = "rejected_by_platform"
)

// TransferError is returned for any transfer failure; it is never panicked.
type TransferError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return "telephony: transfer failed (" + string(e.Kind) + ")"
	}
	return "telephony: transfer failed (" + string(e.Kind) + "): " + e.Err.Error()
}

func (e *TransferError) Unwrap() error { return e.Err }

func unavailable(err error) *TransferError {
	return &TransferError{Kind: ErrPlatformUnavailable, Err: err}
}

func rejected(err error) *TransferError {
	return &TransferError{Kind: ErrRejectedByPlatform, Err: err}
}
