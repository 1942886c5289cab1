package remote

import (
	"errors"
	"fmt"
)

// Kind classifies an error crossing the remote boundary.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a malformed request rejected before any RPC.
	KindValidation
	// KindRemoteUnavailable is a transport-level failure. Pollers treat it as transient.
	KindRemoteUnavailable
	// KindRemoteRejected is a structured error returned by the backend for one operation.
	KindRemoteRejected
	// KindTimeout means a bounded wait was exhausted.
	KindTimeout
	// KindPreconditionNotMet is a client-side refusal; no RPC was issued.
	KindPreconditionNotMet
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindRemoteUnavailable:
		return "RemoteUnavailable"
	case KindRemoteRejected:
		return "RemoteRejected"
	case KindTimeout:
		return "Timeout"
	case KindPreconditionNotMet:
		return "PreconditionNotMet"
	default:
		return "Unknown"
	}
}

var (
	ErrAddressNotAvailable  = errors.New("no IP addresses found, VM may still be booting")
	ErrNotFound             = errors.New("resource not found")
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrNothingFocused       = errors.New("no resource is focused")
	ErrConfirmationRequired = errors.New("operation requires confirmation")
	ErrNameMismatch         = errors.New("confirmation name does not match resource name")
	ErrRunActive            = errors.New("a provisioning run is already active")
	ErrUnknownAction        = errors.New("unknown lifecycle action")
)

// Error is the structured error type shared by every Client implementation.
type Error struct {
	Kind     Kind
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Op != "" && e.Resource != "":
		msg = fmt.Sprintf("%s %s", e.Op, e.Resource)
	case e.Op != "":
		msg = e.Op
	case e.Resource != "":
		msg = e.Resource
	}
	if e.Err == nil {
		if msg == "" {
			return e.Kind.String()
		}
		return fmt.Sprintf("%s: %s", msg, e.Kind)
	}
	if msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func Unavailable(op, resource string, err error) error {
	return &Error{Kind: KindRemoteUnavailable, Op: op, Resource: resource, Err: err}
}

func Rejected(op, resource string, err error) error {
	return &Error{Kind: KindRemoteRejected, Op: op, Resource: resource, Err: err}
}

func Timeout(op, resource string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, Resource: resource, Err: err}
}

func Precondition(op, resource string, err error) error {
	return &Error{Kind: KindPreconditionNotMet, Op: op, Resource: resource, Err: err}
}
