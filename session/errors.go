// Package session coordinates a SecureChannel with a transport: it drives
// the handshake, issues one command at a time, and maps transport/protocol
// errors onto a client-facing error taxonomy.
package session

import (
	"fmt"

	"github.com/opnsec/yhsm-go/message"
	"github.com/opnsec/yhsm-go/securechannel"
)

// Kind is the client-facing error taxonomy. Every channel-level Kind in
// securechannel has a corresponding Kind here; DeviceError and
// ConnectionError are added at this layer.
type Kind int

const (
	_ Kind = iota
	KindProtocol
	KindVerifyFailed
	KindMismatch
	KindAuthFail
	KindCommandLimitExceeded
	KindClosedSession
	// KindDeviceError is a device-error response; see ClientError.DeviceKind.
	KindDeviceError
	// KindConnectionError is a transport-level failure.
	KindConnectionError
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol error"
	case KindVerifyFailed:
		return "verification failed"
	case KindMismatch:
		return "session ID mismatch"
	case KindAuthFail:
		return "authentication failed"
	case KindCommandLimitExceeded:
		return "command limit exceeded"
	case KindClosedSession:
		return "session is closed"
	case KindDeviceError:
		return "device error"
	case KindConnectionError:
		return "connection error"
	default:
		return "unknown session error"
	}
}

// ClientError is the error type every Session method returns on failure.
type ClientError struct {
	kind       Kind
	deviceKind message.HsmErrorKind
	msg        string
	cause      error
}

func newClientError(kind Kind, msg string) *ClientError {
	return &ClientError{kind: kind, msg: msg}
}

func wrapClientError(kind Kind, msg string, cause error) *ClientError {
	return &ClientError{kind: kind, msg: msg, cause: cause}
}

// deviceError builds a KindDeviceError ClientError from a parsed
// HsmErrorKind tag.
func deviceError(kind message.HsmErrorKind) *ClientError {
	return &ClientError{kind: KindDeviceError, deviceKind: kind}
}

// Kind reports the error's category.
func (e *ClientError) Kind() Kind { return e.kind }

// DeviceKind reports the device error tag; only meaningful when
// Kind() == KindDeviceError.
func (e *ClientError) DeviceKind() message.HsmErrorKind { return e.deviceKind }

func (e *ClientError) Error() string {
	if e.kind == KindDeviceError {
		return fmt.Sprintf("device error: %s", e.deviceKind)
	}
	if e.cause != nil {
		if e.msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
		}
		return fmt.Sprintf("%s: %v", e.kind, e.cause)
	}
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	}
	return e.kind.String()
}

func (e *ClientError) Unwrap() error { return e.cause }

// fromChannelError translates a securechannel.Error into this package's
// taxonomy, preserving the cause chain.
func fromChannelError(err error) *ClientError {
	sce, ok := err.(*securechannel.Error)
	if !ok {
		return wrapClientError(KindProtocol, "secure channel", err)
	}
	var kind Kind
	switch sce.Kind() {
	case securechannel.KindProtocol:
		kind = KindProtocol
	case securechannel.KindVerifyFailed:
		kind = KindVerifyFailed
	case securechannel.KindMismatch:
		kind = KindMismatch
	case securechannel.KindAuthFail:
		kind = KindAuthFail
	case securechannel.KindCommandLimitExceeded:
		kind = KindCommandLimitExceeded
	case securechannel.KindClosedSession:
		kind = KindClosedSession
	default:
		kind = KindProtocol
	}
	return &ClientError{kind: kind, cause: sce}
}
