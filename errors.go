package ipconnection

import (
	"fmt"

	"github.com/pkg/errors"
)

// BrickletError is the error surfaced by the socket worker for a single
// request/response exchange, before it is converted into the richer
// RecvError/TryRecvError returned to the caller.
type BrickletError int

const (
	// ErrCodeOK indicates the response carried no error.
	ErrCodeOK BrickletError = iota
	// ErrCodeInvalidParameter mirrors wire error code 1.
	ErrCodeInvalidParameter
	// ErrCodeFunctionNotSupported mirrors wire error code 2.
	ErrCodeFunctionNotSupported
	// ErrCodeUnknownError mirrors wire error code 3.
	ErrCodeUnknownError
	// ErrCodeNotConnected is synthesized by the worker when a request is
	// cancelled because there is no live connection.
	ErrCodeNotConnected
	// ErrCodeSuccessButResponseExpectedIsDisabled is a pseudo-error
	// delivered immediately for setters whose response-expected flag is
	// false, so callers see a uniform Receiver API.
	ErrCodeSuccessButResponseExpectedIsDisabled
)

func brickletErrorFromWireCode(code uint8) BrickletError {
	switch code {
	case 1:
		return ErrCodeInvalidParameter
	case 2:
		return ErrCodeFunctionNotSupported
	default:
		return ErrCodeUnknownError
	}
}

func (e BrickletError) Error() string {
	switch e {
	case ErrCodeOK:
		return "no error"
	case ErrCodeInvalidParameter:
		return "a parameter was invalid or had an unexpected length"
	case ErrCodeFunctionNotSupported:
		return "the brick or bricklet does not support the requested function"
	case ErrCodeUnknownError:
		return "unknown error, currently unused"
	case ErrCodeNotConnected:
		return "the request can not be fulfilled, as there is currently no connection to a brick daemon"
	case ErrCodeSuccessButResponseExpectedIsDisabled:
		return "the request was sent, but response expected is disabled, so no response can be received"
	default:
		return fmt.Sprintf("unknown bricklet error code %d", int(e))
	}
}

// RecvError is returned by Receiver.Recv.
type RecvError int

const (
	// RecvErrQueueDisconnected means the worker (or the whole connection)
	// was torn down before a response arrived.
	RecvErrQueueDisconnected RecvError = iota
	// RecvErrQueueTimeout means the per-connection timeout elapsed.
	RecvErrQueueTimeout
	RecvErrInvalidParameter
	RecvErrFunctionNotSupported
	RecvErrUnknownError
	// RecvErrMalformedPacket means the payload length did not match what
	// the target type expects.
	RecvErrMalformedPacket
	RecvErrNotConnected
	RecvErrSuccessButResponseExpectedIsDisabled
)

func (e RecvError) Error() string {
	switch e {
	case RecvErrQueueDisconnected:
		return "the queue was disconnected; this usually happens if the connection was closed"
	case RecvErrQueueTimeout:
		return "the request could not be answered before the timeout was reached"
	case RecvErrInvalidParameter:
		return BrickletError(ErrCodeInvalidParameter).Error()
	case RecvErrFunctionNotSupported:
		return BrickletError(ErrCodeFunctionNotSupported).Error()
	case RecvErrUnknownError:
		return BrickletError(ErrCodeUnknownError).Error()
	case RecvErrMalformedPacket:
		return "the received packet had an unexpected length; maybe a function was called on the wrong device?"
	case RecvErrNotConnected:
		return BrickletError(ErrCodeNotConnected).Error()
	case RecvErrSuccessButResponseExpectedIsDisabled:
		return BrickletError(ErrCodeSuccessButResponseExpectedIsDisabled).Error()
	default:
		return fmt.Sprintf("unknown recv error %d", int(e))
	}
}

func recvErrorFromBrickletError(err BrickletError) RecvError {
	switch err {
	case ErrCodeInvalidParameter:
		return RecvErrInvalidParameter
	case ErrCodeFunctionNotSupported:
		return RecvErrFunctionNotSupported
	case ErrCodeNotConnected:
		return RecvErrNotConnected
	case ErrCodeSuccessButResponseExpectedIsDisabled:
		return RecvErrSuccessButResponseExpectedIsDisabled
	default:
		return RecvErrUnknownError
	}
}

// TryRecvError is returned by Receiver.TryRecv.
type TryRecvError int

const (
	TryRecvErrQueueDisconnected TryRecvError = iota
	// TryRecvErrQueueEmpty means no response is available yet.
	TryRecvErrQueueEmpty
	TryRecvErrInvalidParameter
	TryRecvErrFunctionNotSupported
	TryRecvErrUnknownError
	TryRecvErrMalformedPacket
	TryRecvErrNotConnected
	TryRecvErrSuccessButResponseExpectedIsDisabled
)

func (e TryRecvError) Error() string {
	switch e {
	case TryRecvErrQueueDisconnected:
		return "the queue was disconnected; this usually happens if the connection was closed"
	case TryRecvErrQueueEmpty:
		return "there is currently no response available"
	case TryRecvErrInvalidParameter:
		return BrickletError(ErrCodeInvalidParameter).Error()
	case TryRecvErrFunctionNotSupported:
		return BrickletError(ErrCodeFunctionNotSupported).Error()
	case TryRecvErrUnknownError:
		return BrickletError(ErrCodeUnknownError).Error()
	case TryRecvErrMalformedPacket:
		return "the received packet had an unexpected length; maybe a function was called on the wrong device?"
	case TryRecvErrNotConnected:
		return BrickletError(ErrCodeNotConnected).Error()
	case TryRecvErrSuccessButResponseExpectedIsDisabled:
		return BrickletError(ErrCodeSuccessButResponseExpectedIsDisabled).Error()
	default:
		return fmt.Sprintf("unknown try_recv error %d", int(e))
	}
}

func tryRecvErrorFromBrickletError(err BrickletError) TryRecvError {
	switch err {
	case ErrCodeInvalidParameter:
		return TryRecvErrInvalidParameter
	case ErrCodeFunctionNotSupported:
		return TryRecvErrFunctionNotSupported
	case ErrCodeNotConnected:
		return TryRecvErrNotConnected
	case ErrCodeSuccessButResponseExpectedIsDisabled:
		return TryRecvErrSuccessButResponseExpectedIsDisabled
	default:
		return TryRecvErrUnknownError
	}
}

// CallbackRecvError is returned by CallbackReceiver.Recv. Callbacks never
// time out and never carry a per-request error code.
type CallbackRecvError int

const (
	CallbackRecvErrQueueDisconnected CallbackRecvError = iota
	CallbackRecvErrMalformedPacket
)

func (e CallbackRecvError) Error() string {
	switch e {
	case CallbackRecvErrQueueDisconnected:
		return "the queue was disconnected; this usually happens if the connection was closed"
	case CallbackRecvErrMalformedPacket:
		return "the received packet had an unexpected length"
	default:
		return fmt.Sprintf("unknown callback recv error %d", int(e))
	}
}

// CallbackTryRecvError is returned by CallbackReceiver.TryRecv.
type CallbackTryRecvError int

const (
	CallbackTryRecvErrQueueDisconnected CallbackTryRecvError = iota
	CallbackTryRecvErrQueueEmpty
	CallbackTryRecvErrMalformedPacket
)

func (e CallbackTryRecvError) Error() string {
	switch e {
	case CallbackTryRecvErrQueueDisconnected:
		return "the queue was disconnected; this usually happens if the connection was closed"
	case CallbackTryRecvErrQueueEmpty:
		return "there is currently no callback value available"
	case CallbackTryRecvErrMalformedPacket:
		return "the received packet had an unexpected length"
	default:
		return fmt.Sprintf("unknown callback try_recv error %d", int(e))
	}
}

// ConnectError is returned by Connection.Connect.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

// ConnectErrorKind enumerates the cases in spec.md's connection-lifecycle
// error family.
type ConnectErrorKind int

const (
	ConnectErrCouldNotParseIPAddress ConnectErrorKind = iota
	ConnectErrIOError
	ConnectErrAlreadyConnected
	ConnectErrNotReallyConnected
)

func (e *ConnectError) Error() string {
	switch e.Kind {
	case ConnectErrCouldNotParseIPAddress:
		return fmt.Sprintf("could not parse ip address: %v", e.Err)
	case ConnectErrIOError:
		return errors.Wrap(e.Err, "io error while connecting").Error()
	case ConnectErrAlreadyConnected:
		return "already connected; disconnect before connecting somewhere else"
	case ConnectErrNotReallyConnected:
		return "connect succeeded, but the socket was disconnected immediately"
	default:
		return "unknown connect error"
	}
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ErrNotConnected is returned by Connection.Disconnect when there is no
// active session to disconnect.
var ErrNotConnected = errors.New("not connected")

// GetResponseExpectedError is returned when the response-expected state of
// an unknown function is queried.
type GetResponseExpectedError struct {
	FunctionID uint8
}

func (e *GetResponseExpectedError) Error() string {
	return fmt.Sprintf("can not get response expected: invalid function id %d", e.FunctionID)
}

// SetResponseExpectedError is returned when the response-expected state of
// a function can not be changed.
type SetResponseExpectedError struct {
	FunctionID   uint8
	IsAlwaysTrue bool
}

func (e *SetResponseExpectedError) Error() string {
	if e.IsAlwaysTrue {
		return "can not set response expected: function always responds"
	}
	return fmt.Sprintf("can not set response expected: invalid function id %d", e.FunctionID)
}

// ErrAuthenticate is returned (wrapped) by Connection.Authenticate if the
// server nonce required to start the authentication handshake could not be
// retrieved.
var ErrAuthenticate = errors.New("could not get server nonce")
