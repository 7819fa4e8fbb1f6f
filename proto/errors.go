package proto

import (
	"fmt"

	"github.com/jeffbean/zkwire/zkerrors"
	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
)

// Framing errors. The current frame is unusable once one of these is returned.
var (
	ErrShortBuffer    = errors.New("zkwire: buffer too short")
	ErrNegativeLength = errors.New("zkwire: negative length")
	ErrInvalidUTF8    = errors.New("zkwire: string is not valid utf-8")
	ErrFrameTooLarge  = errors.New("zkwire: frame exceeds maximum size")
)

// Encoding errors. These only happen when the caller hands over a value the
// protocol cannot carry.
var (
	ErrValueTooLarge = errors.New("zkwire: value too large to encode")
	ErrNilOp         = errors.New("zkwire: nil operation")
)

// Protocol shape errors. They signal version skew between client and server.
var (
	ErrUnexpectedOpType = errors.New("zkwire: unexpected operation type")
	ErrResultMismatch   = errors.New("zkwire: transaction results do not match operations")
	ErrUnknownEvent     = errors.New("zkwire: unknown watcher event")
	ErrTrailingBytes    = errors.New("zkwire: trailing bytes after body")
)

// ServiceError is a result code reported by the server for one request or
// for one operation of a transaction. It is a successfully decoded value,
// not a codec failure.
type ServiceError struct {
	Code zk.ErrCode
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("zkwire: server error %d: %s", e.Code, zkerrors.ZKErrCodeToMessage(e.Code))
}

// Unwrap exposes the well known go-zookeeper error value for the code so
// callers can match with errors.Is(err, zk.ErrNoNode).
func (e *ServiceError) Unwrap() error {
	return zkerrors.ToError(e.Code)
}

// IsFramingError reports whether err means the frame bytes were malformed.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrShortBuffer) ||
		errors.Is(err, ErrNegativeLength) ||
		errors.Is(err, ErrInvalidUTF8) ||
		errors.Is(err, ErrFrameTooLarge)
}

// IsProtocolError reports whether err means the frame was well formed but
// did not have the shape this client expects.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrUnexpectedOpType) ||
		errors.Is(err, ErrResultMismatch) ||
		errors.Is(err, ErrUnknownEvent) ||
		errors.Is(err, ErrTrailingBytes)
}

// IsServiceError reports whether err carries a server result code, and returns it.
func IsServiceError(err error) (zk.ErrCode, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// ErrorKind names the class of err for logs and metric tags.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsFramingError(err):
		return "framing"
	case IsProtocolError(err):
		return "protocol"
	case errors.Is(err, ErrValueTooLarge), errors.Is(err, ErrNilOp):
		return "encoding"
	}
	if _, ok := IsServiceError(err); ok || errors.Is(err, ErrRolledBack) {
		return "service"
	}
	return "unknown"
}
