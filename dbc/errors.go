package dbc

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode classifies why a signal or message could not be constructed.
type ErrorCode int

const (
	NoError ErrorCode = iota
	SignalExceedsMessageSize
	WrongBitSizeForExtendedDataType
	MachineFloatEncodingNotSupported
	MachineDoubleEncodingNotSupported
	InvalidBitSize
	MuxValueWithoutMuxSignal
	DuplicateSignalName
	UnsupportedEncoding
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "no error"
	case SignalExceedsMessageSize:
		return "signal exceeds message size"
	case WrongBitSizeForExtendedDataType:
		return "wrong bit size for extended data type"
	case MachineFloatEncodingNotSupported:
		return "machine float encoding not supported"
	case MachineDoubleEncodingNotSupported:
		return "machine double encoding not supported"
	case InvalidBitSize:
		return "invalid bit size"
	case MuxValueWithoutMuxSignal:
		return "multiplexed signal without multiplexor"
	case DuplicateSignalName:
		return "duplicate signal name"
	case UnsupportedEncoding:
		return "unsupported byte order or value type"
	default:
		return fmt.Sprintf("error code %d", int(c))
	}
}

// Sentinels for errors.Is matching against construction errors.
var (
	ErrSignalExceedsMessageSize          = codeError(SignalExceedsMessageSize)
	ErrWrongBitSizeForExtendedDataType   = codeError(WrongBitSizeForExtendedDataType)
	ErrMachineFloatEncodingNotSupported  = codeError(MachineFloatEncodingNotSupported)
	ErrMachineDoubleEncodingNotSupported = codeError(MachineDoubleEncodingNotSupported)
	ErrInvalidBitSize                    = codeError(InvalidBitSize)
	ErrMuxValueWithoutMuxSignal          = codeError(MuxValueWithoutMuxSignal)
	ErrDuplicateSignalName               = codeError(DuplicateSignalName)
	ErrUnsupportedEncoding               = codeError(UnsupportedEncoding)
)

type codeError ErrorCode

func (e codeError) Error() string { return ErrorCode(e).String() }

// SignalError is returned by NewSignal when validation fails.
type SignalError struct {
	Signal string
	Code   ErrorCode
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("signal %s: %s", e.Signal, e.Code)
}

func (e *SignalError) Is(target error) bool {
	c, ok := target.(codeError)
	return ok && ErrorCode(c) == e.Code
}

// MessageError is returned by NewMessage when the signal set is inconsistent.
type MessageError struct {
	Message string
	Signal  string
	Code    ErrorCode
}

func (e *MessageError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("message %s: signal %s: %s", e.Message, e.Signal, e.Code)
	}
	return fmt.Sprintf("message %s: %s", e.Message, e.Code)
}

func (e *MessageError) Is(target error) bool {
	c, ok := target.(codeError)
	return ok && ErrorCode(c) == e.Code
}

// ErrorCodeOf extracts the construction error code carried by err, NoError
// for nil and an unknown code for foreign errors.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return NoError
	}
	var se *SignalError
	if errors.As(err, &se) {
		return se.Code
	}
	var me *MessageError
	if errors.As(err, &me) {
		return me.Code
	}
	return ErrorCode(-1)
}
