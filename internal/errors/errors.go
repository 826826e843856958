// Package errors provides unified error handling with a closed set of error codes.
// Codes map onto gRPC status codes and onto the bridge's error classes.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is reported in gRPC ErrorInfo details.
const Domain = "voicebridge"

// Code identifies an error condition.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeDecodeFailed
	CodeUnsupportedFormat
	CodeLegClosed
	CodeHandshakeFailed
	CodeWriteFailed
	CodeConfigMissing
	CodeEndpointUnreachable
	CodeDuplicateSession
	CodeRemoteError
	CodeFrameDropped
)

var codeNames = map[Code]string{
	CodeUnknown:             "unknown",
	CodeInternal:            "internal",
	CodeInvalidArgument:     "invalid_argument",
	CodeNotFound:            "not_found",
	CodeUnavailable:         "unavailable",
	CodeTimeout:             "timeout",
	CodeCancelled:           "cancelled",
	CodeDecodeFailed:        "decode_failed",
	CodeUnsupportedFormat:   "unsupported_format",
	CodeLegClosed:           "leg_closed",
	CodeHandshakeFailed:     "handshake_failed",
	CodeWriteFailed:         "write_failed",
	CodeConfigMissing:       "config_missing",
	CodeEndpointUnreachable: "endpoint_unreachable",
	CodeDuplicateSession:    "duplicate_session",
	CodeRemoteError:         "remote_error",
	CodeFrameDropped:        "frame_dropped",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Class groups codes by how a session reacts to them.
type Class int

const (
	ClassOther        Class = iota
	ClassDecode             // drop the frame, count, continue
	ClassLegFatal           // drain the whole session
	ClassConfig             // fail before reaching Active
	ClassBackpressure       // silent, counted drop
)

func (c Class) String() string {
	return [...]string{"other", "decode", "leg_fatal", "config", "backpressure"}[c]
}

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:             codes.Unknown,
	CodeInternal:            codes.Internal,
	CodeInvalidArgument:     codes.InvalidArgument,
	CodeNotFound:            codes.NotFound,
	CodeUnavailable:         codes.Unavailable,
	CodeTimeout:             codes.DeadlineExceeded,
	CodeCancelled:           codes.Canceled,
	CodeDecodeFailed:        codes.InvalidArgument,
	CodeUnsupportedFormat:   codes.InvalidArgument,
	CodeLegClosed:           codes.Unavailable,
	CodeHandshakeFailed:     codes.Unavailable,
	CodeWriteFailed:         codes.Unavailable,
	CodeConfigMissing:       codes.FailedPrecondition,
	CodeEndpointUnreachable: codes.Unavailable,
	CodeDuplicateSession:    codes.AlreadyExists,
	CodeRemoteError:         codes.Internal,
	CodeFrameDropped:        codes.ResourceExhausted,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// Class returns the handling class of the error's code.
func (e *AppError) Class() Class {
	switch e.Code {
	case CodeDecodeFailed, CodeUnsupportedFormat:
		return ClassDecode
	case CodeLegClosed, CodeHandshakeFailed, CodeWriteFailed, CodeTimeout:
		return ClassLegFatal
	case CodeConfigMissing, CodeEndpointUnreachable:
		return ClassConfig
	case CodeFrameDropped:
		return ClassBackpressure
	default:
		return ClassOther
	}
}

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status with an ErrorInfo detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	info := &errdetails.ErrorInfo{
		Reason:   e.Code.String(),
		Domain:   Domain,
		Metadata: e.Metadata,
	}
	if withDetails, err := st.WithDetails(info); err == nil {
		return withDetails
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return &AppError{
				Code:     codeFromName(info.GetReason()),
				Message:  st.Message(),
				Metadata: info.GetMetadata(),
			}
		}
	}

	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message()}
}

func codeFromName(name string) Code {
	for c, n := range codeNames {
		if n == name {
			return c
		}
	}
	return CodeUnknown
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.FailedPrecondition:
		return CodeConfigMissing
	case codes.AlreadyExists:
		return CodeDuplicateSession
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// ClassOf returns the handling class of err, ClassOther if it is not an AppError.
func ClassOf(err error) Class {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Class()
	}
	return ClassOther
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
