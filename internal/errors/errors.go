// Package errors provides unified error handling with structured codes.
// Codes map onto gRPC status codes so the same error travels unchanged from
// the capture engine to HTTP handlers and the gRPC health endpoint.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code classifies an AppError.
type Code int

const (
	Unknown Code = iota
	Internal
	InvalidArgument
	NotFound
	Unavailable
	Timeout
	Cancelled
	Configuration
	SourceUnavailable
	LengthMismatch
	ArchiveFailed
	StoreFailed
)

var codeNames = map[Code]string{
	Unknown:           "UNKNOWN",
	Internal:          "INTERNAL",
	InvalidArgument:   "INVALID_ARGUMENT",
	NotFound:          "NOT_FOUND",
	Unavailable:       "UNAVAILABLE",
	Timeout:           "TIMEOUT",
	Cancelled:         "CANCELLED",
	Configuration:     "CONFIGURATION",
	SourceUnavailable: "SOURCE_UNAVAILABLE",
	LengthMismatch:    "LENGTH_MISMATCH",
	ArchiveFailed:     "ARCHIVE_FAILED",
	StoreFailed:       "STORE_FAILED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Domain is reported in ErrorInfo details.
const Domain = "slidecapture"

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:           codes.Unknown,
	Internal:          codes.Internal,
	InvalidArgument:   codes.InvalidArgument,
	NotFound:          codes.NotFound,
	Unavailable:       codes.Unavailable,
	Timeout:           codes.DeadlineExceeded,
	Cancelled:         codes.Canceled,
	Configuration:     codes.FailedPrecondition,
	SourceUnavailable: codes.Unavailable,
	LengthMismatch:    codes.Internal,
	ArchiveFailed:     codes.Internal,
	StoreFailed:       codes.Internal,
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

// Is matches any AppError carrying the same code, so sentinels such as
// ErrSourceUnavailable work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// ToProto converts to an ErrorInfo detail message.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: Domain}
	if len(e.Metadata) > 0 {
		info.Metadata = e.Metadata
	}
	return info
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if withDetail, err := st.WithDetails(e.ToProto()); err == nil {
		return withDetail
	}
	return st
}

// Sentinels for errors.Is checks.
var (
	ErrConfiguration     = &AppError{Code: Configuration}
	ErrSourceUnavailable = &AppError{Code: SourceUnavailable}
	ErrLengthMismatch    = &AppError{Code: LengthMismatch}
)

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
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

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
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

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message()}
}

func codeFromName(name string) Code {
	for c, n := range codeNames {
		if n == name {
			return c
		}
	}
	return Unknown
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	case codes.FailedPrecondition:
		return Configuration
	default:
		return Unknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case Unavailable, Timeout, SourceUnavailable, StoreFailed:
		return true
	default:
		return false
	}
}
