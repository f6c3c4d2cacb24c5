// Package qerrors maps the platform's error taxonomy onto grpc status
// codes so every service boundary returns a value that unwraps to a
// *status.Status, without taking on actual gRPC transport (out of scope).
package qerrors

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func NotFound(detail string) error         { return status.Error(codes.NotFound, detail) }
func InvalidArgument(detail string) error  { return status.Error(codes.InvalidArgument, detail) }
func DeadlineExceeded(detail string) error { return status.Error(codes.DeadlineExceeded, detail) }
func Conflict(detail string) error         { return status.Error(codes.AlreadyExists, detail) }
func Unauthenticated(detail string) error  { return status.Error(codes.Unauthenticated, detail) }
func PermissionDenied(detail string) error { return status.Error(codes.PermissionDenied, detail) }
func ResourceExhausted(detail string) error {
	return status.Error(codes.ResourceExhausted, detail)
}
func Unavailable(detail string) error { return status.Error(codes.Unavailable, detail) }
func Internal(detail string) error    { return status.Error(codes.Internal, detail) }

// Wrap attaches a stack trace (pkg/errors) to an internal failure before
// it is classified; call at the point an unexpected error is first observed.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Code returns the grpc code of err, or codes.Unknown if err was never
// classified through one of the constructors above.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}

func Is(err error, code codes.Code) bool { return Code(err) == code }
