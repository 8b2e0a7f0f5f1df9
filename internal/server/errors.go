package server

import (
	"context"
	"errors"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps registrar error kinds to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, arcerrors.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, arcerrors.ErrInvalidState), errors.Is(err, arcerrors.ErrInsufficientFunds):
		code = codes.FailedPrecondition
	case errors.Is(err, arcerrors.ErrInvalidInput), errors.Is(err, arcerrors.ErrInvalidValue):
		code = codes.InvalidArgument
	case errors.Is(err, arcerrors.ErrIntegrity):
		code = codes.Aborted
	case errors.Is(err, arcerrors.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
