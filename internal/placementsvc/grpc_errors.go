package placementsvc

import (
	"context"
	"errors"

	"github.com/signalsfoundry/geoplace/core"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest is used when a request message is structurally invalid:
// missing fields, wrong value kinds, unknown option names.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps placement errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidPosition),
		errors.Is(err, core.ErrInvalidOffset):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrAltitudeUnavailable):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, core.ErrDegenerateOrientation):
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
