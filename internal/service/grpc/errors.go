package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// toStatus переводит доменную ошибку в gRPC-статус.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case domain.IsValidation(err):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrCouponAlreadyIssued),
		errors.Is(err, domain.ErrAlreadyQueued),
		errors.Is(err, domain.ErrOrderAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrCouponExhausted):
		return codes.ResourceExhausted
	case errors.Is(err, domain.ErrCouponNotFound),
		errors.Is(err, domain.ErrUserCouponNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrBalanceNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrSagaNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrCouponNotIssuable),
		errors.Is(err, domain.ErrUserCouponNotAvailable),
		errors.Is(err, domain.ErrUserCouponOwnership),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPriceChanged),
		errors.Is(err, domain.ErrInsufficientBalance):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrProcessingTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, domain.ErrLockNotAcquired):
		return codes.Aborted
	case errors.Is(err, domain.ErrCoordinationUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}
