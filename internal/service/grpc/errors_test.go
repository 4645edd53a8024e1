package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

func TestCodeOf(t *testing.T) {
	cases := map[error]codes.Code{
		errors.Join(domain.ErrUserIDInvalid, domain.ErrItemsRequired): codes.InvalidArgument,
		domain.ErrOrderAlreadyExists:                                  codes.AlreadyExists,
		domain.ErrInsufficientBalance:                                 codes.FailedPrecondition,
		domain.ErrUserCouponOwnership:                                 codes.FailedPrecondition,
		fmt.Errorf("bridge: %w", domain.ErrProcessingTimeout):         codes.DeadlineExceeded,
		context.DeadlineExceeded:                                      codes.DeadlineExceeded,
		context.Canceled:                                              codes.Canceled,
		domain.ErrSagaNotFound:                                        codes.NotFound,
		fmt.Errorf("deduct product 1: %w", domain.ErrPriceChanged):   codes.FailedPrecondition,
	}
	for err, want := range cases {
		require.Equal(t, want, codeOf(err), err.Error())
	}
}

func TestToStatusKeepsExistingStatus(t *testing.T) {
	require.NoError(t, toStatus(nil))

	original := status.Error(codes.PermissionDenied, "nope")
	require.Equal(t, original, toStatus(original))

	converted := toStatus(domain.ErrCouponExhausted)
	require.Equal(t, codes.ResourceExhausted, status.Code(converted))
	require.Equal(t, domain.ErrCouponExhausted.Error(), status.Convert(converted).Message())
}
