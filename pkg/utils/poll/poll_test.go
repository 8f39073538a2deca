package poll_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/relman-dev/relman/pkg/utils/poll"
)

func TestWaitSucceeds(t *testing.T) {
	attempts := 0
	err := poll.Wait(context.Background(), poll.Config{Attempts: 5}, "builds to finish",
		func(ctx context.Context) (bool, error) {
			attempts++
			return attempts == 3, nil
		})
	gt.NoError(t, err)
	gt.Number(t, attempts).Equal(3)
}

func TestWaitTimesOut(t *testing.T) {
	attempts := 0
	err := poll.Wait(context.Background(), poll.Config{Attempts: 4}, "checks to pass",
		func(ctx context.Context) (bool, error) {
			attempts++
			return false, nil
		})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, poll.ErrTagTimeout))
	gt.True(t, strings.Contains(err.Error(), "checks to pass"))
	gt.Number(t, attempts).Equal(4)
}

func TestWaitAbortsOnError(t *testing.T) {
	cause := errors.New("api error")
	attempts := 0
	err := poll.Wait(context.Background(), poll.Config{Attempts: 5}, "anything",
		func(ctx context.Context) (bool, error) {
			attempts++
			return false, cause
		})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, cause))
	gt.False(t, goerr.HasTag(err, poll.ErrTagTimeout))
	gt.Number(t, attempts).Equal(1)
}

func TestWaitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := poll.Wait(ctx, poll.Config{Attempts: 10, Interval: 100 * time.Millisecond}, "anything",
		func(ctx context.Context) (bool, error) {
			attempts++
			cancel()
			return false, nil
		})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, context.Canceled))
	gt.Number(t, attempts).Equal(1)
}
