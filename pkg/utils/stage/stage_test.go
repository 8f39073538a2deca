package stage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/relman-dev/relman/pkg/utils/stage"
)

func TestRunOK(t *testing.T) {
	err := stage.Run(context.Background(), "Tag release", "Tagging the release",
		func(ctx context.Context, s *stage.Stage) error {
			s.OK("tagged")
			return nil
		})
	gt.NoError(t, err)
}

func TestFailCarriesStageName(t *testing.T) {
	err := stage.Run(context.Background(), "Await checks", "Waiting for checks",
		func(ctx context.Context, s *stage.Stage) error {
			return s.Failf("%d checks failed", 3)
		})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
	gt.True(t, strings.Contains(err.Error(), "3 checks failed"))
}

func TestPlainErrorsBecomeInvalidState(t *testing.T) {
	cause := errors.New("connection refused")
	err := stage.Run(context.Background(), "Push changes", "Pushing changes",
		func(ctx context.Context, s *stage.Stage) error {
			return cause
		})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
	gt.True(t, errors.Is(err, cause))
}

func TestUserAbortPropagatesUnwrapped(t *testing.T) {
	err := stage.Run(context.Background(), "Sign tag", "Signing the tag",
		func(ctx context.Context, s *stage.Stage) error {
			return stage.NewUserAbort("sign the tag")
		})
	gt.Error(t, err)

	abort, ok := stage.AsUserAbort(err)
	gt.True(t, ok)
	gt.Value(t, abort.Instruction).Equal("sign the tag")
	gt.Value(t, abort.Error()).Equal("returning to the user to sign the tag")
	gt.False(t, goerr.HasTag(err, stage.ErrTagInvalidState))
}

func TestNestedStagePath(t *testing.T) {
	var path string
	err := stage.Run(context.Background(), "Await checks", "Waiting for checks",
		func(ctx context.Context, parent *stage.Stage) error {
			return parent.Run(ctx, "Restyled", "Applying restyle fixes",
				func(ctx context.Context, s *stage.Stage) error {
					path = s.Path()
					s.OK("applied")
					return nil
				})
		})
	gt.NoError(t, err)
	gt.Value(t, path).Equal("Await checks > Restyled")
}
