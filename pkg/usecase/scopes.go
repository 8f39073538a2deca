package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
)

// withStash stashes uncommitted local changes around fn and restores
// them afterwards, so a human's in-progress work is never destroyed by
// the release run.
func (o *Orchestrator) withStash(ctx context.Context, fn func(context.Context) error) error {
	dirty, err := o.vcs.HasLocalChanges(ctx)
	if err != nil {
		return err
	}
	if dirty {
		ctxlog.From(ctx).Info("stashing local changes")
		if err := o.vcs.StashPush(ctx); err != nil {
			return err
		}
	}

	runErr := fn(ctx)

	if dirty {
		ctxlog.From(ctx).Info("restoring stashed changes")
		if err := o.vcs.StashPop(ctx); err != nil {
			if runErr != nil {
				ctxlog.From(ctx).Warn("failed to restore stashed changes", "error", err)
				return runErr
			}
			return err
		}
	}
	return runErr
}

// withCheckout checks out branch for the duration of fn and returns to
// the previously checked-out branch afterwards.
func (o *Orchestrator) withCheckout(ctx context.Context, branch string, fn func(context.Context) error) error {
	previous, err := o.vcs.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if previous != branch {
		ctxlog.From(ctx).Info("checking out branch", "branch", branch, "from", previous)
		if err := o.vcs.Checkout(ctx, branch); err != nil {
			return err
		}
	}

	runErr := fn(ctx)

	current, err := o.vcs.CurrentBranch(ctx)
	if err == nil && current != previous {
		ctxlog.From(ctx).Info("moving back to branch", "branch", previous)
		err = o.vcs.Checkout(ctx, previous)
	}
	if err != nil {
		if runErr != nil {
			ctxlog.From(ctx).Warn("failed to restore branch", "error", err)
			return runErr
		}
		return err
	}
	return runErr
}

// withResetOnExit hard-resets the checked-out branch to its head on
// every exit path, discarding partial stage changes when fn aborts.
func (o *Orchestrator) withResetOnExit(ctx context.Context, fn func(context.Context) error) error {
	runErr := fn(ctx)

	branch, err := o.vcs.CurrentBranch(ctx)
	if err == nil {
		err = o.vcs.Reset(ctx, branch)
	}
	if err != nil {
		if runErr != nil {
			ctxlog.From(ctx).Warn("failed to reset working branch", "error", err)
			return runErr
		}
		return err
	}
	return runErr
}
