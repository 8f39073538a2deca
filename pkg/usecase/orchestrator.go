// Package usecase implements the release orchestration state machine: a
// fixed, resumable sequence of idempotent stages that drives a release
// from branch creation to publication. The process owns no durable state;
// every stage decides "have I already happened?" by inspecting the forge
// and the git remotes, so a killed run can be restarted at any point,
// possibly days later, possibly by a different actor.
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/interfaces"
	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/domain/types"
	"github.com/relman-dev/relman/pkg/utils/poll"
	"github.com/relman-dev/relman/pkg/utils/stage"
)

const (
	issueTitlePrefix = "Release tracking issue"
	// productionMarker is the literal issue-body line that flags a
	// production release (as opposed to a release candidate).
	productionMarker = "Production release"
	// releaseNotesHeader is the issue-body section holding human-authored
	// release notes for unattended runs.
	releaseNotesHeader = "### Release notes"
	// selfCheckName is our own CI check; excluded from the pass/fail
	// computation in verify mode to avoid waiting for ourselves.
	selfCheckName = "Verify release/signatures"
	// restyleCheckName failing triggers the restyle recovery sub-flow
	// instead of aborting the run.
	restyleCheckName = "common / restyled"
)

func releaseCommitMessage(version string) string {
	return "chore: Release " + version
}

func releaseIssueTitle(version string) string {
	return issueTitlePrefix + ": " + version
}

func releaseBranch(version string) string {
	return types.ReleaseBranchPrefix + "/" + version
}

// Orchestrator runs the ordered release stage sequence against a
// VersionControl and a Forge. All collaborators are injected; tests
// substitute in-memory fakes.
type Orchestrator struct {
	config   *model.ReleaseConfig
	vcs      interfaces.VersionControl
	forge    interfaces.Forge
	tools    interfaces.ReleaseTools
	notifier interfaces.Notifier

	// startPoll bounds the short "has it started yet" waits, runPoll the
	// long "is it still running" waits, prPoll the wait for a pushed
	// commit to show up as a PR head.
	startPoll poll.Config
	runPoll   poll.Config
	prPoll    poll.Config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier installs an out-of-band notifier for human hand-offs.
func WithNotifier(n interfaces.Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithStartPoll overrides the short startup-wait budget.
func WithStartPoll(cfg poll.Config) Option {
	return func(o *Orchestrator) {
		o.startPoll = cfg
	}
}

// WithRunPoll overrides the long completion-wait budget.
func WithRunPoll(cfg poll.Config) Option {
	return func(o *Orchestrator) {
		o.runPoll = cfg
	}
}

// WithPRPoll overrides the PR propagation wait budget.
func WithPRPoll(cfg poll.Config) Option {
	return func(o *Orchestrator) {
		o.prPoll = cfg
	}
}

// New creates a release orchestrator.
func New(
	config *model.ReleaseConfig,
	vcs interfaces.VersionControl,
	forge interfaces.Forge,
	tools interfaces.ReleaseTools,
	options ...Option,
) *Orchestrator {
	o := &Orchestrator{
		config:    config,
		vcs:       vcs,
		forge:     forge,
		tools:     tools,
		startPoll: poll.Config{Attempts: 6, Interval: 10 * time.Second},
		runPoll:   poll.Config{Attempts: 120, Interval: 30 * time.Second},
		prPoll:    poll.Config{Attempts: 10, Interval: 5 * time.Second},
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Execute wraps the stage sequence in the scoped guards: local changes
// are stashed and restored around the whole run, the original branch is
// restored afterwards, and the working branch is hard-reset on any exit
// path so no half-mutated checkout is left behind.
func (o *Orchestrator) Execute(ctx context.Context) error {
	actor, err := o.forge.Actor(ctx)
	if err != nil {
		return err
	}
	ctxlog.From(ctx).Info("building release", "actor", actor, "repository", o.forge.Repository().String())

	return o.withStash(ctx, func(ctx context.Context) error {
		return o.withCheckout(ctx, o.config.Branch, func(ctx context.Context) error {
			return o.withResetOnExit(ctx, o.Run)
		})
	})
}

func (o *Orchestrator) require(condition bool, message string) error {
	if !condition {
		return goerr.New(message, goerr.T(stage.ErrTagInvalidState))
	}
	return nil
}

// Run executes the ordered stage sequence. It returns nil on full
// completion, a *stage.UserAbort when a human must act before the run
// can proceed, and an invalid-state error on any stage failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	branch, err := o.vcs.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if err := o.require(branch == o.config.Branch,
		fmt.Sprintf("must run on branch %q, currently on %q", o.config.Branch, branch)); err != nil {
		return err
	}
	clean, err := o.vcs.IsClean(ctx)
	if err != nil {
		return err
	}
	if err := o.require(clean, "working tree must be clean"); err != nil {
		return err
	}

	if err := o.stageInit(ctx); err != nil {
		return err
	}
	version, err := o.stageVersion(ctx)
	if err != nil {
		return err
	}
	if err := o.stageRenameIssue(ctx, version); err != nil {
		return err
	}
	if err := o.stageAssignMilestone(ctx, version); err != nil {
		return err
	}
	if err := o.stageProductionReady(ctx, version); err != nil {
		return err
	}
	o.refreshDashboard(ctx, version, model.CheckpointPreparation, "")

	merged, err := o.releaseMerged(ctx, version)
	if err != nil {
		return err
	}
	if merged {
		ctxlog.From(ctx).Info("release branch already merged", "branch", releaseBranch(version))
	} else {
		if err := o.stageBranch(ctx, version); err != nil {
			return err
		}
		if err := o.stageGitignore(ctx); err != nil {
			return err
		}
		if err := o.stageValidate(ctx); err != nil {
			return err
		}
		if err := o.stageReleaseNotes(ctx, version); err != nil {
			return err
		}
		if err := o.stageCommit(ctx, version); err != nil {
			return err
		}
		if err := o.stagePush(ctx); err != nil {
			return err
		}
		pr, err := o.stagePullRequest(ctx, version)
		if err != nil {
			return err
		}
		if o.config.DryRun && pr == nil {
			// Nothing was pushed or created; there is nothing to await.
			return nil
		}
		if err := o.stageAwaitChecks(ctx, version); err != nil {
			return err
		}
		if o.config.Verify {
			// CI self-check mode ends here: verification must not mark
			// the PR ready for review.
			return nil
		}
		if err := o.stageReadyForReview(ctx, version); err != nil {
			return err
		}
	}
	o.refreshDashboard(ctx, version, model.CheckpointReview, "")

	if err := o.stageAwaitMerged(ctx, version); err != nil {
		return err
	}
	if err := o.stageAwaitMasterBuild(ctx); err != nil {
		return err
	}
	o.refreshDashboard(ctx, version, model.CheckpointTagging, "")

	if err := o.stageTag(ctx, version); err != nil {
		return err
	}
	if err := o.stageSignTag(ctx, version); err != nil {
		return err
	}
	o.refreshDashboard(ctx, version, model.CheckpointBinaries, "")

	if err := o.stageBuildBinaries(ctx, version); err != nil {
		return err
	}
	if err := o.stageCreateTarballs(ctx, version); err != nil {
		return err
	}
	if err := o.stageSignAssets(ctx, version); err != nil {
		return err
	}
	if err := o.stageVerifyAssets(ctx, version); err != nil {
		return err
	}
	o.refreshDashboard(ctx, version, model.CheckpointPublication, "")

	if err := o.stageFormatNotes(ctx, version); err != nil {
		return err
	}
	if err := o.stagePublish(ctx, version); err != nil {
		return err
	}
	if err := o.stageCloseMilestone(ctx, version); err != nil {
		return err
	}
	if err := o.stageCloseIssue(ctx); err != nil {
		return err
	}
	o.refreshDashboard(ctx, version, "", "")
	return nil
}

// releaseMerged reports whether the release commit already landed in the
// main branch. Once it has, the whole preparation block is skipped on
// re-runs: a merged release branch is never redone.
func (o *Orchestrator) releaseMerged(ctx context.Context, version string) (bool, error) {
	subjects, err := o.vcs.Log(ctx, o.config.MainBranch, 100)
	if err != nil {
		return false, err
	}
	message := releaseCommitMessage(version)
	for _, subject := range subjects {
		if subject == message {
			return true, nil
		}
	}
	return false, nil
}

// headPR finds the PR whose head is the release commit. Nil when either
// the commit or the PR does not exist yet.
func (o *Orchestrator) headPR(ctx context.Context, version string) (*model.PullRequest, error) {
	sha, err := o.vcs.FindCommitSHA(ctx, releaseCommitMessage(version))
	if err != nil || sha == "" {
		return nil, err
	}
	return o.forge.FindPullRequest(ctx, sha, o.config.MainBranch)
}

// assignToUser swaps the tracking issue from the release bot to the
// invoking human and returns the UserAbort hand-off signal.
func (o *Orchestrator) assignToUser(ctx context.Context, s *stage.Stage, version string, current model.Checkpoint, action string) error {
	actor, err := o.forge.Actor(ctx)
	if err != nil {
		return err
	}
	if o.config.Issue != 0 {
		issue, err := o.forge.GetIssue(ctx, o.config.Issue)
		if err != nil {
			return err
		}
		if err := o.forge.UnassignIssue(ctx, issue.Number, []string{o.config.Bot}); err != nil {
			return err
		}
		if err := o.forge.AssignIssue(ctx, issue.Number, []string{actor}); err != nil {
			return err
		}
	}
	s.OK("Assigned to " + actor)

	abort := stage.NewUserAbort(action)
	if version != "" {
		o.refreshDashboard(ctx, version, current, action)
	}
	if o.notifier != nil {
		message := fmt.Sprintf("Release %s of %s needs attention: %s",
			version, o.forge.Repository().String(), action)
		if err := o.notifier.Notify(ctx, message); err != nil {
			ctxlog.From(ctx).Warn("failed to send hand-off notification", "error", err)
		}
	}
	return abort
}
