package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/utils/poll"
	"github.com/relman-dev/relman/pkg/utils/stage"
)

// awaitHeadPR waits for the just-pushed release commit to show up as a
// PR head. Propagation to the PR endpoint can lag the push by seconds.
func (o *Orchestrator) awaitHeadPR(ctx context.Context, s *stage.Stage, version string) (*model.PullRequest, error) {
	var pr *model.PullRequest
	err := poll.Wait(ctx, o.prPoll, "release PR for "+version,
		func(ctx context.Context) (bool, error) {
			found, err := o.headPR(ctx, version)
			if err != nil {
				return false, err
			}
			if found == nil {
				s.Progress("Waiting for release PR for " + version)
				return false, nil
			}
			pr = found
			return true, nil
		})
	return pr, err
}

func (o *Orchestrator) stageAwaitChecks(ctx context.Context, version string) error {
	return stage.Run(ctx, "Await checks", "Waiting for checks to pass",
		func(ctx context.Context, s *stage.Stage) error {
			return poll.Wait(ctx, o.runPoll, "checks to pass",
				func(ctx context.Context) (bool, error) {
					pr, err := o.awaitHeadPR(ctx, s, version)
					if err != nil {
						return false, err
					}
					checks, err := o.forge.CheckRuns(ctx, pr.HeadSHA)
					if err != nil {
						return false, err
					}
					if len(checks) == 0 {
						s.Progress("Awaiting checks to start")
						return false, nil
					}
					if o.config.Verify {
						// Our own verification run never completes while
						// we wait for it.
						delete(checks, selfCheckName)
					}

					var completed, inProgress, success, neutral int
					var failures []string
					for name, check := range checks {
						if check.Status == "completed" {
							completed++
						}
						if check.Status == "in_progress" {
							inProgress++
						}
						switch check.Conclusion {
						case "success":
							success++
						case "neutral":
							neutral++
						case "failure":
							failures = append(failures, name)
						}
					}
					sort.Strings(failures)

					if completed == len(checks) {
						if len(failures) > 0 {
							return false, s.Failf("%d checks failed on %s: %s",
								len(failures), pr.HTMLURL, strings.Join(failures, ", "))
						}
						s.OK(fmt.Sprintf("All %d checks passed", completed))
						return true, nil
					}

					s.Progress(fmt.Sprintf("%d checks passed, %d neutral, %d failed, %d in progress",
						success, neutral, len(failures), inProgress))
					if restyle, ok := checks[restyleCheckName]; ok && restyle.Conclusion == "failure" {
						if err := o.stageRestyled(ctx, s, version); err != nil {
							return false, err
						}
					}
					return false, nil
				})
		})
}

// stageRestyled recovers from a failing style check: apply the automated
// fixes, commit and push them, then let the caller resume polling.
func (o *Orchestrator) stageRestyled(ctx context.Context, parent *stage.Stage, version string) error {
	if o.config.Verify {
		// The CI self-check must not push new commits.
		return nil
	}
	return parent.Run(ctx, "Restyled", "Applying restyle fixes",
		func(ctx context.Context, s *stage.Stage) error {
			if err := o.tools.ApplyRestyle(ctx); err != nil {
				return err
			}
			clean, err := o.vcs.IsClean(ctx)
			if err != nil {
				return err
			}
			if clean {
				return s.Failf("failed to apply restyle changes")
			}
			if err := o.vcs.Add(ctx, "."); err != nil {
				return err
			}
			if err := o.stageCommit(ctx, version); err != nil {
				return err
			}
			if err := o.stagePush(ctx); err != nil {
				return err
			}
			s.OK("Restyle changes applied")
			return nil
		})
}

// stageAwaitMerged waits for automerge to land the release PR; the
// orchestrator never merges it itself.
func (o *Orchestrator) stageAwaitMerged(ctx context.Context, version string) error {
	return stage.Run(ctx, "Await merged", "Waiting for the PR to be merged",
		func(ctx context.Context, s *stage.Stage) error {
			return poll.Wait(ctx, o.runPoll, "the release PR to be merged",
				func(ctx context.Context) (bool, error) {
					pr, err := o.headPR(ctx, version)
					if err != nil {
						return false, err
					}
					if pr == nil {
						return false, s.Failf("PR not found for %s", version)
					}
					switch pr.State {
					case "closed":
						if !pr.Merged {
							return false, s.Failf("PR %d was closed without being merged", pr.Number)
						}
						s.OK(fmt.Sprintf("PR %d was merged", pr.Number))
						if err := o.vcs.Checkout(ctx, o.config.MainBranch); err != nil {
							return false, err
						}
						if err := o.vcs.Pull(ctx, o.config.Upstream); err != nil {
							return false, err
						}
						return true, nil
					case "open":
						s.Progress(fmt.Sprintf("PR %d is still open", pr.Number))
					default:
						s.Progress(fmt.Sprintf("PR %d is %s", pr.Number, pr.State))
					}
					return false, nil
				})
		})
}

func (o *Orchestrator) stageAwaitMasterBuild(ctx context.Context) error {
	return stage.Run(ctx, "Await main build",
		fmt.Sprintf("Waiting for the %s branch to be built", o.config.MainBranch),
		func(ctx context.Context, s *stage.Stage) error {
			return poll.Wait(ctx, o.runPoll, o.config.MainBranch+" branch build",
				func(ctx context.Context) (bool, error) {
					head, err := o.vcs.BranchSHA(ctx, o.config.MainBranch)
					if err != nil {
						return false, err
					}
					runs, err := o.forge.WorkflowRuns(ctx, o.config.MainBranch, head)
					if err != nil {
						return false, err
					}
					var builds []*model.WorkflowRun
					for _, run := range runs {
						// Issue events trigger this very process; they are
						// not builds.
						if run.Event != "issues" {
							builds = append(builds, run)
						}
					}
					if len(builds) == 0 {
						s.Progress("Waiting for builds to start for " + o.config.MainBranch)
						return false, nil
					}
					var incomplete []*model.WorkflowRun
					for _, build := range builds {
						if build.Conclusion == "failure" {
							return false, s.Failf("main branch failed to build: %s", build.HTMLURL)
						}
						if build.Status != "completed" {
							incomplete = append(incomplete, build)
						}
					}
					if len(incomplete) == 0 {
						s.OK("Main branch built")
						return true, nil
					}
					s.Progress("Main branch still building: " + incomplete[0].HTMLURL)
					return false, nil
				})
		})
}

// stageBuildBinaries waits for the CI workflows triggered by the tag
// push to finish. A short probe loop decides whether any builds started
// at all: in CI their absence means the tag still awaits a human
// signature, so the run hands back instead of timing out an hour later.
func (o *Orchestrator) stageBuildBinaries(ctx context.Context, version string) error {
	return stage.Run(ctx, "Build binaries", "Waiting for binaries to be built",
		func(ctx context.Context, s *stage.Stage) error {
			tagRuns := func(ctx context.Context) ([]*model.WorkflowRun, error) {
				// Re-fetch first: a human signing the tag moves its SHA.
				if err := o.vcs.Fetch(ctx, o.config.Upstream); err != nil {
					return nil, err
				}
				head, err := o.vcs.BranchSHA(ctx, version)
				if err != nil {
					return nil, err
				}
				return o.forge.WorkflowRuns(ctx, version, head)
			}

			err := poll.Wait(ctx, o.startPoll, "binary builds to start",
				func(ctx context.Context) (bool, error) {
					builds, err := tagRuns(ctx)
					if err != nil {
						return false, err
					}
					if len(builds) > 0 {
						return true, nil
					}
					s.Progress("Waiting for builds to start for " + version)
					return false, nil
				})
			if err != nil {
				if !goerr.HasTag(err, poll.ErrTagTimeout) {
					return err
				}
				if o.config.CI {
					s.OK("No builds found; waiting for a human to sign the tag")
					return o.assignToUser(ctx, s, version, model.CheckpointBinaries, "sign the tag")
				}
				// Interactively, absence just means "still starting".
			}

			return poll.Wait(ctx, o.runPoll, "binaries to be built",
				func(ctx context.Context) (bool, error) {
					builds, err := tagRuns(ctx)
					if err != nil {
						return false, err
					}
					if len(builds) == 0 {
						s.Progress("Waiting for builds to start for " + version)
						return false, nil
					}
					var incomplete []*model.WorkflowRun
					for _, build := range builds {
						if build.Conclusion == "failure" {
							return false, s.Failf("binaries failed to build: %s", build.HTMLURL)
						}
						if build.Status != "completed" {
							incomplete = append(incomplete, build)
						}
					}
					if len(incomplete) > 0 {
						s.Progress("Binaries still building: " + incomplete[0].HTMLURL)
						return false, nil
					}
					s.OK(fmt.Sprintf("Binaries built: %d workflows completed", len(builds)))
					// The release created by the tag push must be visible
					// to the asset stages that follow.
					o.forge.InvalidateCache()
					return true, nil
				})
		})
}
