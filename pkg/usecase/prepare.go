package usecase

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/domain/types"
	"github.com/relman-dev/relman/pkg/utils/changelog"
	"github.com/relman-dev/relman/pkg/utils/markdown"
	"github.com/relman-dev/relman/pkg/utils/stage"
)

func ptr[T any](v T) *T {
	return &v
}

func containsLine(body, want string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

func (o *Orchestrator) stageInit(ctx context.Context) error {
	if o.config.CI && o.config.Issue == 0 {
		return goerr.New("an issue number is required when running in CI",
			goerr.T(stage.ErrTagInvalidState))
	}
	if o.config.Issue == 0 {
		return nil
	}
	return stage.Run(ctx, "Check issue", "Checking the release tracking issue",
		func(ctx context.Context, s *stage.Stage) error {
			issue, err := o.forge.GetIssue(ctx, o.config.Issue)
			if err != nil {
				return err
			}
			if !issue.HasAssignee(o.config.Bot) {
				s.OK(fmt.Sprintf("Release issue %s is assigned to %v, not %s",
					issue.HTMLURL, issue.Assignees, o.config.Bot))
				return stage.NewUserAbort("assign the issue to " + o.config.Bot)
			}
			if !strings.HasPrefix(issue.Title, issueTitlePrefix) {
				// Someone pointed the run at a non-release issue.
				return o.assignToUser(ctx, s, "", "", "deal with the issue")
			}
			o.config.Production = containsLine(issue.Body, productionMarker)
			s.OK("Processing release issue " + issue.HTMLURL)
			return nil
		})
}

func (o *Orchestrator) stageVersion(ctx context.Context) (string, error) {
	remotes := []string{o.config.Upstream}
	if o.config.Upstream != "origin" {
		remotes = append(remotes, "origin")
	}
	err := stage.Run(ctx, "Fetch upstream",
		fmt.Sprintf("Fetching tags and branches from %v", remotes),
		func(ctx context.Context, s *stage.Stage) error {
			if err := o.vcs.Fetch(ctx, remotes...); err != nil {
				return err
			}
			if o.config.Branch == o.config.MainBranch {
				local, err := o.vcs.BranchSHA(ctx, "HEAD")
				if err != nil {
					return err
				}
				remote, err := o.vcs.BranchSHA(ctx, o.config.Upstream+"/"+o.config.Branch)
				if err != nil {
					return err
				}
				if local != remote {
					if err := o.vcs.Pull(ctx, o.config.Upstream); err != nil {
						return err
					}
				}
			}
			sha, err := o.vcs.BranchSHA(ctx, o.config.Upstream+"/"+o.config.MainBranch)
			if err != nil {
				return err
			}
			s.OK(sha[:7])
			return nil
		})
	if err != nil {
		return "", err
	}

	var version string
	err = stage.Run(ctx, "Version", "Determine the upcoming version",
		func(ctx context.Context, s *stage.Stage) error {
			if o.config.Issue != 0 {
				issue, err := o.forge.GetIssue(ctx, o.config.Issue)
				if err != nil {
					return err
				}
				if rest, ok := strings.CutPrefix(issue.Title, issueTitlePrefix+": "); ok {
					o.config.Version = rest
				}
			}
			if o.config.Version != "" {
				if o.config.Version == "latest" {
					latest, err := o.forge.LatestRelease(ctx)
					if err != nil {
						return err
					}
					version = latest
					s.OK("Using latest release " + version)
					return nil
				}
				if _, err := types.ParseVersion(o.config.Version); err != nil {
					return s.Failf("invalid version: %s (expected: %s)",
						o.config.Version, types.VersionRegex.String())
				}
				version = o.config.Version
				s.OK("Accepting override version " + version)
				return nil
			}

			milestone, err := o.forge.NextMilestone(ctx)
			if err != nil {
				return err
			}
			version = milestone.Title
			if !o.config.Production {
				rcs, err := o.forge.ReleaseCandidates(ctx, version)
				if err != nil {
					return err
				}
				next := 1
				for _, rc := range rcs {
					if rc >= next {
						next = rc + 1
					}
				}
				version = fmt.Sprintf("%s-rc.%d", version, next)
			}
			if _, err := types.ParseVersion(version); err != nil {
				return s.Failf("invalid computed version: %s", version)
			}
			s.OK(version)
			return nil
		})
	return version, err
}

func (o *Orchestrator) stageRenameIssue(ctx context.Context, version string) error {
	return stage.Run(ctx, "Rename issue", "Renaming the release tracking issue",
		func(ctx context.Context, s *stage.Stage) error {
			if o.config.Issue == 0 {
				s.OK("No issue to rename")
				return nil
			}
			title := releaseIssueTitle(version)
			issue, err := o.forge.GetIssue(ctx, o.config.Issue)
			if err != nil {
				return err
			}
			if issue.Title == title {
				s.OK(fmt.Sprintf("Issue already named %q", title))
				return nil
			}
			if err := o.forge.RenameIssue(ctx, o.config.Issue, title); err != nil {
				return err
			}
			s.OK(fmt.Sprintf("Issue renamed to %q", title))
			return nil
		})
}

func (o *Orchestrator) stageAssignMilestone(ctx context.Context, version string) error {
	return stage.Run(ctx, "Assign milestone", "Assigning the release milestone to the issue",
		func(ctx context.Context, s *stage.Stage) error {
			if o.config.Issue == 0 {
				s.OK("No issue to assign")
				return nil
			}
			title := version
			if !o.config.Production {
				// Candidates attach to the milestone of their final
				// version: strip the rc suffix.
				v, err := types.ParseVersion(version)
				if err != nil {
					return err
				}
				v.RC = 0
				title = v.String()
			}
			milestone, err := o.forge.Milestone(ctx, title)
			if err != nil {
				return err
			}
			if err := o.forge.SetIssueMilestone(ctx, o.config.Issue, milestone.Number); err != nil {
				return err
			}
			s.OK("Issue assigned to milestone " + milestone.Title)
			return nil
		})
}

// stageProductionReady gates production releases on an empty milestone.
// Release candidates may ship with open issues remaining.
func (o *Orchestrator) stageProductionReady(ctx context.Context, version string) error {
	return stage.Run(ctx, "Production ready", "Checking if the release has any more open issues",
		func(ctx context.Context, s *stage.Stage) error {
			if !o.config.Production {
				s.OK("Release candidate; not checking milestone")
				return nil
			}
			milestone, err := o.forge.NextMilestone(ctx)
			if err != nil {
				return err
			}
			issues, err := o.forge.OpenMilestoneIssues(ctx, milestone.Number)
			if err != nil {
				return err
			}
			var open []*model.Issue
			for _, issue := range issues {
				if issue.Title == releaseCommitMessage(version) || issue.Number == o.config.Issue {
					continue
				}
				open = append(open, issue)
			}
			if len(open) > 0 {
				return s.Failf("%d issues are still open for %s: %s",
					len(open), version, milestone.HTMLURL)
			}
			s.OK("No open issues for " + version)
			return nil
		})
}

func (o *Orchestrator) stageBranch(ctx context.Context, version string) error {
	return stage.Run(ctx, "Create release branch", "Creating a release branch",
		func(ctx context.Context, s *stage.Stage) error {
			branch := releaseBranch(version)
			local, err := o.vcs.Branches(ctx, "")
			if err != nil {
				return err
			}
			remote, err := o.vcs.Branches(ctx, "origin")
			if err != nil {
				return err
			}
			exists := false
			for _, b := range append(local, remote...) {
				if b == branch {
					exists = true
					break
				}
			}

			if !exists {
				if err := o.vcs.CreateBranch(ctx, branch, o.config.Branch); err != nil {
					return err
				}
				sha, err := o.vcs.BranchSHA(ctx, branch)
				if err != nil {
					return err
				}
				s.OK(fmt.Sprintf("Branch %q created @ %s", branch, sha[:7]))
			} else {
				if err := o.vcs.Checkout(ctx, branch); err != nil {
					return err
				}
				var action string
				if !o.config.Rebase {
					action = "skipping rebase"
				} else {
					last, err := o.vcs.LastCommitMessage(ctx, branch)
					if err != nil {
						return err
					}
					if last == releaseCommitMessage(version) {
						// The release commit is already on top; carry it
						// over instead of destroying it.
						moved, err := o.vcs.Rebase(ctx, o.config.Branch, 1)
						if err != nil {
							return err
						}
						if moved {
							action = "rebased onto " + o.config.Branch
						} else {
							action = "already on " + o.config.Branch
						}
					} else {
						if err := o.vcs.Reset(ctx, o.config.Branch); err != nil {
							return err
						}
						action = "reset to " + o.config.Branch
					}
				}
				s.OK(fmt.Sprintf("Branch %q already exists; %s", branch, action))
			}

			current, err := o.vcs.CurrentBranch(ctx)
			if err != nil {
				return err
			}
			if current != branch {
				return s.Failf("expected to be on %s, but on %s", branch, current)
			}
			return nil
		})
}

// stageGitignore makes sure the CI tools checkout under third_party can
// never be committed by accident.
func (o *Orchestrator) stageGitignore(ctx context.Context) error {
	return stage.Run(ctx, "Gitignore", "Ensuring third_party/ci-tools is ignored",
		func(ctx context.Context, s *stage.Stage) error {
			gitignore, entry := ".gitignore", "/third_party/ci-tools"
			if _, err := os.Stat("third_party/.gitignore"); err == nil {
				gitignore, entry = "third_party/.gitignore", "/ci-tools"
			}

			data, err := os.ReadFile(gitignore)
			if err != nil && !os.IsNotExist(err) {
				return goerr.Wrap(err, "failed to read gitignore", goerr.V("path", gitignore))
			}
			if containsLine(string(data), entry) {
				s.OK(fmt.Sprintf("%q already in %s", entry, gitignore))
				return nil
			}

			content := string(data)
			if content != "" && !strings.HasSuffix(content, "\n") {
				content += "\n"
			}
			content += entry + "\n"
			if err := os.WriteFile(gitignore, []byte(content), 0644); err != nil {
				return goerr.Wrap(err, "failed to write gitignore", goerr.V("path", gitignore))
			}
			if err := o.vcs.Add(ctx, gitignore); err != nil {
				return err
			}
			s.OK(fmt.Sprintf("Added %q to %s", entry, gitignore))
			return nil
		})
}

func (o *Orchestrator) stageValidate(ctx context.Context) error {
	return o.tools.ValidatePR(ctx, !o.config.Verify)
}

// extractIssueReleaseNotes pulls the "### Release notes" section out of
// the tracking issue body.
func extractIssueReleaseNotes(body string) string {
	start := strings.Index(body, releaseNotesHeader)
	if start == -1 {
		return ""
	}
	end := strings.Index(body[start+1:], "### ")
	if end == -1 {
		return strings.TrimSpace(body[start:])
	}
	return strings.TrimSpace(body[start : start+1+end])
}

func (o *Orchestrator) stageReleaseNotes(ctx context.Context, version string) error {
	return stage.Run(ctx, "Write release notes", "Updating the changelog",
		func(ctx context.Context, s *stage.Stage) error {
			if o.config.Resume {
				has, err := changelog.Has(o.config.Changelog, version)
				if err != nil {
					return err
				}
				if has {
					s.OK("Skipping")
					return nil
				}
			}
			if !o.config.CI {
				if err := o.tools.EditChangelog(ctx, o.config.Changelog); err != nil {
					return err
				}
				if err := o.vcs.Add(ctx, o.config.Changelog); err != nil {
					return err
				}
				s.OK("")
				return nil
			}

			// Unattended run: the notes live in the tracking issue body.
			milestone, err := o.forge.NextMilestone(ctx)
			if err != nil {
				return err
			}
			issues, err := o.forge.OpenMilestoneIssues(ctx, milestone.Number)
			if err != nil {
				return err
			}
			var tracking []*model.Issue
			for _, issue := range issues {
				if issue.HasAssignee(o.config.Bot) {
					tracking = append(tracking, issue)
				}
			}
			if len(tracking) == 0 {
				return s.Failf("no tracking issue found")
			}
			if len(tracking) > 1 {
				urls := make([]string, 0, len(tracking))
				for _, issue := range tracking {
					urls = append(urls, issue.HTMLURL)
				}
				return s.Failf("multiple tracking issues found: %s", strings.Join(urls, ", "))
			}
			notes := extractIssueReleaseNotes(tracking[0].Body)
			if notes == "" {
				return s.Failf("no release notes found in issue body")
			}
			if err := changelog.SetNotes(o.config.Changelog, version, notes); err != nil {
				return err
			}
			if err := o.vcs.Add(ctx, o.config.Changelog); err != nil {
				return err
			}
			s.OK("Release notes copied from " + tracking[0].HTMLURL)
			return nil
		})
}

func (o *Orchestrator) stageCommit(ctx context.Context, version string) error {
	return stage.Run(ctx, "Commit changes", "Committing changes",
		func(ctx context.Context, s *stage.Stage) error {
			notes, err := changelog.Get(o.config.Changelog, version)
			if err != nil {
				return err
			}
			clean, err := o.vcs.IsClean(ctx)
			if err != nil {
				return err
			}
			if clean {
				s.OK("No changes to commit")
				return nil
			}
			changed, err := o.vcs.ChangedFiles(ctx)
			if err != nil {
				return err
			}
			if err := o.vcs.Commit(ctx, releaseCommitMessage(version), notes.Notes+"\n"); err != nil {
				return err
			}
			s.OK(strings.Join(changed, ", "))
			return nil
		})
}

func (o *Orchestrator) stagePush(ctx context.Context) error {
	return stage.Run(ctx, "Push changes", "Pushing changes to origin",
		func(ctx context.Context, s *stage.Stage) error {
			branch, err := o.vcs.CurrentBranch(ctx)
			if err != nil {
				return err
			}
			upToDate, err := o.vcs.IsUpToDate(ctx, branch, o.config.Upstream)
			if err != nil {
				return err
			}
			if upToDate {
				s.OK("No changes to push")
				return nil
			}

			if o.config.DryRun {
				s.OK("Dry run; not pushing changes")
				return nil
			}
			if !o.config.CI {
				if err := o.vcs.Push(ctx, "origin", branch, o.config.Force); err != nil {
					return err
				}
				s.OK("")
				return nil
			}

			// CI cannot push directly: commits must carry a verifiable
			// signature, so the commit is rebuilt through the forge's git
			// data API and the local branch reset onto the result.
			sha, err := o.vcs.BranchSHA(ctx, branch)
			if err != nil {
				return err
			}
			message, err := o.vcs.CommitMessage(ctx, sha)
			if err != nil {
				return err
			}
			paths, err := o.vcs.FilesChanged(ctx, sha)
			if err != nil {
				return err
			}
			files := make([]model.TreeFile, 0, len(paths))
			for _, path := range paths {
				content, err := os.ReadFile(path)
				if err != nil {
					return goerr.Wrap(err, "failed to read changed file", goerr.V("path", path))
				}
				files = append(files, model.TreeFile{Path: path, Content: content})
			}
			base, err := o.vcs.BranchSHA(ctx, o.config.MainBranch)
			if err != nil {
				return err
			}
			newSHA, err := o.forge.PushSigned(ctx, &model.SignedCommit{
				Message:      message,
				BaseSHA:      base,
				TargetBranch: branch,
				Files:        files,
			})
			if err != nil {
				return err
			}
			if err := o.vcs.Fetch(ctx, o.config.Upstream); err != nil {
				return err
			}
			if err := o.vcs.Reset(ctx, newSHA); err != nil {
				return err
			}
			s.OK(newSHA)
			return nil
		})
}

func prPatch(pr *model.PullRequest, title, body string, milestone int) *model.PullRequestPatch {
	patch := &model.PullRequestPatch{}
	if pr.State != "open" {
		patch.State = ptr("open")
	}
	if pr.Title != title {
		patch.Title = ptr(title)
	}
	if pr.Milestone != milestone {
		patch.Milestone = ptr(milestone)
	}
	if markdown.SentinelBody(pr.Body) != strings.TrimSpace(body) {
		patch.Body = ptr(markdown.PatchSentinels(pr.Body, body))
	}
	return patch
}

// stagePullRequest creates or reconciles the release pull request. Only
// the fields that differ are patched, and only the sentinel-delimited
// part of the body is ever rewritten: human edits outside it survive.
func (o *Orchestrator) stagePullRequest(ctx context.Context, version string) (*model.PullRequest, error) {
	var result *model.PullRequest
	err := stage.Run(ctx, "Create pull request", "Creating a pull request",
		func(ctx context.Context, s *stage.Stage) error {
			title := releaseCommitMessage(version)
			notes, err := changelog.Get(o.config.Changelog, version)
			if err != nil {
				return err
			}
			slug, err := o.vcs.RemoteSlug(ctx, "origin")
			if err != nil {
				return err
			}
			head := slug.Owner + ":" + releaseBranch(version)
			base := o.config.MainBranch
			milestone, err := o.forge.NextMilestone(ctx)
			if err != nil {
				return err
			}
			existing, err := o.forge.FindPullRequestForBranch(ctx, head, base, "open")
			if err != nil {
				return err
			}

			if o.config.DryRun {
				s.OK("Dry run; not creating a pull request")
				s.Progress("intended pull request",
					"title", title, "head", head, "base", base,
					"milestone", milestone.Number)
				if existing != nil {
					s.Progress("existing pull request", "url", existing.HTMLURL)
				}
				return nil
			}

			if existing != nil {
				patch := prPatch(existing, title, notes.Notes, milestone.Number)
				if patch.Empty() {
					s.OK("PR already exists: " + existing.HTMLURL)
					result = existing
					return nil
				}
				if err := o.forge.UpdatePullRequest(ctx, existing.Number, patch); err != nil {
					return err
				}
				if patch.Milestone != nil {
					// The milestone field lives on the issue endpoint.
					if err := o.forge.SetIssueMilestone(ctx, existing.Number, milestone.Number); err != nil {
						return err
					}
				}
				s.OK("Modified PR: " + existing.HTMLURL)
				result = existing
				return nil
			}

			s.Progress(fmt.Sprintf("Creating PR: %s (%s -> %s)", title, head, base))
			pr, err := o.forge.CreatePullRequest(ctx, &model.NewPullRequest{
				Title:     title,
				Body:      markdown.PatchSentinels("", notes.Notes),
				Head:      head,
				Base:      base,
				Milestone: milestone.Number,
			})
			if err != nil {
				return err
			}
			s.OK(pr.HTMLURL)
			result = pr
			return nil
		})
	return result, err
}

func (o *Orchestrator) stageReadyForReview(ctx context.Context, version string) error {
	return stage.Run(ctx, "Ready for review", "Marking PR as ready for review",
		func(ctx context.Context, s *stage.Stage) error {
			pr, err := o.headPR(ctx, version)
			if err != nil {
				return err
			}
			if pr == nil {
				return s.Failf("PR not found")
			}
			if !pr.Draft {
				s.OK(fmt.Sprintf("PR %d is already ready for review", pr.Number))
				return nil
			}
			if err := o.forge.MarkReadyForReview(ctx, pr.NodeID); err != nil {
				return err
			}
			s.OK(fmt.Sprintf("PR %d is now ready for review", pr.Number))
			return nil
		})
}
