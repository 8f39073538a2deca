package interfaces

import (
	"context"
	"io"

	"github.com/relman-dev/relman/pkg/domain/model"
)

// Forge defines the code-hosting API operations the release orchestrator
// consumes. The production implementation talks to GitHub; tests
// substitute an in-memory fake.
//
// Read-mostly queries (milestones, issue fetch, release listing) may be
// served from an in-process cache; freshness-critical queries (pull
// requests, check runs, workflow runs, publish state) always hit the API.
// InvalidateCache discards all cached responses and must be called after
// mutations that change paginated listings.
type Forge interface {
	// Actor returns the login acting on the forge (the authenticated
	// user, or the CI actor when running in CI).
	Actor(ctx context.Context) (string, error)
	// Repository returns the slug of the repository being released.
	Repository() model.RepoSlug
	// InvalidateCache drops all cached API responses.
	InvalidateCache()

	// GetIssue fetches an issue by number.
	GetIssue(ctx context.Context, number int) (*model.Issue, error)
	// RenameIssue sets the issue title.
	RenameIssue(ctx context.Context, number int, title string) error
	// CloseIssue closes the issue.
	CloseIssue(ctx context.Context, number int) error
	// AssignIssue adds assignees to the issue.
	AssignIssue(ctx context.Context, number int, assignees []string) error
	// UnassignIssue removes assignees from the issue.
	UnassignIssue(ctx context.Context, number int, assignees []string) error
	// SetIssueMilestone assigns the issue (or PR) to a milestone.
	SetIssueMilestone(ctx context.Context, number, milestone int) error
	// PatchIssueSection idempotently replaces one markdown section of
	// the issue body, identified by its header line.
	PatchIssueSection(ctx context.Context, number int, header, content string) error
	// OpenMilestoneIssues lists the open issues of a milestone.
	OpenMilestoneIssues(ctx context.Context, milestone int) ([]*model.Issue, error)

	// Milestone returns the open milestone with the given title.
	Milestone(ctx context.Context, title string) (*model.Milestone, error)
	// NextMilestone returns the smallest open milestone whose title is a
	// full version (vMAJOR.MINOR.PATCH).
	NextMilestone(ctx context.Context) (*model.Milestone, error)
	// CloseMilestone closes the milestone with the given number.
	CloseMilestone(ctx context.Context, number int) error

	// CreatePullRequest opens a draft pull request.
	CreatePullRequest(ctx context.Context, pr *model.NewPullRequest) (*model.PullRequest, error)
	// FindPullRequest finds the PR whose head commit is headSHA,
	// targeting base. Returns nil when absent.
	FindPullRequest(ctx context.Context, headSHA, base string) (*model.PullRequest, error)
	// FindPullRequestForBranch finds a PR by head ("owner:branch"), base
	// and state ("open", "closed" or "all"). Returns nil when absent.
	FindPullRequestForBranch(ctx context.Context, head, base, state string) (*model.PullRequest, error)
	// UpdatePullRequest applies a field patch to a PR.
	UpdatePullRequest(ctx context.Context, number int, patch *model.PullRequestPatch) error
	// MarkReadyForReview flips a draft PR to ready (GraphQL mutation).
	MarkReadyForReview(ctx context.Context, nodeID string) error

	// CheckRuns returns all check runs for a commit, keyed by name.
	CheckRuns(ctx context.Context, sha string) (map[string]*model.CheckRun, error)
	// WorkflowRuns lists workflow runs for a branch at a head SHA.
	WorkflowRuns(ctx context.Context, branch, sha string) ([]*model.WorkflowRun, error)

	// LatestRelease returns the tag of the latest release.
	LatestRelease(ctx context.Context) (string, error)
	// ReleaseCandidates returns the RC numbers of published prereleases
	// of the given version.
	ReleaseCandidates(ctx context.Context, version string) ([]int, error)
	// Release returns the release object for a tag (draft or published).
	Release(ctx context.Context, tag string) (*model.Release, error)
	// CreateRelease creates a draft release for a tag.
	CreateRelease(ctx context.Context, tag, name string, prerelease bool) (*model.Release, error)
	// SetReleaseNotes sets the release body and prerelease flag.
	SetReleaseNotes(ctx context.Context, tag, notes string, prerelease bool) error
	// ReleaseIsPublished reports whether the release left draft state.
	// The publish state is re-read on every call so it can verify that
	// our own publishing worked.
	ReleaseIsPublished(ctx context.Context, tag string) (bool, error)
	// ReleaseAssets lists the assets attached to a release.
	ReleaseAssets(ctx context.Context, tag string) ([]*model.ReleaseAsset, error)
	// UploadReleaseAsset attaches a file to a release.
	UploadReleaseAsset(ctx context.Context, tag, name, contentType string, data io.Reader) error
	// DownloadReleaseAsset fetches an asset's content.
	DownloadReleaseAsset(ctx context.Context, assetID int64) ([]byte, error)

	// PushSigned creates a bot-signed commit through the git data API
	// and points the target branch at it. Returns the new commit SHA.
	PushSigned(ctx context.Context, commit *model.SignedCommit) (string, error)
	// CreateTag creates a bot-authored, unsigned annotated tag for a
	// commit through the git data API. A human signs it out-of-band
	// later. Returns the tag object SHA.
	CreateTag(ctx context.Context, commitSHA, tag, message string) (string, error)
}
