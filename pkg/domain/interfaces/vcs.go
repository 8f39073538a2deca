package interfaces

import (
	"context"

	"github.com/relman-dev/relman/pkg/domain/model"
)

// VersionControl defines the git operations the release orchestrator
// consumes. The production implementation shells out to git; tests
// substitute an in-memory fake.
type VersionControl interface {
	// Root returns the top-level directory of the repository.
	Root(ctx context.Context) (string, error)

	// Fetch fetches tags and branches from the given remotes.
	Fetch(ctx context.Context, remotes ...string) error
	// Pull rebases the current branch onto its counterpart at remote.
	Pull(ctx context.Context, remote string) error
	// Push pushes branch to remote, optionally with force.
	Push(ctx context.Context, remote, branch string, force bool) error

	// RemoteSlug parses owner/name out of the remote's URL.
	RemoteSlug(ctx context.Context, remote string) (model.RepoSlug, error)
	// Remotes lists the configured remote names.
	Remotes(ctx context.Context) ([]string, error)

	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context) (string, error)
	// Branches lists branch names, either local (remote == "") or of the
	// given remote with the remote prefix stripped.
	Branches(ctx context.Context, remote string) ([]string, error)
	// BranchSHA resolves a ref to its commit SHA.
	BranchSHA(ctx context.Context, ref string) (string, error)
	// CreateBranch creates branch from base and checks it out.
	CreateBranch(ctx context.Context, branch, base string) error
	// Checkout switches to the given branch.
	Checkout(ctx context.Context, branch string) error
	// Reset hard-resets the current branch to ref.
	Reset(ctx context.Context, ref string) error
	// Rebase rebases the current branch onto another branch. If commits
	// is non-zero, only the last n commits are carried over. Reports
	// whether HEAD moved.
	Rebase(ctx context.Context, onto string, commits int) (bool, error)

	// IsClean reports whether the working tree and index are clean.
	IsClean(ctx context.Context) (bool, error)
	// HasLocalChanges reports whether the working tree differs from HEAD.
	HasLocalChanges(ctx context.Context) (bool, error)
	// ChangedFiles lists files that differ from HEAD.
	ChangedFiles(ctx context.Context) ([]string, error)
	// Add stages the given paths.
	Add(ctx context.Context, paths ...string) error
	// Commit commits staged changes, amending when the last commit
	// already carries the same title.
	Commit(ctx context.Context, title, body string) error
	// StashPush stashes local changes including untracked files.
	StashPush(ctx context.Context) error
	// StashPop restores the most recent stash.
	StashPop(ctx context.Context) error

	// Log returns the most recent commit subjects of a branch.
	Log(ctx context.Context, branch string, count int) ([]string, error)
	// LastCommitMessage returns the subject of the branch's last commit.
	LastCommitMessage(ctx context.Context, branch string) (string, error)
	// FindCommitSHA finds the newest commit whose message matches.
	FindCommitSHA(ctx context.Context, message string) (string, error)
	// CommitMessage returns the full message of a commit.
	CommitMessage(ctx context.Context, sha string) (string, error)
	// FilesChanged lists the files changed by a commit.
	FilesChanged(ctx context.Context, commit string) ([]string, error)
	// IsUpToDate reports whether branch matches its remote counterpart.
	IsUpToDate(ctx context.Context, branch, remote string) (bool, error)

	// TagExists reports whether the release tag exists.
	TagExists(ctx context.Context, tag string) (bool, error)
	// CreateTag creates an annotated tag, GPG-signed when sign is set.
	CreateTag(ctx context.Context, tag, message string, sign bool) error
	// TagHasSignature reports whether the tag carries a PGP signature.
	TagHasSignature(ctx context.Context, tag string) (bool, error)
	// VerifyTag verifies the tag's signature.
	VerifyTag(ctx context.Context, tag string) (bool, error)
	// SignTag force-signs an existing tag, keeping its annotation.
	SignTag(ctx context.Context, tag string) error
	// PushTag force-pushes a tag to a remote.
	PushTag(ctx context.Context, tag, remote string) error
}
