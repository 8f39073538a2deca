package model

// ReleaseConfig holds the per-invocation release settings. It is created
// once from CLI flags and never mutated afterwards, except Production and
// Version which may be back-filled from the tracking issue during
// initialization.
type ReleaseConfig struct {
	// Branch is the branch to build the release from.
	Branch string
	// MainBranch is the branch the release branch merges into.
	MainBranch string
	// DryRun disables pushes and PR creation.
	DryRun bool
	// Force force-pushes the release branch to origin.
	Force bool
	// CI indicates the run happens inside the forge's CI, where commits
	// and tags must be created through the signed API flow and human
	// gates hand the run back via UserAbort.
	CI bool
	// Issue is the release tracking issue number. 0 means none. Required
	// when CI is set.
	Issue int
	// Production builds a final release; otherwise a release candidate.
	Production bool
	// Rebase allows rebasing an existing release branch onto Branch.
	Rebase bool
	// Resume skips manual input steps where possible.
	Resume bool
	// Verify runs the CI self-check mode: validate the release branch
	// without marking the PR ready for review.
	Verify bool
	// Version is an explicit version override. Empty means auto-detect
	// from the next milestone. The special value "latest" resolves the
	// latest release on the forge.
	Version string
	// Upstream is the name of the upstream remote.
	Upstream string
	// Bot is the forge login of the release automation account that owns
	// tracking issues while the process runs unattended.
	Bot string
	// Changelog is the path of the changelog file, relative to the
	// repository root.
	Changelog string
}
