package interfaces

import "context"

// ReleaseTools groups the one-shot helper tools the orchestrator
// delegates to: PR validation, tarball creation, asset signing and
// verification. They contain no coordination logic of their own.
type ReleaseTools interface {
	// ValidatePR runs the PR validation checks (changelog freshness,
	// version-string consistency). commit selects whether fixups may be
	// committed.
	ValidatePR(ctx context.Context, commit bool) error
	// EditChangelog opens the user's editor on the changelog file.
	EditChangelog(ctx context.Context, path string) error
	// CreateTarballs builds the source tarballs (.tar.gz and .tar.xz)
	// for a tag and uploads them to the release.
	CreateTarballs(ctx context.Context, tag string) error
	// UnsignedAssets returns the names of release assets that still need
	// a detached signature.
	UnsignedAssets(ctx context.Context, tag string) ([]string, error)
	// SignAssets signs all unsigned release assets and uploads the
	// signatures.
	SignAssets(ctx context.Context, tag string) error
	// VerifyAssets verifies checksums and signatures of all release
	// assets. Returns the number of verified assets.
	VerifyAssets(ctx context.Context, tag string) (int, error)
	// ApplyRestyle applies automated style fixes to the working tree.
	ApplyRestyle(ctx context.Context) error
}

// Notifier delivers out-of-band notifications when the run hands back to
// a human. Implementations must be safe to call with an empty
// configuration (no-op).
type Notifier interface {
	// Notify sends a human-facing message about the release.
	Notify(ctx context.Context, message string) error
}
