package model

// Checkpoint is one of the five fixed, strictly ordered progress
// milestones of a release. A checkpoint is "done" when externally
// observable evidence for it exists; completion is never tracked in
// process memory.
type Checkpoint string

const (
	// CheckpointPreparation: the release PR exists.
	CheckpointPreparation Checkpoint = "Preparation"
	// CheckpointReview: the release PR is merged into the main branch.
	CheckpointReview Checkpoint = "Review"
	// CheckpointTagging: the release tag exists and is signed.
	CheckpointTagging Checkpoint = "Tagging"
	// CheckpointBinaries: binaries are built, tarballs uploaded and all
	// assets signed.
	CheckpointBinaries Checkpoint = "Binaries"
	// CheckpointPublication: the forge release is published.
	CheckpointPublication Checkpoint = "Publication"
)

// Checkpoints returns all checkpoints in their fixed order.
func Checkpoints() []Checkpoint {
	return []Checkpoint{
		CheckpointPreparation,
		CheckpointReview,
		CheckpointTagging,
		CheckpointBinaries,
		CheckpointPublication,
	}
}
