package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/ctxlog"

	"github.com/relman-dev/relman/pkg/domain/model"
)

// progressHeader is the issue-body section owned by the dashboard.
const progressHeader = "### Release progress"

// RenderDashboard renders the release progress checklist. It is a pure
// function of its inputs: checkpoints appear in their fixed order, done
// ones are checked, the current one is highlighted, and a pending human
// action is quoted verbatim beneath it. Identical inputs produce
// byte-identical output so the issue-body patch is idempotent.
func RenderDashboard(done map[model.Checkpoint]bool, current model.Checkpoint, instruction string) string {
	var b strings.Builder
	for _, cp := range model.Checkpoints() {
		mark := " "
		if done[cp] {
			mark = "x"
		}
		if cp == current {
			fmt.Fprintf(&b, "- [%s] **%s** (Current Step)\n", mark, cp)
			if instruction != "" {
				fmt.Fprintf(&b, "  - **Action Required**: %s\n", instruction)
			}
		} else {
			fmt.Fprintf(&b, "- [%s] %s\n", mark, cp)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// progressState derives the set of completed checkpoints from external
// state alone, re-queried fresh. Nothing here consults process memory: a
// killed-and-restarted run reconstructs the identical set.
func (o *Orchestrator) progressState(ctx context.Context, version string) (map[model.Checkpoint]bool, error) {
	done := make(map[model.Checkpoint]bool)

	pr, err := o.headPR(ctx, version)
	if err != nil {
		return nil, err
	}
	done[model.CheckpointPreparation] = pr != nil

	merged, err := o.releaseMerged(ctx, version)
	if err != nil {
		return nil, err
	}
	done[model.CheckpointReview] = merged

	tagged, err := o.vcs.TagExists(ctx, version)
	if err != nil {
		return nil, err
	}
	if tagged {
		signed, err := o.vcs.TagHasSignature(ctx, version)
		if err != nil {
			return nil, err
		}
		done[model.CheckpointTagging] = signed
	}

	release, err := o.forge.Release(ctx, version)
	if err != nil {
		return nil, err
	}
	if release != nil {
		tarballs, err := o.hasTarballs(ctx, version)
		if err != nil {
			return nil, err
		}
		if tarballs {
			unsigned, err := o.tools.UnsignedAssets(ctx, version)
			if err != nil {
				return nil, err
			}
			done[model.CheckpointBinaries] = len(unsigned) == 0
		}
		done[model.CheckpointPublication] = release.Published
	}

	return done, nil
}

// refreshDashboard recomputes the checkpoint set and patches the
// progress section of the tracking issue. The dashboard is a view of
// external state, never a store of truth, so failures here are logged
// and do not abort the release.
func (o *Orchestrator) refreshDashboard(ctx context.Context, version string, current model.Checkpoint, instruction string) {
	if o.config.Issue == 0 || o.config.DryRun {
		return
	}
	done, err := o.progressState(ctx, version)
	if err != nil {
		ctxlog.From(ctx).Warn("failed to derive release progress", "error", err)
		return
	}
	body := RenderDashboard(done, current, instruction)
	if err := o.forge.PatchIssueSection(ctx, o.config.Issue, progressHeader, body); err != nil {
		ctxlog.From(ctx).Warn("failed to update release dashboard", "error", err)
	}
}
