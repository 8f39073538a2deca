package usecase

import (
	"context"
	"fmt"

	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/utils/changelog"
	"github.com/relman-dev/relman/pkg/utils/stage"
)

func (o *Orchestrator) stageTag(ctx context.Context, version string) error {
	return stage.Run(ctx, "Tag release", "Tagging the release",
		func(ctx context.Context, s *stage.Stage) error {
			notes, err := changelog.Get(o.config.Changelog, version)
			if err != nil {
				return err
			}
			message := notes.Notes + "\n"

			exists, err := o.vcs.TagExists(ctx, version)
			if err != nil {
				return err
			}
			if exists {
				s.Progress("Tag " + version + " already exists")
				if o.config.CI {
					s.OK("No tag push required")
					return nil
				}
			} else {
				// CI tags are unsigned; a human re-signs them later.
				if err := o.vcs.CreateTag(ctx, version, message, !o.config.CI); err != nil {
					return err
				}
				s.Progress("Tagged " + version)
			}

			if o.config.DryRun {
				s.OK("Dry run; not pushing tag")
				return nil
			}
			if !o.config.CI {
				if err := o.vcs.PushTag(ctx, version, o.config.Upstream); err != nil {
					return err
				}
				s.OK(fmt.Sprintf("Pushed tag %s to %s", version, o.config.Upstream))
				return nil
			}

			s.Progress("Pushing tag " + version + " through the forge API")
			commit, err := o.vcs.BranchSHA(ctx, version)
			if err != nil {
				return err
			}
			sha, err := o.forge.CreateTag(ctx, commit, version, message)
			if err != nil {
				return err
			}
			release, err := o.forge.Release(ctx, version)
			if err != nil {
				return err
			}
			if release == nil {
				if _, err := o.forge.CreateRelease(ctx, version, version, !o.config.Production); err != nil {
					return err
				}
			}
			if err := o.vcs.Fetch(ctx, o.config.Upstream); err != nil {
				return err
			}
			s.OK(fmt.Sprintf("Tagged %s @ %s", version, sha))
			return nil
		})
}

func (o *Orchestrator) stageSignTag(ctx context.Context, version string) error {
	return stage.Run(ctx, "Sign tag", "Signing/verifying the release tag",
		func(ctx context.Context, s *stage.Stage) error {
			if err := o.vcs.Fetch(ctx, o.config.Upstream); err != nil {
				return err
			}
			signed, err := o.vcs.TagHasSignature(ctx, version)
			if err != nil {
				return err
			}
			if signed {
				valid, err := o.vcs.VerifyTag(ctx, version)
				if err != nil {
					return err
				}
				if !valid {
					return s.Failf("tag %s signature cannot be verified", version)
				}
				s.OK("Tag already signed")
				return nil
			}
			if o.config.CI {
				s.OK("Asking user to sign the tag")
				return o.assignToUser(ctx, s, version, model.CheckpointTagging, "sign the tag")
			}
			if err := o.vcs.SignTag(ctx, version); err != nil {
				return err
			}
			if !o.config.DryRun {
				if err := o.vcs.PushTag(ctx, version, o.config.Upstream); err != nil {
					return err
				}
			}
			s.OK("Tag signed")
			return nil
		})
}

// hasTarballs reports whether both source tarballs are already attached
// to the release.
func (o *Orchestrator) hasTarballs(ctx context.Context, version string) (bool, error) {
	assets, err := o.forge.ReleaseAssets(ctx, version)
	if err != nil {
		return false, err
	}
	names := make(map[string]bool, len(assets))
	for _, a := range assets {
		names[a.Name] = true
	}
	return names[version+".tar.gz"] && names[version+".tar.xz"], nil
}

func (o *Orchestrator) stageCreateTarballs(ctx context.Context, version string) error {
	return stage.Run(ctx, "Create tarballs", "Creating source tarballs",
		func(ctx context.Context, s *stage.Stage) error {
			done, err := o.hasTarballs(ctx, version)
			if err != nil {
				return err
			}
			if done {
				s.OK("Tarballs already created")
				return nil
			}
			if err := o.tools.CreateTarballs(ctx, version); err != nil {
				return err
			}
			s.OK("Tarballs created")
			return nil
		})
}

func (o *Orchestrator) stageSignAssets(ctx context.Context, version string) error {
	return stage.Run(ctx, "Sign release assets", "Signing release assets",
		func(ctx context.Context, s *stage.Stage) error {
			if o.config.CI {
				// CI has no signing key; it only reports what is missing.
				todo, err := o.tools.UnsignedAssets(ctx, version)
				if err != nil {
					return err
				}
				if len(todo) == 0 {
					s.OK("All release assets have been signed")
					return nil
				}
				s.Progress(fmt.Sprintf("%d release assets need signing", len(todo)))
				return o.assignToUser(ctx, s, version, model.CheckpointBinaries, "sign the assets")
			}
			if err := o.tools.SignAssets(ctx, version); err != nil {
				return err
			}
			s.OK("Release assets signed")
			return nil
		})
}

func (o *Orchestrator) stageVerifyAssets(ctx context.Context, version string) error {
	return stage.Run(ctx, "Verify release assets", "Verifying release assets",
		func(ctx context.Context, s *stage.Stage) error {
			count, err := o.tools.VerifyAssets(ctx, version)
			if err != nil {
				return err
			}
			s.OK(fmt.Sprintf("Release assets verified: %d assets", count))
			return nil
		})
}

func (o *Orchestrator) stageFormatNotes(ctx context.Context, version string) error {
	return stage.Run(ctx, "Format release notes", "Formatting release notes on the forge release",
		func(ctx context.Context, s *stage.Stage) error {
			notes, err := changelog.Get(o.config.Changelog, version)
			if err != nil {
				return err
			}
			if err := o.forge.SetReleaseNotes(ctx, version, notes.Formatted(), !o.config.Production); err != nil {
				return err
			}
			s.OK("Release notes formatted")
			return nil
		})
}

// stagePublish gates on the one irreversible step. Publishing stays a
// manual action; the stage only detects it and hands back when needed.
func (o *Orchestrator) stagePublish(ctx context.Context, version string) error {
	return stage.Run(ctx, "Publish release", "Publishing the release",
		func(ctx context.Context, s *stage.Stage) error {
			published, err := o.forge.ReleaseIsPublished(ctx, version)
			if err != nil {
				return err
			}
			if published {
				s.OK("Release already published")
				return nil
			}
			if o.config.CI {
				s.OK("Asking user to publish the release")
				return o.assignToUser(ctx, s, version, model.CheckpointPublication, "publish the release")
			}
			s.OK("Publish the release on the forge web UI")
			return nil
		})
}

func (o *Orchestrator) stageCloseMilestone(ctx context.Context, version string) error {
	return stage.Run(ctx, "Close milestone", "Closing the release milestone",
		func(ctx context.Context, s *stage.Stage) error {
			if !o.config.Production {
				s.OK("Not closing milestone for release candidate")
				return nil
			}
			milestone, err := o.forge.NextMilestone(ctx)
			if err != nil {
				return err
			}
			if milestone.Title != version {
				// Another release slipped in front of us.
				return s.Failf("milestone %s is not the next milestone", milestone.Title)
			}
			if err := o.forge.CloseMilestone(ctx, milestone.Number); err != nil {
				return err
			}
			s.OK(fmt.Sprintf("Milestone %s closed", milestone.Title))
			return nil
		})
}

func (o *Orchestrator) stageCloseIssue(ctx context.Context) error {
	return stage.Run(ctx, "Close issue", "Closing the release tracking issue",
		func(ctx context.Context, s *stage.Stage) error {
			if o.config.Issue == 0 {
				s.OK("No issue to close")
				return nil
			}
			issue, err := o.forge.GetIssue(ctx, o.config.Issue)
			if err != nil {
				return err
			}
			if issue.State == "closed" {
				s.OK("Issue already closed")
				return nil
			}
			if err := o.forge.CloseIssue(ctx, o.config.Issue); err != nil {
				return err
			}
			s.OK(fmt.Sprintf("Issue %d closed", o.config.Issue))
			return nil
		})
}
