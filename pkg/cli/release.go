package cli

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/relman-dev/relman/pkg/cli/config"
	"github.com/relman-dev/relman/pkg/infra/git"
	"github.com/relman-dev/relman/pkg/infra/github"
	"github.com/relman-dev/relman/pkg/infra/slack"
	"github.com/relman-dev/relman/pkg/infra/tools"
	"github.com/relman-dev/relman/pkg/usecase"
	"github.com/relman-dev/relman/pkg/utils/stage"
)

func cmdRelease() *cli.Command {
	var (
		releaseCfg config.Release
		githubCfg  config.GitHub
		slackCfg   config.Slack
	)

	flags := append(releaseCfg.Flags(), githubCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "release",
		Aliases: []string{"r"},
		Usage:   "Create or resume a release",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			vcs := git.New()
			root, err := vcs.Root(ctx)
			if err != nil {
				return err
			}
			// All stage file operations are relative to the repo root.
			if err := os.Chdir(root); err != nil {
				return goerr.Wrap(err, "failed to enter repository root", goerr.V("root", root))
			}

			slug, err := vcs.RemoteSlug(ctx, releaseCfg.Upstream)
			if err != nil {
				return err
			}

			options, err := githubCfg.Options()
			if err != nil {
				return err
			}
			forge, err := github.NewClient(slug, options...)
			if err != nil {
				return err
			}

			orchestrator := usecase.New(
				releaseCfg.ToModel(),
				vcs,
				forge,
				tools.New(forge, slug.Name, tools.WithGPGUser(releaseCfg.GPGUser)),
				usecase.WithNotifier(slack.New(slackCfg.WebhookURL)),
			)

			err = orchestrator.Execute(ctx)
			if abort, ok := stage.AsUserAbort(err); ok {
				// A human gate, not a failure: print the instruction and
				// exit cleanly.
				color.New(color.FgYellow, color.Bold).Println(abort.Error())
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("release run complete")
			return nil
		},
	}
}
