package config

import (
	"github.com/urfave/cli/v3"

	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/utils/changelog"
)

// Release holds the release invocation settings. Flags mirror
// model.ReleaseConfig one to one.
type Release struct {
	Branch     string
	MainBranch string
	DryRun     bool
	Force      bool
	CI         bool
	Issue      int
	Production bool
	Rebase     bool
	Resume     bool
	Verify     bool
	Version    string
	Upstream   string
	Bot        string
	Changelog  string
	GPGUser    string
}

// Flags returns CLI flags for the release configuration
func (c *Release) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "branch",
			Usage:       "The branch to build the release from",
			Value:       "master",
			Destination: &c.Branch,
			Sources:     cli.EnvVars("RELMAN_BRANCH"),
		},
		&cli.StringFlag{
			Name:        "main-branch",
			Usage:       "The branch to merge the release branch into",
			Value:       "master",
			Destination: &c.MainBranch,
			Sources:     cli.EnvVars("RELMAN_MAIN_BRANCH"),
		},
		&cli.BoolFlag{
			Name:        "dryrun",
			Usage:       "Do not push changes to origin",
			Destination: &c.DryRun,
			Sources:     cli.EnvVars("RELMAN_DRYRUN"),
		},
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "Force-push the release branch to origin",
			Value:       true,
			Destination: &c.Force,
			Sources:     cli.EnvVars("RELMAN_FORCE"),
		},
		&cli.BoolFlag{
			Name:        "github-actions",
			Usage:       "Running unattended in GitHub Actions",
			Destination: &c.CI,
			Sources:     cli.EnvVars("RELMAN_GITHUB_ACTIONS"),
		},
		&cli.IntFlag{
			Name:        "issue",
			Usage:       "Number of the release tracking issue (required in CI)",
			Destination: &c.Issue,
			Sources:     cli.EnvVars("RELMAN_ISSUE"),
		},
		&cli.BoolFlag{
			Name:        "production",
			Usage:       "Build a production release instead of a release candidate",
			Destination: &c.Production,
			Sources:     cli.EnvVars("RELMAN_PRODUCTION"),
		},
		&cli.BoolFlag{
			Name:        "rebase",
			Usage:       "Rebase an existing release branch onto the base branch",
			Value:       true,
			Destination: &c.Rebase,
			Sources:     cli.EnvVars("RELMAN_REBASE"),
		},
		&cli.BoolFlag{
			Name:        "resume",
			Usage:       "Skip manual input steps where possible",
			Destination: &c.Resume,
			Sources:     cli.EnvVars("RELMAN_RESUME"),
		},
		&cli.BoolFlag{
			Name:        "verify",
			Usage:       "CI self-check mode: validate the release branch only",
			Destination: &c.Verify,
			Sources:     cli.EnvVars("RELMAN_VERIFY"),
		},
		&cli.StringFlag{
			Name:        "version",
			Usage:       "Version to release ('latest' = the current latest release; default: next milestone)",
			Destination: &c.Version,
			Sources:     cli.EnvVars("RELMAN_VERSION"),
		},
		&cli.StringFlag{
			Name:        "upstream",
			Usage:       "The name of the upstream remote",
			Value:       "upstream",
			Destination: &c.Upstream,
			Sources:     cli.EnvVars("RELMAN_UPSTREAM"),
		},
		&cli.StringFlag{
			Name:        "bot",
			Usage:       "Forge login of the release automation account",
			Value:       "relman-releaser",
			Destination: &c.Bot,
			Sources:     cli.EnvVars("RELMAN_BOT"),
		},
		&cli.StringFlag{
			Name:        "changelog",
			Usage:       "Path of the changelog file",
			Value:       changelog.DefaultPath,
			Destination: &c.Changelog,
			Sources:     cli.EnvVars("RELMAN_CHANGELOG"),
		},
		&cli.StringFlag{
			Name:        "gpg-user",
			Usage:       "GPG key to sign release assets with",
			Destination: &c.GPGUser,
			Sources:     cli.EnvVars("RELMAN_GPG_USER"),
		},
	}
}

// ToModel converts the flag values into the domain config.
func (c *Release) ToModel() *model.ReleaseConfig {
	return &model.ReleaseConfig{
		Branch:     c.Branch,
		MainBranch: c.MainBranch,
		DryRun:     c.DryRun,
		Force:      c.Force,
		CI:         c.CI,
		Issue:      c.Issue,
		Production: c.Production,
		Rebase:     c.Rebase,
		Resume:     c.Resume,
		Verify:     c.Verify,
		Version:    c.Version,
		Upstream:   c.Upstream,
		Bot:        c.Bot,
		Changelog:  c.Changelog,
	}
}
