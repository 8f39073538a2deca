package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/relman-dev/relman/pkg/infra/github"
)

// GitHub holds forge authentication configuration. Either a personal
// token or GitHub App installation credentials can be used.
type GitHub struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKey     string
}

// Flags returns CLI flags for forge configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub access token",
			Destination: &c.Token,
			Sources:     cli.EnvVars("RELMAN_GITHUB_TOKEN", "GITHUB_TOKEN"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID (App authentication)",
			Destination: &c.AppID,
			Sources:     cli.EnvVars("RELMAN_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-installation-id",
			Usage:       "GitHub App installation ID",
			Destination: &c.InstallationID,
			Sources:     cli.EnvVars("RELMAN_GITHUB_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-private-key",
			Usage:       "Path to the GitHub App private key",
			Destination: &c.PrivateKey,
			Sources:     cli.EnvVars("RELMAN_GITHUB_PRIVATE_KEY"),
		},
	}
}

// Options builds the forge client options from the configuration.
func (c *GitHub) Options() ([]github.Option, error) {
	if c.AppID != 0 {
		key, err := os.ReadFile(c.PrivateKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read GitHub App private key",
				goerr.V("path", c.PrivateKey))
		}
		return []github.Option{github.WithAppAuth(c.AppID, c.InstallationID, key)}, nil
	}
	if c.Token != "" {
		return []github.Option{github.WithToken(c.Token)}, nil
	}
	return nil, goerr.New("either a GitHub token or App credentials are required")
}
