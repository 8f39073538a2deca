package config

import "github.com/urfave/cli/v3"

// Slack holds the optional hand-off notification configuration.
type Slack struct {
	WebhookURL string
}

// Flags returns CLI flags for Slack configuration
func (c *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Usage:       "Slack incoming webhook for human hand-off notifications",
			Destination: &c.WebhookURL,
			Sources:     cli.EnvVars("RELMAN_SLACK_WEBHOOK_URL"),
		},
	}
}
