// Package slack delivers release notifications over an incoming webhook.
package slack

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/relman-dev/relman/pkg/domain/interfaces"
)

type notifier struct {
	webhookURL string
}

// New creates a webhook notifier. With an empty URL every Notify call is
// a no-op, so callers never need to branch on configuration.
func New(webhookURL string) interfaces.Notifier {
	return &notifier{webhookURL: webhookURL}
}

func (n *notifier) Notify(ctx context.Context, message string) error {
	if n.webhookURL == "" {
		ctxlog.From(ctx).Debug("slack webhook not configured, skipping notification")
		return nil
	}
	msg := &slack.WebhookMessage{Text: message}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack notification")
	}
	return nil
}
