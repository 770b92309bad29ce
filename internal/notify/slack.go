// Package notify posts run summaries to Slack. Notification is best-effort:
// a failed post is logged and never affects the exit status of the run.
package notify

import (
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/autotester/autotester/internal/reconcile"
)

// Notifier posts reconciliation summaries to a Slack channel.
type Notifier struct {
	client  *slack.Client
	channel string
}

// NewNotifier creates a notifier, or nil when no token is configured so
// callers can use a nil-safe Post.
func NewNotifier(token, channel string) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	return &Notifier{
		client:  slack.New(token),
		channel: channel,
	}
}

// Post sends the summaries for all services reconciled in this invocation.
func (n *Notifier) Post(environment string, summaries []reconcile.Summary) {
	if n == nil {
		return
	}

	message := FormatSummaries(environment, summaries)
	_, _, err := n.client.PostMessage(
		n.channel,
		slack.MsgOptionText(message, false),
	)
	if err != nil {
		log.Printf("Failed to post Slack summary: %v", err)
		return
	}
	log.Printf("Posted run summary to Slack channel %s", n.channel)
}

// FormatSummaries renders the Slack message text for a set of passes.
func FormatSummaries(environment string, summaries []reconcile.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Autotester reconciliation (%s)*\n", environment)

	for _, summary := range summaries {
		status := ":white_check_mark:"
		if !summary.Ok() {
			status = ":red_circle:"
		}
		fmt.Fprintf(&b, "%s %s: created %d, updated %d, closed %d, unchanged %d, failed %d\n",
			status, summary.Service.Name,
			summary.Created, summary.Updated, summary.Closed, summary.Unchanged, summary.Failed)

		for _, result := range summary.Results {
			if result.Err == nil {
				continue
			}
			fmt.Fprintf(&b, "    • %s: %v\n", result.Key, result.Err)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
