// internal/infra/slack/reporter.go
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"partner_report_engine/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

type poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// SweepReporter posts sweeps that had failing items to an ops channel.
type SweepReporter struct {
	client  poster
	channel string
	logger  *logrus.Entry
}

func NewSweepReporter(token, channel string, logger *logrus.Entry) *SweepReporter {
	return &SweepReporter{
		client:  slack.New(token),
		channel: channel,
		logger:  logger.WithField("component", "slack_reporter"),
	}
}

func (r *SweepReporter) ObserveSweep(_ context.Context, res app.SweepResult) {
	if res.Failed == 0 {
		return
	}
	attachment := slack.Attachment{
		Color: sweepColor(res),
		Title: fmt.Sprintf("Sweep %s finished with failures", res.Name),
		Fields: []slack.AttachmentField{
			{Title: "Processed", Value: strconv.Itoa(res.Processed), Short: true},
			{Title: "Succeeded", Value: strconv.Itoa(res.Succeeded), Short: true},
			{Title: "Skipped", Value: strconv.Itoa(res.Skipped), Short: true},
			{Title: "Failed", Value: strconv.Itoa(res.Failed), Short: true},
			{Title: "Duration", Value: res.Finished.Sub(res.Started).String(), Short: true},
		},
		Footer: "Partner report engine",
		Ts:     json.Number(strconv.FormatInt(res.Finished.Unix(), 10)),
	}
	if _, _, err := r.client.PostMessage(r.channel, slack.MsgOptionAttachments(attachment)); err != nil {
		r.logger.WithError(err).WithField("sweep", res.Name).Warn("Failed to post sweep summary to Slack")
	}
}

// sweepColor is red when nothing succeeded and amber otherwise.
func sweepColor(res app.SweepResult) string {
	if res.Succeeded == 0 {
		return "#ff0000"
	}
	return "#ffcc00"
}
