package slack

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"partner_report_engine/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

type fakePoster struct {
	channels []string
	err      error
}

func (p *fakePoster) PostMessage(channelID string, _ ...slack.MsgOption) (string, string, error) {
	p.channels = append(p.channels, channelID)
	return channelID, "1", p.err
}

func newTestReporter(p *fakePoster) *SweepReporter {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &SweepReporter{client: p, channel: "#ops", logger: logrus.NewEntry(l)}
}

func TestSweepReporterPostsOnlyFailures(t *testing.T) {
	t.Parallel()
	p := &fakePoster{}
	r := newTestReporter(p)
	started := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	r.ObserveSweep(context.Background(), app.SweepResult{Name: app.SweepEscalations, Processed: 3, Succeeded: 3, Started: started, Finished: started})
	if len(p.channels) != 0 {
		t.Fatal("clean sweep should not be posted")
	}
	r.ObserveSweep(context.Background(), app.SweepResult{Name: app.SweepEscalations, Processed: 3, Succeeded: 2, Failed: 1, Started: started, Finished: started.Add(time.Second)})
	if len(p.channels) != 1 || p.channels[0] != "#ops" {
		t.Fatalf("posted to %v", p.channels)
	}

	p.err = errors.New("channel_not_found")
	r.ObserveSweep(context.Background(), app.SweepResult{Name: app.SweepReportConfigs, Failed: 1})
	if len(p.channels) != 2 {
		t.Fatal("post should still be attempted")
	}
}

func TestSweepColor(t *testing.T) {
	t.Parallel()
	if got := sweepColor(app.SweepResult{Failed: 2}); got != "#ff0000" {
		t.Fatalf("all failed color = %s", got)
	}
	if got := sweepColor(app.SweepResult{Failed: 1, Succeeded: 1}); got != "#ffcc00" {
		t.Fatalf("partial color = %s", got)
	}
}
