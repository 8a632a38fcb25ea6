package email

import (
	"context"
	"errors"
	"io"
	"testing"

	"partner_report_engine/internal/domain/notify"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	err  error
	sent []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSMTPSenderSend(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	s := newSender(Config{From: "reports@example.com", RatePerSec: 100}, d, quietLogger())

	err := s.Send(context.Background(), notify.Message{
		To:      []string{" a@example.com ", "", "b@example.com"},
		Subject: "Weekly report",
		Body:    "hello",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(d.sent))
	}
	m := d.sent[0]
	if got := m.GetHeader("To"); len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("To = %v", got)
	}
	if got := m.GetHeader("From"); len(got) != 1 || got[0] != "reports@example.com" {
		t.Fatalf("From = %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != "Weekly report" {
		t.Fatalf("Subject = %v", got)
	}
}

func TestSMTPSenderErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("dial tcp: connection refused")
	s := newSender(Config{From: "reports@example.com", RatePerSec: 100}, &fakeDialer{err: boom}, quietLogger())

	if err := s.Send(context.Background(), notify.Message{To: []string{"  "}}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("err = %v, want ErrNoRecipients", err)
	}
	if err := s.Send(context.Background(), notify.Message{To: []string{"a@example.com"}}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped dial error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := newSender(Config{From: "x@example.com", RatePerSec: 0.001}, &fakeDialer{}, quietLogger())
	_ = slow.Send(context.Background(), notify.Message{To: []string{"a@example.com"}}) // uses the single burst token
	if err := slow.Send(ctx, notify.Message{To: []string{"a@example.com"}}); err == nil {
		t.Fatal("expected the limiter to give up on a cancelled context")
	}
}
