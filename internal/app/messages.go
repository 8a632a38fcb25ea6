// internal/app/messages.go
package app

import (
	"fmt"
	"strings"
	"time"

	"partner_report_engine/internal/domain/partner"
	"partner_report_engine/internal/domain/report"
	"partner_report_engine/internal/domain/request"
	"partner_report_engine/internal/domain/schedule"
	"partner_report_engine/internal/domain/token"
)

const dateLayout = "2006-01-02"

func reportTitle(period schedule.Period, w schedule.Window) string {
	name := "Weekly"
	if period == schedule.PeriodMonthly {
		name = "Monthly"
	}
	return fmt.Sprintf("%s report %s ~ %s", name, w.Start.In(schedule.OrgZone).Format(dateLayout), w.End.In(schedule.OrgZone).Format(dateLayout))
}

func reportDeliveryBody(g *report.Generated) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", g.Title)
	fmt.Fprintf(&b, "Period: %s - %s\n\n", g.PeriodStart.In(schedule.OrgZone).Format(dateLayout), g.PeriodEnd.In(schedule.OrgZone).Format(dateLayout))
	b.Write(g.Data)
	return b.String()
}

func responseLink(baseURL string, t *token.PartnerToken) string {
	return strings.TrimRight(baseURL, "/") + "/partner-reports/" + t.Secret
}

func requestMessage(p *partner.Partner, r *request.Request, t *token.PartnerToken, baseURL string) (subject, body string) {
	subject = "Report request"
	body = fmt.Sprintf("Hello %s,\n\nPlease submit your report by %s.\n\n%s\n",
		p.Name, r.DeadlineAt.In(schedule.OrgZone).Format("2006-01-02 15:04"), responseLink(baseURL, t))
	return subject, body
}

func reminderMessage(p *partner.Partner, r *request.Request, t *token.PartnerToken, baseURL string, now time.Time) (subject, body string) {
	days := request.DaysOverdue(r.DeadlineAt, now)
	deadline := r.DeadlineAt.In(schedule.OrgZone).Format("2006-01-02 15:04")
	link := responseLink(baseURL, t)
	if request.UrgencyFor(r.EscalationLevel) == request.UrgencyUrgent {
		subject = fmt.Sprintf("[URGENT] Report overdue by %d days", days)
		body = fmt.Sprintf("Hello %s,\n\nYour report was due on %s and is now %d days overdue. Submit it immediately:\n\n%s\n",
			p.Name, deadline, days, link)
		return subject, body
	}
	subject = "Reminder: report overdue"
	body = fmt.Sprintf("Hello %s,\n\nThis is a reminder that your report was due on %s. Please submit it here:\n\n%s\n",
		p.Name, deadline, link)
	return subject, body
}
