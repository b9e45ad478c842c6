package notify

import (
	"fmt"
	"strings"

	"github.com/bissquit/status-garden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// humanize turns an enum value like "partial_outage" into "Partial Outage".
func humanize(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

// Render formats an event as a webhook message. Returns subject and
// markdown body.
func Render(event *domain.Event) (subject, body string) {
	switch event.Kind {
	case domain.EventServiceStatusChanged:
		subject = fmt.Sprintf("[Status] %s", event.Subject)
		body = fmt.Sprintf("Service **%s** changed from %s to %s.",
			event.Subject, humanize(event.OldValue), humanize(event.NewValue))

	case domain.EventIncidentCreated:
		subject = fmt.Sprintf("[Incident] %s", event.Subject)
		body = fmt.Sprintf("New **%s** severity incident: %s.",
			humanize(event.NewValue), event.Subject)

	case domain.EventIncidentUpdated:
		subject = fmt.Sprintf("[Update] %s", event.Subject)
		body = fmt.Sprintf("Incident **%s** moved from %s to %s.",
			event.Subject, humanize(event.OldValue), humanize(event.NewValue))

	case domain.EventMaintenanceScheduled:
		subject = fmt.Sprintf("[Maintenance] %s", event.Subject)
		body = fmt.Sprintf("Maintenance window **%s** scheduled.", event.Subject)

	default:
		subject = fmt.Sprintf("[Notification] %s", event.Subject)
		body = event.Subject
	}

	body += fmt.Sprintf("\nService: `%s`", event.ServiceID)
	return subject, body
}
