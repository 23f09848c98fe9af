package notifier

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
)

const defaultBody = "⏰ Time to do the thing!"

// FormatReminder renders the notification text for r, with the due time
// shown in loc and the follow-up commands spelled out.
func FormatReminder(r reminder.Reminder, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	body := strings.TrimSpace(r.Body)
	if body == "" {
		body = defaultBody
	}
	tags := "-"
	if len(r.Tags) > 0 {
		tags = strings.Join(r.Tags, ", ")
	}
	repeat := string(r.Recurrence)
	if repeat == "" {
		repeat = string(reminder.RecurNone)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔔 %s\n%s\n\n", r.Title, body)
	fmt.Fprintf(&sb, "When: %s\n", r.DueAt.In(loc).Format("Mon 02 Jan 2006 15:04 MST"))
	fmt.Fprintf(&sb, "Repeat: %s\n", repeat)
	fmt.Fprintf(&sb, "Tags: %s\n\n", tags)
	fmt.Fprintf(&sb, "/complete %s\n/snooze %s 10\n", r.ID, r.ID)
	return sb.String()
}
