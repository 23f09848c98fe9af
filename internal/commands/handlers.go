package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/agenda"
	"remindbot/internal/reminder"
)

const summaryWindow = 7 * 24 * time.Hour

func (m *Manager) builtins() []Command {
	return []Command{
		{
			Name:        "remind",
			Usage:       `/remind <when> <title> [| message] [repeat=daily|weekly|monthly] [tags=a,b]`,
			Description: "Create a reminder",
			Handle:      m.cmdRemind,
		},
		{
			Name:        "complete",
			Aliases:     []string{"done"},
			Usage:       "/complete <id>",
			Description: "Mark a reminder complete",
			Handle:      m.cmdComplete,
		},
		{
			Name:        "snooze",
			Usage:       "/snooze <id> [minutes]",
			Description: "Snooze a reminder",
			Handle:      m.cmdSnooze,
		},
		{
			Name:        "list",
			Usage:       "/list",
			Description: "List your active reminders",
			Handle:      m.cmdList,
		},
		{
			Name:        "delete",
			Aliases:     []string{"rm"},
			Usage:       "/delete <id>",
			Description: "Delete one of your reminders",
			Handle:      m.cmdDelete,
		},
		{
			Name:        "summary",
			Usage:       "/summary",
			Description: "Your activity over the last 7 days",
			Handle:      m.cmdSummary,
		},
		{
			Name:        "help",
			Aliases:     []string{"start"},
			Usage:       "/help",
			Description: "Show help",
			Handle:      m.cmdHelp,
		},
	}
}

func (m *Manager) usage(ctx context.Context, req *Request) error {
	if c := m.byName[req.Command]; c != nil {
		return req.Reply(ctx, "Usage: "+c.Usage)
	}
	return nil
}

func (m *Manager) cmdRemind(ctx context.Context, req *Request) error {
	args, flags := extractFlags(req.Args, "repeat", "tags")
	if len(args) == 0 {
		return m.usage(ctx, req)
	}
	loc := m.agenda.Location()
	due, n, err := parseWhen(args, m.now(), loc)
	if err != nil {
		return m.fail(ctx, req, fmt.Errorf("%w: %v", reminder.ErrInvalidInput, err))
	}
	title, body, _ := strings.Cut(strings.Join(args[n:], " "), "|")

	r, err := m.agenda.Create(ctx, agenda.CreateParams{
		OwnerID:       req.FromID,
		DestinationID: req.ChatID,
		DueAt:         due,
		Title:         strings.TrimSpace(title),
		Body:          strings.TrimSpace(body),
		Recurrence:    flags["repeat"],
		Tags:          splitTags(flags["tags"]),
	})
	if err != nil {
		return m.fail(ctx, req, err)
	}
	text := fmt.Sprintf("✅ Reminder created (ID: %s). I will remind you at %s.", r.ID, formatTime(r.DueAt, loc))
	if r.Recurrence != reminder.RecurNone {
		text += " Repeats " + string(r.Recurrence) + "."
	}
	return req.Reply(ctx, text)
}

func (m *Manager) cmdComplete(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return m.usage(ctx, req)
	}
	r, err := m.agenda.Complete(ctx, req.Args[0], req.FromID)
	if err != nil {
		return m.fail(ctx, req, err)
	}
	text := fmt.Sprintf("✅ Marked %s complete.", r.ID)
	if !r.Terminal() {
		text += " Next: " + formatTime(r.DueAt, m.agenda.Location()) + "."
	}
	return req.Reply(ctx, text)
}

func (m *Manager) cmdSnooze(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 || len(req.Args) > 2 {
		return m.usage(ctx, req)
	}
	raw := ""
	if len(req.Args) == 2 {
		raw = req.Args[1]
	}
	minutes, err := parseMinutes(raw, m.config().DefaultSnoozeMinutes)
	if err != nil {
		return m.fail(ctx, req, fmt.Errorf("%w: %v", reminder.ErrInvalidInput, err))
	}
	r, err := m.agenda.Snooze(ctx, req.Args[0], minutes, req.FromID)
	if err != nil {
		return m.fail(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("🔁 Snoozed reminder %s for %d minute(s), until %s.", r.ID, minutes, formatTime(r.DueAt, m.agenda.Location())))
}

func (m *Manager) cmdList(ctx context.Context, req *Request) error {
	rs, err := m.agenda.List(ctx, req.FromID)
	if err != nil {
		return m.fail(ctx, req, err)
	}
	if len(rs) == 0 {
		return req.Reply(ctx, "No active reminders.")
	}
	loc := m.agenda.Location()
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗓 %d active reminder(s)\n", len(rs))
	for _, r := range rs {
		fmt.Fprintf(&sb, "\n• %s  %s\n  %s", r.Title, r.ID, formatTime(r.DueAt, loc))
		if r.Recurrence != reminder.RecurNone {
			fmt.Fprintf(&sb, " (%s)", r.Recurrence)
		}
		if r.Delivered {
			sb.WriteString(" - delivered")
		}
	}
	return req.Reply(ctx, sb.String())
}

func (m *Manager) cmdDelete(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return m.usage(ctx, req)
	}
	if err := m.agenda.Delete(ctx, req.Args[0], req.FromID); err != nil {
		return m.fail(ctx, req, err)
	}
	return req.Reply(ctx, "🗑 Deleted "+req.Args[0]+".")
}

func (m *Manager) cmdSummary(ctx context.Context, req *Request) error {
	s, err := m.agenda.Summarize(ctx, req.FromID, m.now().Add(-summaryWindow))
	if err != nil {
		return m.fail(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("📊 Last 7 days\nCreated: %d\nCompleted: %d\nActive days: %d", s.Created, s.Completed, s.ActiveDays))
}

func (m *Manager) cmdHelp(ctx context.Context, req *Request) error {
	var sb strings.Builder
	sb.WriteString("Commands\n")
	for _, c := range m.list {
		fmt.Fprintf(&sb, "\n%s\n  %s", c.Usage, c.Description)
	}
	sb.WriteString("\n\n<when> accepts 2025-11-01T15:00, \"2025-11-01 15:00\", 18:30, 45m or \"in 2 hours\".")
	return req.Reply(ctx, sb.String())
}

func formatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("Mon 02 Jan 2006 15:04 MST")
}
