package notifier

import (
	"context"
	"time"
)

// Config controls rate limiting and retries. Zero values select defaults.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	CallTimeout   time.Duration
	Location      *time.Location
	// SnoozeMinutes is offered on the snooze button.
	SnoozeMinutes int
}

// Sender is the transport surface the notifier needs. Senders that also
// implement transport.ActionSender get complete/snooze buttons.
type Sender interface {
	SendDirect(ctx context.Context, userID, text string) error
	SendChannel(ctx context.Context, channelID, text string) error
}

// Route names the path a notification took.
type Route string

const (
	RouteNone    Route = ""
	RouteDirect  Route = "direct"
	RouteChannel Route = "channel"
)

// Result is the outcome of Send. Reason is set when Sent is false.
type Result struct {
	Sent   bool
	Via    Route
	Reason error
}

type HistoryItem struct {
	At         time.Time
	ReminderID string
	Via        Route
}

// Event is the payload of notifier events on the bus.
type Event struct {
	ReminderID string    `json:"reminder_id,omitempty"`
	Via        Route     `json:"via,omitempty"`
	Target     string    `json:"target,omitempty"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}
