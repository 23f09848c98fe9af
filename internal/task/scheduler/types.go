package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// Config controls the trigger service. An empty Timezone means time.Local.
type Config struct {
	Timezone    string
	HistorySize int
}

// Job is one unit of scheduled work. Its ctx ends at the run timeout or on Stop.
type Job func(ctx context.Context) error

// Trigger sources recorded on a Run.
const (
	ByClock  = "schedule"
	ByManual = "manual"
)

type registration struct {
	name    string
	spec    string
	timeout time.Duration
	entryID cron.EntryID
	state   *runState
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	loc  *time.Location
	bus  eventbus.Bus
	c    *cron.Cron
	defs []registration

	runCtx    context.Context
	runCancel context.CancelFunc
	running   sync.WaitGroup

	hmu  sync.Mutex
	runs []Run
}

// Run is one finished job execution.
type Run struct {
	Name  string
	At    time.Time
	Took  time.Duration
	By    string
	Error string
}

// Entry describes a registered schedule and its neighbouring fire times.
type Entry struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
}

type Snapshot struct {
	Timezone string
	Entries  []Entry
	Runs     []Run
}

// TaskEvent is the payload of a TaskFinished bus event.
type TaskEvent struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
}
