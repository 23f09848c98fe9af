// Package systemd speaks the sd_notify protocol. Every call is a no-op
// when the process is not run by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

func Status(msg string) (bool, error) { return daemon.SdNotify(false, "STATUS="+msg) }

// WatchdogInterval returns half of WATCHDOG_USEC, or 0 when the watchdog
// is not enabled for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings systemd every interval while healthy returns nil. A
// failing check withholds the ping so systemd restarts the unit once the
// timeout passes. It returns when ctx ends.
func Watchdog(ctx context.Context, interval time.Duration, healthy func(context.Context) error, onFail func(error)) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if healthy != nil {
			if err := healthy(ctx); err != nil {
				if onFail != nil {
					onFail(err)
				}
				continue
			}
		}
		_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	}
}
