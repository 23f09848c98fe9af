package systemd

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready()
	if sent || err != nil {
		t.Fatalf("Ready = %v, %v", sent, err)
	}
	if WatchdogInterval() != 0 {
		t.Fatal("watchdog should be disabled")
	}
}

func TestWatchdogWithholdsPingWhenUnhealthy(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	ctx, cancel := context.WithCancel(context.Background())
	fails := make(chan error, 4)
	done := make(chan struct{})
	go func() {
		_ = Watchdog(ctx, 5*time.Millisecond,
			func(context.Context) error { return errors.New("store down") },
			func(err error) {
				select {
				case fails <- err:
				default:
				}
			})
		close(done)
	}()
	select {
	case err := <-fails:
		if err.Error() != "store down" {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("health check never ran")
	}
	cancel()
	<-done
}
