package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// slowRequest promotes a successful request's log line from debug to info.
const slowRequest = 750 * time.Millisecond

// guarded runs h with a deadline, turns a panic into an error and logs the
// outcome on req.Log.
func guarded(h HandlerFunc, timeout time.Duration) HandlerFunc {
	return func(ctx context.Context, req *Request) (err error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		began := time.Now()
		defer func() {
			if r := recover(); r != nil {
				req.Log.Error("handler panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				err = fmt.Errorf("handler panic: %v", r)
			}
			took := time.Since(began)
			switch {
			case err != nil:
				req.Log.Warn("command failed", logx.Duration("took", took), logx.Err(err))
			case took >= slowRequest:
				req.Log.Info("command handled", logx.Duration("took", took))
			default:
				req.Log.Debug("command handled", logx.Duration("took", took))
			}
		}()
		return h(ctx, req)
	}
}
