package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	chatQueueSize   = 256
	chatSendTimeout = 10 * time.Second
	chatMaxLen      = 3500
	chatMaxField    = 600
	chatMaxStack    = 900
)

// chatSink is a zerolog.LevelWriter that forwards lines at or above
// minLevel to a channel. Lines over the rate limit or a full queue are
// dropped.
type chatSink struct {
	sender ChatSender

	mu       sync.Mutex
	channel  string
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue    chan chatLine
	start    sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type chatLine struct {
	channel string
	text    string
}

func newChatSink(sender ChatSender) *chatSink {
	return &chatSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan chatLine, chatQueueSize),
	}
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()
	if cfg.Enabled && c.sender != nil {
		c.start.Do(c.run)
	}
}

func (c *chatSink) setTarget(id string) {
	c.mu.Lock()
	c.channel = id
	c.mu.Unlock()
}

func (c *chatSink) target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *chatSink) run() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ln := <-c.queue:
				sctx, scancel := context.WithTimeout(ctx, chatSendTimeout)
				_ = c.sender.SendChannel(sctx, ln.channel, ln.text)
				scancel()
			}
		}
	}()
}

func (c *chatSink) stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel, done := c.cancel, c.done
		c.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
	})
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	channel, minLevel, lim := c.channel, c.minLevel, c.limiter
	c.mu.Unlock()
	if c.sender == nil || channel == "" || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatChatJSON(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case c.queue <- chatLine{channel: channel, text: text}:
	default:
	}
	return len(p), nil
}

// formatChatJSON renders a zerolog JSON line as "[LEVEL] comp: message"
// followed by "- key=value" lines in key order. Non-JSON input is sent
// trimmed.
func formatChatJSON(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(string(p), chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	if comp, _ := m["comp"].(string); comp != "" {
		b.WriteString(comp + ": ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName, "comp":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(m[k])
		if k == "stack" {
			b.WriteString("\n- stack=\n" + truncate(v, chatMaxStack))
			continue
		}
		b.WriteString("\n- " + k + "=" + truncate(v, chatMaxField))
	}
	return truncate(b.String(), chatMaxLen)
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n < 10 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
