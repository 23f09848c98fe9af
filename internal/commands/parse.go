package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// tokenize splits a command line on whitespace, honouring double quotes.
func tokenize(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote bool
		has   bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quote = !quote
			has = true
		case unicode.IsSpace(r) && !quote:
			if has {
				out = append(out, cur.String())
				cur.Reset()
				has = false
			}
		default:
			cur.WriteRune(r)
			has = true
		}
	}
	if has {
		out = append(out, cur.String())
	}
	return out
}

// splitCommand returns the command word (without prefix or @botname) and its
// arguments. Both "/" and "!" prefixes are accepted.
func splitCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '/' && text[0] != '!') {
		return "", nil, false
	}
	parts := tokenize(text[1:])
	if len(parts) == 0 {
		return "", nil, false
	}
	word := strings.ToLower(parts[0])
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return word, parts[1:], word != ""
}

// extractFlags pulls key=value tokens for the given keys out of args.
func extractFlags(args []string, keys ...string) ([]string, map[string]string) {
	flags := map[string]string{}
	rest := make([]string, 0, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if ok {
			k = strings.ToLower(strings.TrimLeft(k, "-"))
			matched := false
			for _, want := range keys {
				if k == want {
					flags[k] = v
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}
		rest = append(rest, a)
	}
	return rest, flags
}

func splitTags(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var errBadWhen = errors.New(`could not parse time; use 2025-11-01T15:00, "2025-11-01 15:00", 18:30, 30m or "in 2 hours"`)

var unitDurations = map[string]time.Duration{
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// parseWhen reads a due time from the head of args and reports how many
// tokens it consumed. Wall-clock forms are read in loc.
func parseWhen(args []string, now time.Time, loc *time.Location) (time.Time, int, error) {
	if len(args) == 0 {
		return time.Time{}, 0, errBadWhen
	}
	if loc == nil {
		loc = time.Local
	}
	skip := 0
	if strings.EqualFold(args[0], "in") {
		skip = 1
	}
	if len(args) > skip {
		first := strings.ToLower(args[skip])
		if d, err := time.ParseDuration(first); err == nil && d > 0 {
			return now.Add(d), skip + 1, nil
		}
		if n, err := strconv.Atoi(first); err == nil && n > 0 && len(args) > skip+1 {
			if unit, ok := unitDurations[strings.ToLower(args[skip+1])]; ok {
				return now.Add(time.Duration(n) * unit), skip + 2, nil
			}
		}
	}
	if skip == 1 {
		return time.Time{}, 0, errBadWhen
	}

	if t, err := time.Parse(time.RFC3339, args[0]); err == nil {
		return t, 1, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", args[0], loc); err == nil {
		return t, 1, nil
	}
	if len(args) > 1 {
		if t, err := time.ParseInLocation("2006-01-02 15:04", args[0]+" "+args[1], loc); err == nil {
			return t, 2, nil
		}
	}
	if t, err := time.ParseInLocation("15:04", args[0], loc); err == nil {
		local := now.In(loc)
		at := time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, 1, nil
	}
	return time.Time{}, 0, errBadWhen
}

func parseMinutes(s string, def int) (int, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d%time.Minute != 0 {
		return 0, fmt.Errorf("minutes must be a whole number, got %q", s)
	}
	return int(d / time.Minute), nil
}
