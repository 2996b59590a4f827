package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Level is shared by every handler NewSlog builds, so --verbose can raise it
// after construction.
var Level = new(slog.LevelVar)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlog builds the operational logger: a text handler on w, plus the
// systemd journal when journal is set and the journal socket is reachable.
// Under a systemd service the text handler is skipped since stderr already
// ends up in the journal.
func NewSlog(w io.Writer, journal bool) *slog.Logger {
	var handlers []slog.Handler

	var textHandler slog.Handler
	if !journal || !isSystemdService() {
		textHandler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level})
		handlers = append(handlers, textHandler)
	}

	if journal {
		jh, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: Level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			if textHandler != nil {
				record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
				record.Add("error", err)
				_ = textHandler.Handle(context.Background(), record)
			}
		} else {
			handlers = append(handlers, jh)
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level}))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func isSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) == 3 && strings.HasSuffix(path.Dir(parts[2]), ".service") {
			return true
		}
	}
	return false
}
