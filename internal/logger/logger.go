package logger

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/gzhole/shopbot/internal/redact"
)

// defaultMaxLogBytes is the size at which New rotates the audit log to
// <path>.1 before opening a fresh file.
const defaultMaxLogBytes = 10 << 20

// AuditEvent records one guardrail verdict for a proposed SQL statement or
// shell command.
type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Tool      string `json:"tool"`
	Domain    string `json:"domain"`
	Statement string `json:"statement"`
	Decision  string `json:"decision"`
	RuleID    string `json:"rule_id,omitempty"`
	Category  string `json:"category,omitempty"`
	Mode      string `json:"mode"`
	Error     string `json:"error,omitempty"`
}

type AuditLogger struct {
	file *os.File
	mu   sync.Mutex
}

func New(path string) (*AuditLogger, error) {
	if info, err := os.Stat(path); err == nil && info.Size() >= defaultMaxLogBytes {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &AuditLogger{file: file}, nil
}

func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Statement = redact.Redact(event.Statement)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *AuditLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
