package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/shopbot/internal/logger"
)

func TestReadAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	al, err := logger.New(path)
	require.NoError(t, err)
	require.NoError(t, al.Log(logger.AuditEvent{User: "2", Tool: "run_sql_query", Domain: "sql", Statement: "SELECT 1", Decision: "ALLOW"}))
	require.NoError(t, al.Log(logger.AuditEvent{User: "3", Tool: "run_sql_query", Domain: "sql", Statement: "DROP TABLE users", Decision: "DENY", RuleID: "deny-drop"}))
	require.NoError(t, al.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := readAuditLog(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "deny-drop", events[1].RuleID)

	assert.Len(t, filterEvents(events, "deny", ""), 1)
	assert.Len(t, filterEvents(events, "", "2"), 1)
	assert.Len(t, filterEvents(events, "", ""), 2)
	assert.Empty(t, filterEvents(events, "ALLOW", "3"))
}

func TestReadAuditLogMissing(t *testing.T) {
	events, err := readAuditLog(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "garbage", formatTimestamp("garbage"))
	assert.NotEqual(t, "2025-01-02T03:04:05Z", formatTimestamp("2025-01-02T03:04:05Z"))
}
