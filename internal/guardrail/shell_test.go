package guardrail

import (
	"reflect"
	"testing"
)

func TestSegments(t *testing.T) {
	tests := []struct {
		command  string
		expected []string
	}{
		{"ls -la", []string{"ls -la"}},
		{"ls && whoami", []string{"ls", "whoami"}},
		{"cat x | grep y; echo done", []string{"cat x", "grep y", "echo done"}},
		{"(cd /tmp && rm -rf cache)", []string{"cd /tmp", "rm -rf cache"}},
		{"echo 'a  b'", []string{"echo a  b"}},
		{`sh -c "halt"`, []string{"sh -c halt", "halt"}},
		{"sudo bash -lc 'id; uptime'", []string{"bash -lc id; uptime", "id", "uptime"}},
		{"/sbin/reboot", []string{"reboot"}},
		{"env -u HOME FOO=1 /bin/ls -l", []string{"ls -l"}},
		{"nohup nice -n 5 ./worker.sh", []string{"worker.sh"}},
		{"timeout --signal KILL 10s curl x", []string{"curl x"}},
		{"find . | xargs -I % rm %", []string{"find .", "rm %"}},
		{"command -v reboot", []string{"command -v reboot"}},
		{"sudo", []string{"sudo"}},
	}

	for _, tt := range tests {
		got := Segments(tt.command)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("command %q: expected %q, got %q", tt.command, tt.expected, got)
		}
	}
}

func TestSegments_FallbackOnParseError(t *testing.T) {
	got := Segments("echo 'unterminated && reboot")
	if len(got) == 0 {
		t.Fatal("expected fallback segments")
	}
	found := false
	for _, s := range got {
		if s == "reboot" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected fallback to isolate reboot, got %q", got)
	}
}

func TestNormalizeSQL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  SELECT   *\n\tFROM products  ", "SELECT * FROM products"},
		{"/* a */ /* b */ SELECT 1", "SELECT 1"},
		{"-- one\n-- two\nSELECT 1", "SELECT 1"},
		{"SELECT 1 -- tail", "SELECT 1 tail"},
		{"DROP/**/TABLE x", "DROP TABLE x"},
		{"/*! DROP TABLE x */", "DROP TABLE x"},
		{"-- only a comment", ""},
	}

	for _, tt := range tests {
		if got := NormalizeSQL(tt.input); got != tt.expected {
			t.Errorf("NormalizeSQL(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseDomain(t *testing.T) {
	if d, ok := ParseDomain("sql"); !ok || d != DomainSQL {
		t.Errorf("expected sql domain")
	}
	if d, ok := ParseDomain("sh"); !ok || d != DomainShell {
		t.Errorf("expected shell domain")
	}
	if _, ok := ParseDomain("ldap"); ok {
		t.Errorf("expected unknown domain")
	}
}
