package guardrail

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a policy file. A missing file yields DefaultPolicy; a present
// but empty section inherits the default for that section.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}

	def := DefaultPolicy()
	if len(policy.SQL.Allow) == 0 {
		policy.SQL.Allow = def.SQL.Allow
	}
	if len(policy.SQL.Deny) == 0 {
		policy.SQL.Deny = def.SQL.Deny
	}
	if len(policy.SQL.RestrictedTables) == 0 {
		policy.SQL.RestrictedTables = def.SQL.RestrictedTables
	}
	if len(policy.Shell.Deny) == 0 {
		policy.Shell.Deny = def.Shell.Deny
	}

	return &policy, nil
}

const (
	sqlValue   = `('[^']*'|-?\d+(\.\d+)?|\?|\$\d+|:\w+)`
	sqlID      = `(\d+|'\d+'|\?|\$\d+|:\w+)`
	sqlIdent   = "[`\"\\[]?"
	sqlIdentE  = "[`\"\\]]?"
	sudoPrefix = `^(sudo\s+(-\S+\s+)*)?`
)

// DefaultPolicy is deliberately permissive. Injection-shaped SELECTs and
// generally dangerous commands (chmod, useradd, curl | sh) pass; only
// operations that would leave the shop itself unusable are denied.
func DefaultPolicy() *Policy {
	return &Policy{
		Version: "0.1",
		SQL: SQLPolicy{
			Allow: []Rule{
				{
					ID:      "allow-select",
					Pattern: `^\(*\s*select\b`,
					Reason:  "Read query.",
				},
				{
					ID:      "allow-cte-select",
					Pattern: `^with\s+(recursive\s+)?.+\bselect\b`,
					Reason:  "Read query with common table expressions.",
				},
				{
					ID: "allow-narrow-update",
					Pattern: `^update\s+` + sqlIdent + `(products|basket_items|reviews)` + sqlIdentE +
						`\s+set\s+` + sqlIdent + `\w+` + sqlIdentE + `\s*=\s*` + sqlValue +
						`\s+where\s+` + sqlIdent + `id` + sqlIdentE + `\s*=\s*` + sqlID + `\s*;?$`,
					Reason: "Single-column update of one row in a non-sensitive table.",
				},
			},
			Deny: []Rule{
				{
					ID:       "deny-drop",
					Pattern:  `\bdrop\s+(table|database|schema|view|index|trigger|user)\b`,
					Category: "destructive schema change",
					Reason:   "Dropping database objects is not permitted.",
				},
				{
					ID:       "deny-alter-destructive",
					Pattern:  `\balter\s+table\b.*\b(drop|rename)\b`,
					Category: "destructive schema change",
					Reason:   "Destructive schema changes are not permitted.",
				},
				{
					ID:       "deny-truncate",
					Pattern:  `\btruncate\b`,
					Category: "destructive schema change",
					Reason:   "Truncating tables is not permitted.",
				},
				{
					// No allow rule admits a DELETE, so one reaching this point
					// was stacked or hidden in a CTE.
					ID: "deny-delete-identities",
					Pattern: `\bdelete\s+(\w+\s+)?from\s+(` + sqlIdent + `\w+` + sqlIdentE + `\.)?` +
						sqlIdent + `(users|accounts|customers)` + sqlIdentE + `(\W|$)`,
					Category: "identity deletion",
					Reason:   "Deleting user accounts is not permitted.",
				},
				{
					ID:       "deny-timing",
					Pattern:  `\b(sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+delay\b`,
					Category: "timing attack",
					Reason:   "Time-delay functions are not permitted.",
				},
				{
					ID:       "deny-attach",
					Pattern:  `\b(attach|detach)\s+(database\b|')`,
					Category: "destructive schema change",
					Reason:   "Attaching databases is not permitted.",
				},
			},
			RestrictedTables: []string{"security_answers", "SecurityAnswers", "cards"},
		},
		Shell: ShellPolicy{
			Deny: []Rule{
				{
					ID:       "deny-service-stop",
					Pattern:  sudoPrefix + `(systemctl\s+(-\S+\s+)*(stop|kill|halt|poweroff|reboot|isolate|mask)\b|service\s+\S+\s+(stop|restart)\b)`,
					Category: "service disruption",
					Reason:   "Stopping services is not permitted.",
				},
				{
					ID:       "deny-container-stop",
					Pattern:  sudoPrefix + `((docker|podman)\s+(container\s+)?(stop|kill|rm|restart|pause)\b|(docker[\s-]compose|podman-compose)\s+(down|stop|kill|rm)\b)`,
					Category: "service disruption",
					Reason:   "Stopping containers is not permitted.",
				},
				{
					ID:       "deny-host-shutdown",
					Pattern:  sudoPrefix + `((shutdown|reboot|halt|poweroff)\b|(init|telinit)\s+[06]\b)`,
					Category: "host shutdown",
					Reason:   "Shutting down the host is not permitted.",
				},
				{
					ID:       "deny-kill-server",
					Pattern:  sudoPrefix + `((pkill|killall)\b|kill\s+(-\S+\s+)*(1|-1|\$PPID|\$\{PPID\})(\s|$))`,
					Category: "service disruption",
					Reason:   "Killing server processes is not permitted.",
				},
				{
					ID:       "deny-rm-root",
					Pattern:  sudoPrefix + `rm\s+(-\S+\s+)*-([a-z]*r[a-z]*|-recursive)\s+(-\S+\s+)*/\*?(\s|$)`,
					Category: "destructive file operation",
					Reason:   "Recursive removal of the filesystem root is not permitted.",
				},
				{
					ID:       "deny-mkfs",
					Pattern:  sudoPrefix + `mkfs(\.\w+)?\b`,
					Category: "destructive file operation",
					Reason:   "Formatting filesystems is not permitted.",
				},
				{
					ID:       "deny-dd-device",
					Pattern:  sudoPrefix + `dd\b.*\bof=/dev/(sd|hd|vd|xvd|nvme|mmcblk|disk)`,
					Category: "destructive file operation",
					Reason:   "Writing raw data to block devices is not permitted.",
				},
				{
					ID:       "deny-fork-bomb",
					Pattern:  `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`,
					Category: "resource exhaustion",
					Reason:   "Fork bombs are not permitted.",
				},
			},
		},
	}
}
