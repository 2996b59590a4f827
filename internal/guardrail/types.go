package guardrail

type Domain string

const (
	DomainSQL   Domain = "sql"
	DomainShell Domain = "shell"
)

// ParseDomain maps user input ("sql", "shell", "SQL", "sh") to a Domain.
func ParseDomain(s string) (Domain, bool) {
	switch s {
	case "sql", "SQL":
		return DomainSQL, true
	case "shell", "SHELL", "sh", "cmd", "command":
		return DomainShell, true
	}
	return "", false
}

type Policy struct {
	Version string      `yaml:"version"`
	SQL     SQLPolicy   `yaml:"sql"`
	Shell   ShellPolicy `yaml:"shell"`
}

// SQLPolicy is allow-listed: a statement must match at least one Allow rule.
type SQLPolicy struct {
	Allow            []Rule   `yaml:"allow"`
	Deny             []Rule   `yaml:"deny"`
	RestrictedTables []string `yaml:"restricted_tables"`
}

// ShellPolicy is deny-listed: an empty Allow list admits every command.
type ShellPolicy struct {
	Allow []Rule `yaml:"allow"`
	Deny  []Rule `yaml:"deny"`
}

type Rule struct {
	ID       string `yaml:"id"`
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category,omitempty"`
	Reason   string `yaml:"reason"`
}

// Verdict is the outcome of one evaluation. Reason and Category are safe to
// show to an end user; RuleID is meant for the audit log only.
type Verdict struct {
	Allowed  bool
	Reason   string
	Category string
	RuleID   string
}

func (v Verdict) Decision() string {
	if v.Allowed {
		return "ALLOW"
	}
	return "DENY"
}
