package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	ruleNotAllowed      = "not-allowlisted"
	ruleRestricted      = "restricted-table"
	categoryUnsupported = "unsupported statement"
	categoryRestricted  = "restricted data"
)

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

type restrictedTable struct {
	name string
	re   *regexp.Regexp
}

// Engine evaluates SQL statements and shell commands against a Policy.
// All patterns are compiled up front; Evaluate is safe for concurrent use.
type Engine struct {
	policy     *Policy
	sqlAllow   []compiledRule
	sqlDeny    []compiledRule
	restricted []restrictedTable
	shellAllow []compiledRule
	shellDeny  []compiledRule
}

func NewEngine(p *Policy) (*Engine, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	e := &Engine{policy: p}

	var err error
	if e.sqlAllow, err = compileRules("sql.allow", p.SQL.Allow); err != nil {
		return nil, err
	}
	if e.sqlDeny, err = compileRules("sql.deny", p.SQL.Deny); err != nil {
		return nil, err
	}
	if e.shellAllow, err = compileRules("shell.allow", p.Shell.Allow); err != nil {
		return nil, err
	}
	if e.shellDeny, err = compileRules("shell.deny", p.Shell.Deny); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, name := range p.SQL.RestrictedTables {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		e.restricted = append(e.restricted, restrictedTable{
			name: name,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}

	return e, nil
}

func compileRules(section string, rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("%s rule %q: empty pattern", section, r.ID)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s rule %q: %w", section, r.ID, err)
		}
		out = append(out, compiledRule{Rule: r, re: re})
	}
	return out, nil
}

// Policy returns the engine's policy (for inspection/testing).
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Evaluate classifies statement for the given domain. The order is fixed:
// not allow-matched, then deny-matched, then restricted-table reference.
// Any of the three rejects; otherwise the statement is allowed. SQL with
// invisible or control characters is rejected before any rule runs; shell
// commands are only subject to their deny rules.
func (e *Engine) Evaluate(statement string, domain Domain) Verdict {
	switch domain {
	case DomainSQL:
		return e.evaluateSQL(statement)
	case DomainShell:
		return e.evaluateShell(statement)
	default:
		return Verdict{
			Reason:   fmt.Sprintf("Unknown policy domain %q.", domain),
			Category: categoryUnsupported,
			RuleID:   "unknown-domain",
		}
	}
}

func (e *Engine) evaluateSQL(statement string) Verdict {
	if cp, ok := hiddenRune(statement); ok {
		return hiddenVerdict(cp)
	}
	stmt := NormalizeSQL(statement)
	if stmt == "" {
		return Verdict{Reason: "Empty statement.", Category: categoryUnsupported, RuleID: ruleNotAllowed}
	}

	if _, ok := firstMatch(e.sqlAllow, stmt); !ok {
		return Verdict{
			Reason:   "Only read queries and narrow single-row updates are permitted.",
			Category: categoryUnsupported,
			RuleID:   ruleNotAllowed,
		}
	}

	if r, ok := firstMatch(e.sqlDeny, stmt); ok {
		return denied(r)
	}

	for _, t := range e.restricted {
		if t.re.MatchString(stmt) {
			return Verdict{
				Reason:   "That data is not available through this assistant.",
				Category: categoryRestricted,
				RuleID:   ruleRestricted + ":" + t.name,
			}
		}
	}

	return Verdict{Allowed: true}
}

func (e *Engine) evaluateShell(command string) Verdict {
	cmd := NormalizeShell(command)
	if cmd == "" {
		return Verdict{Reason: "Empty command.", Category: categoryUnsupported, RuleID: ruleNotAllowed}
	}

	if len(e.shellAllow) > 0 {
		if _, ok := firstMatch(e.shellAllow, cmd); !ok {
			return Verdict{
				Reason:   "That command is not on the permitted list.",
				Category: categoryUnsupported,
				RuleID:   ruleNotAllowed,
			}
		}
	}

	// Deny rules see the whole command and every simple command inside it,
	// so anchored patterns also catch "true && reboot" or "echo $(halt)".
	candidates := append([]string{cmd}, Segments(cmd)...)
	for _, c := range candidates {
		if r, ok := firstMatch(e.shellDeny, c); ok {
			return denied(r)
		}
	}

	return Verdict{Allowed: true}
}

func firstMatch(rules []compiledRule, s string) (compiledRule, bool) {
	for _, r := range rules {
		if r.re.MatchString(s) {
			return r, true
		}
	}
	return compiledRule{}, false
}

func denied(r compiledRule) Verdict {
	reason := r.Reason
	if reason == "" {
		reason = "That operation is not permitted."
	}
	return Verdict{Reason: reason, Category: r.Category, RuleID: r.ID}
}

// Explain renders a verdict for the CLI.
func Explain(statement string, domain Domain, v Verdict) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Domain:   %s\n", domain)
	fmt.Fprintf(&sb, "Input:    %s\n", statement)
	fmt.Fprintf(&sb, "Decision: %s\n", v.Decision())

	if v.RuleID != "" {
		fmt.Fprintf(&sb, "Rule:     %s\n", v.RuleID)
	}
	if v.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", v.Category)
	}
	if v.Reason != "" {
		fmt.Fprintf(&sb, "Reason:   %s\n", v.Reason)
	}

	return sb.String()
}
