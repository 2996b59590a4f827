package guardrail

import (
	"regexp"
	"strings"
)

var sqlCommentMarker = regexp.MustCompile(`--|/\*!?|\*/`)

// NormalizeSQL prepares a statement for matching. Leading comments are
// dropped so allow rules can anchor on the first keyword. Comment markers
// elsewhere become spaces but their content is kept: text a dialect would
// not treat as a comment ("1--1" in MySQL) must stay visible to deny rules.
func NormalizeSQL(stmt string) string {
	stmt = stripLeadingSQLComments(stmt)
	stmt = sqlCommentMarker.ReplaceAllString(stmt, " ")
	return collapseSpace(stmt)
}

func stripLeadingSQLComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*") && !strings.HasPrefix(s, "/*!"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}

// NormalizeShell trims a command and collapses runs of whitespace.
func NormalizeShell(cmd string) string {
	return collapseSpace(cmd)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
