package redact

import (
	"net/url"
	"regexp"
	"strings"
)

var sensitivePatterns = []*regexp.Regexp{
	// Payment cards: 13-19 digits, optionally grouped by spaces or dashes
	regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),

	// Password hashes (bcrypt, md5/sha hex digests)
	regexp.MustCompile(`\$2[aby]?\$\d{2}\$[./A-Za-z0-9]{53}`),
	regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`),
	regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`),

	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`),

	// Model provider keys
	regexp.MustCompile(`sk-(proj-|or-v1-)?[A-Za-z0-9_-]{20,}`),

	// Generic API keys
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),

	// Credentials in URLs and DSNs
	regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^:/\s]+:[^@\s]+@`),

	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{6,}['"]?`),
}

const redactedPlaceholder = "[REDACTED]"

// Redact replaces anything that looks like a credential, card number or
// password hash with a placeholder.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

var mysqlDSNCreds = regexp.MustCompile(`^([^:@/]+):([^@]*)@`)

// RedactDSN masks the password in a database DSN. It understands URL DSNs
// (postgres://u:p@host/db), MySQL DSNs (u:p@tcp(host)/db) and key=value
// strings (password=p). Other strings are returned unchanged.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return strings.Replace(u.String(), "xxxxx", redactedPlaceholder, 1)
		}
		return dsn
	}
	if m := mysqlDSNCreds.FindStringSubmatch(dsn); m != nil {
		return m[1] + ":" + redactedPlaceholder + "@" + dsn[len(m[0]):]
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if k, _, ok := strings.Cut(f, "="); ok && strings.EqualFold(k, "password") {
			fields[i] = k + "=" + redactedPlaceholder
		}
	}
	return strings.Join(fields, " ")
}

func RedactAll(values []string) []string {
	result := make([]string, len(values))
	for i, v := range values {
		result[i] = Redact(v)
	}
	return result
}
