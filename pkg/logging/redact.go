package logging

import "regexp"

// RedactedText replaces credential material in logged strings.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx in keyword/value DSNs
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in URL-style DSNs
	userInfoPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// RedactDSN strips credentials from a connection string so it can be
// logged. Both keyword/value and URL forms are handled.
func RedactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	out := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	return userInfoPattern.ReplaceAllString(out, "://"+RedactedText+"@"+RedactedText)
}

// RedactError sanitizes an error message before logging. Driver errors
// sometimes echo the full DSN back, password included.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return RedactDSN(err.Error())
}
