package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Issue bodies are operator-facing and partly free-form: curators add notes
// to them. Dates are therefore refreshed in place with regex substitution so
// everything else in the body survives, the same way the body is built.
var (
	recentFailurePattern = regexp.MustCompile(`Most recent failure: \d{4}-\d{2}-\d{2}`)
	recentSuccessPattern = regexp.MustCompile(`Most recent success: \d{4}-\d{2}-\d{2}`)
	disassociatedPattern = regexp.MustCompile(`Removed from association set: \d{4}-\d{2}-\d{2}`)

	failureDatePattern = regexp.MustCompile(`Most recent failure: (\d{4}-\d{2}-\d{2})`)
	successDatePattern = regexp.MustCompile(`Most recent success: (\d{4}-\d{2}-\d{2})`)
)

// DateString formats a timestamp as the ISO-8601 date used in issue bodies.
func DateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NewBody builds the body for a freshly created failure issue.
func NewBody(errorText, reproductionURL string, observedAt time.Time) string {
	date := DateString(observedAt)
	body := fmt.Sprintf("```\n%s\n```\n\nOriginal failure date: %s\nMost recent failure: %s",
		errorText, date, date)
	if reproductionURL != "" {
		body += "\nReproduction URL: " + reproductionURL
	}
	return body
}

// RefreshFailure stamps the most recent failure date on an existing body,
// appending the line if an operator has edited it away.
func RefreshFailure(body string, observedAt time.Time) string {
	line := "Most recent failure: " + DateString(observedAt)
	if recentFailurePattern.MatchString(body) {
		return recentFailurePattern.ReplaceAllString(body, line)
	}
	return body + "\n" + line
}

// StampSuccess records that the pairing passed this run, replacing an
// existing success line or appending one.
func StampSuccess(body string, observedAt time.Time) string {
	line := "Most recent success: " + DateString(observedAt)
	if recentSuccessPattern.MatchString(body) {
		return recentSuccessPattern.ReplaceAllString(body, line)
	}
	return strings.TrimRight(body, "\n") + "\n" + line
}

// StampDisassociated records when the collection was last seen leaving the
// association set.
func StampDisassociated(body string, observedAt time.Time) string {
	line := "Removed from association set: " + DateString(observedAt)
	if disassociatedPattern.MatchString(body) {
		return disassociatedPattern.ReplaceAllString(body, line)
	}
	return strings.TrimRight(body, "\n") + "\n" + line
}

// LastFailureDate extracts the most recent failure date from a body, or ""
// when none is recorded.
func LastFailureDate(body string) string {
	matches := failureDatePattern.FindStringSubmatch(body)
	if matches == nil {
		return ""
	}
	return matches[1]
}

// LastSuccessDate extracts the most recent success date from a body, or ""
// when none is recorded.
func LastSuccessDate(body string) string {
	matches := successDatePattern.FindStringSubmatch(body)
	if matches == nil {
		return ""
	}
	return matches[1]
}
