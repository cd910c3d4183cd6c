package artifact

import (
	"regexp"
	"strings"
)

// ciPrefixes are the known CI working-directory prefixes stripped from an
// absolute artifact path before it is treated as repo-relative (spec §4.7).
// Order matters only in that each is tried independently; all are anchored
// with a trailing regex that captures the rest of the path.
var ciPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^/home/runner/work/[^/]+/[^/]+/(.*)$`),    // GitHub runner
	regexp.MustCompile(`^/github/workspace/(.*)$`),                // GitHub Docker action
	regexp.MustCompile(`^/builds/[^/]+/[^/]+/(.*)$`),              // GitLab builds
	regexp.MustCompile(`^[A-Za-z]:\\a\\[^\\]+\\[^\\]+\\(.*)$`),    // GitHub runner, Windows
	regexp.MustCompile(`^[A-Za-z]:\\builds\\[^\\]+\\[^\\]+\\(.*)$`), // GitLab builds, Windows
}

var driveLetterRoot = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// NormalizePath converts any path a tool reported into a repo-relative,
// slash-separated path, or returns ("", false) when it cannot (spec §4.7).
func NormalizePath(raw string) (string, bool) {
	p := raw
	for _, re := range ciPrefixes {
		if m := re.FindStringSubmatch(p); m != nil {
			p = m[1]
			break
		}
	}
	p = strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(p, "/") || driveLetterRoot.MatchString(p) {
		return "", false
	}
	return p, true
}

// NormalizeSeverityNumeric maps a numeric severity (ESLint's 0/1/2 convention
// generalized) to the normalized Severity: >=2 is error, 1 is warning, else
// info (spec §4.7).
func NormalizeSeverityNumeric(n int) Severity {
	switch {
	case n >= 2:
		return SeverityError
	case n == 1:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// NormalizeSeverityString maps a tool's textual severity/level to the
// normalized Severity, case-insensitively (spec §4.7).
func NormalizeSeverityString(s string) Severity {
	switch strings.ToLower(s) {
	case "error", "err", "e", "fatal":
		return SeverityError
	case "warning", "warn", "w":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
