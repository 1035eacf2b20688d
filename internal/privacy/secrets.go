package privacy

import "regexp"

// secretPatterns are checked in order; each matching pattern contributes its
// name to the detection result. Patterns favor precision over recall.
var secretPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"aws access key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"private key block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{"github token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"slack token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"openai key", regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`)},
	{"bearer token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.=]{20,}`)},
	{"api key assignment", regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|secret[_-]?key|access[_-]?token)\b\s*[:=]\s*\S{8,}`)},
	{"password assignment", regexp.MustCompile(`(?i)\bpassword\b\s*[:=]\s*\S+`)},
	{"connection string credential", regexp.MustCompile(`(?i)\b[a-z][a-z0-9+]*://[^/\s:@]+:[^@\s]+@`)},
}

// DetectSecrets returns the names of all secret patterns found in content.
// An empty result means the content looks clean.
func DetectSecrets(content string) []string {
	var found []string
	for _, p := range secretPatterns {
		if p.re.MatchString(content) {
			found = append(found, p.name)
		}
	}
	return found
}

// HasSecrets reports whether content matches any secret pattern.
func HasSecrets(content string) bool {
	for _, p := range secretPatterns {
		if p.re.MatchString(content) {
			return true
		}
	}
	return false
}
