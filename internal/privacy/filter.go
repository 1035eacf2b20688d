// Package privacy screens memory content before it is stored: it strips
// explicitly private blocks and flags content that looks like credentials.
package privacy

import (
	"regexp"
	"strings"
)

// privateTagRegex matches <private>...</private> blocks (non-greedy, dotall).
var privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

// StripPrivateTags removes all <private>...</private> blocks from content.
// Returns the cleaned content with stripped blocks replaced by empty string.
func StripPrivateTags(content string) string {
	return strings.TrimSpace(privateTagRegex.ReplaceAllString(content, ""))
}

// ContainsPrivateTags reports whether content carries any <private> block.
// Items that do are stored with their private flag set.
func ContainsPrivateTags(content string) bool {
	return privateTagRegex.MatchString(content)
}

// HasOnlyPrivateContent returns true if the content is entirely composed of
// <private> blocks and whitespace, so nothing would remain after stripping.
func HasOnlyPrivateContent(content string) bool {
	stripped := StripPrivateTags(content)
	return stripped == ""
}
