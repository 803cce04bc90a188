package extract

import (
	"regexp"
	"strings"
)

var (
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	multiNewlineRe  = regexp.MustCompile(`\n{3,}`)
	multiSpaceRe    = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean normalizes extracted text: CRLF to LF, trailing whitespace before
// newlines removed, runs of 3+ newlines collapsed to a blank line, runs of
// horizontal whitespace collapsed to a single space, and the result trimmed.
// Empty input yields an empty string; the ingestion pipeline treats that as a
// fatal error.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
