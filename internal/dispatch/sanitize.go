package dispatch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	breakPattern      = regexp.MustCompile(`(?i)<br\s*/?>`)
	hspacePattern     = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLinesPattern = regexp.MustCompile(`\n{2,}`)
)

// Sanitize turns an HTML fragment into plain text: line breaks become
// newlines, tags are stripped, entities decoded, runs of horizontal
// whitespace collapse to one space and blank lines are dropped.
func Sanitize(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	text := breakPattern.ReplaceAllString(fragment, "\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + text + "</body>"))
	if err == nil {
		text = doc.Find("body").Text()
	}

	text = hspacePattern.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = blankLinesPattern.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.TrimSpace(text)
}
