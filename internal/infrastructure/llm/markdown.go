package llm

import (
	"regexp"
	"strings"
)

var (
	boldExpr       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	headerExpr     = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	linkExpr       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	fenceExpr      = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z]*[ \t]*$")
	inlineCodeExpr = regexp.MustCompile("`([^`]*)`")
	listExpr       = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]+`)
	italicExpr     = regexp.MustCompile(`\*([^*\n]+)\*`)
	blankRunExpr   = regexp.MustCompile(`\n{3,}`)
)

const (
	boldOpen  = "\x00b\x00"
	boldClose = "\x00/b\x00"
)

// cleanMarkdown removes markdown the site cannot render while keeping
// **bold** spans intact.
func cleanMarkdown(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = boldExpr.ReplaceAllString(text, boldOpen+"$1"+boldClose)

	text = fenceExpr.ReplaceAllString(text, "")
	text = headerExpr.ReplaceAllString(text, "")
	text = linkExpr.ReplaceAllString(text, "$1")
	text = inlineCodeExpr.ReplaceAllString(text, "$1")
	text = listExpr.ReplaceAllString(text, "")
	text = italicExpr.ReplaceAllString(text, "$1")

	text = strings.ReplaceAll(text, boldOpen, "**")
	text = strings.ReplaceAll(text, boldClose, "**")
	text = blankRunExpr.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
