package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateSelector marks subtrees that never contain article prose.
const boilerplateSelector = `script, style, noscript, iframe, nav, footer, header, aside, form,
	.ad, .ads, .advertisement, [class*="advert"], [id*="advert"],
	.social-share, .share, .related-articles, .tags`

var (
	cssBlockExpr   = regexp.MustCompile(`\{[^}]*\}`)
	shortLinkExpr  = regexp.MustCompile(`(?i)\b(?:pic\.twitter\.com|t\.co)/\S+`)
	rawURLExpr     = regexp.MustCompile(`https?://\S+`)
	hashtagExpr    = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	clockExpr      = regexp.MustCompile(`\b\d{2}:\d{2}\b`)
	dateExpr       = regexp.MustCompile(`\b\d{2}[./]\d{2}[./]\d{4}\b`)
	inlineSpace    = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	anyWhitespace  = regexp.MustCompile(`\s+`)
	extraLineBreak = regexp.MustCompile(`\n{3,}`)
)

func stripBoilerplate(doc *goquery.Document) {
	doc.Find(boilerplateSelector).Remove()
}

// cleanBody strips markup leftovers and noise tokens from extracted prose
// while keeping paragraph breaks.
func cleanBody(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = cssBlockExpr.ReplaceAllString(text, "")
	text = rawURLExpr.ReplaceAllString(text, "")
	text = shortLinkExpr.ReplaceAllString(text, "")
	text = hashtagExpr.ReplaceAllString(text, "")
	text = clockExpr.ReplaceAllString(text, "")
	text = dateExpr.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = extraLineBreak.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// collapse squeezes every whitespace run into a single space.
func collapse(text string) string {
	return strings.TrimSpace(anyWhitespace.ReplaceAllString(text, " "))
}

// plainText renders an HTML fragment (feed descriptions) as one line of text.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.Contains(fragment, "<") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}
