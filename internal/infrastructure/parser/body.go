package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"RedCardNews/internal/scanner"
)

const (
	minParagraphLength = 50
	minBodyLength      = 120
)

var bodyContainers = []string{
	`.mx-auto.max-w-\[620px\]`,
	`[class*="mx-auto"][class*="max-w-"]`,
	".article-body",
	".article-content",
	".entry-content",
	".post-content",
	"article .content",
}

var paragraphSelectors = []string{
	"article p",
	"main p",
	"p",
}

var paragraphNoise = []string{"©", "Tags:", "Facebook", "Twitter", "Instagram", "Leia também", "Ler mais"}

func bodyStrategies() []scanner.Strategy[*page, string] {
	var strategies []scanner.Strategy[*page, string]
	for _, sel := range bodyContainers {
		strategies = append(strategies, scanner.Strategy[*page, string]{
			Name: "container:" + sel,
			Run: func(pg *page) (string, bool) {
				return acceptBody(containerText(pg.doc.Find(sel).First()))
			},
		})
	}
	for _, sel := range paragraphSelectors {
		strategies = append(strategies, scanner.Strategy[*page, string]{
			Name: "paragraphs:" + sel,
			Run: func(pg *page) (string, bool) {
				return acceptBody(paragraphText(pg.doc.Find(sel)))
			},
		})
	}
	strategies = append(strategies, scanner.Strategy[*page, string]{
		Name: "readability",
		Run:  readabilityBody,
	})
	return strategies
}

func containerText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	var parts []string
	sel.Find("p, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return sel.Text()
	}
	return strings.Join(parts, "\n\n")
}

func paragraphText(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		if utf8.RuneCountInString(text) <= minParagraphLength || isNoise(text) {
			return
		}
		parts = append(parts, text)
	})
	return strings.Join(parts, "\n\n")
}

func isNoise(text string) bool {
	for _, marker := range paragraphNoise {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// readabilityBody runs the readability heuristic over the untouched page.
func readabilityBody(pg *page) (string, bool) {
	article, err := readability.FromReader(bytes.NewReader(pg.raw), pg.url)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return "", false
	}
	return acceptBody(paragraphText(doc.Find("p")))
}

func acceptBody(raw string) (string, bool) {
	body := cleanBody(raw)
	if utf8.RuneCountInString(body) < minBodyLength {
		return "", false
	}
	return body, true
}
