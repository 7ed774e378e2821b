package parser

import (
	"strings"

	"RedCardNews/internal/scanner"
)

const maxAuthorLength = 120

var authorSelectors = []string{
	".author",
	".byline",
	`[class*="author"]`,
	".writer",
	`[rel="author"]`,
}

func authorStrategies() []scanner.Strategy[*page, string] {
	strategies := make([]scanner.Strategy[*page, string], 0, len(authorSelectors)+1)
	for _, sel := range authorSelectors {
		strategies = append(strategies, scanner.Strategy[*page, string]{
			Name: "selector:" + sel,
			Run: func(pg *page) (string, bool) {
				return acceptAuthor(pg.doc.Find(sel).First().Text())
			},
		})
	}
	strategies = append(strategies, scanner.Strategy[*page, string]{
		Name: "meta:author",
		Run: func(pg *page) (string, bool) {
			content, _ := pg.doc.Find(`meta[name="author"]`).First().Attr("content")
			return acceptAuthor(content)
		},
	})
	return strategies
}

func acceptAuthor(raw string) (string, bool) {
	name := collapse(raw)
	name = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(name, "Por "), "por "))
	if name == "" || len([]rune(name)) > maxAuthorLength {
		return "", false
	}
	return name, true
}
