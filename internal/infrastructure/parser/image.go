package parser

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"RedCardNews/internal/scanner"
)

const contentAncestors = `article, .article, main, [class*="content"]`

var (
	imageExtExpr   = regexp.MustCompile(`(?i)\.(?:jpe?g|png|webp|gif|avif)(?:$|[?#])`)
	fitWidthExpr   = regexp.MustCompile(`fit\((\d*):(\d*)\)`)
	fitOpExpr      = regexp.MustCompile(`operations=fit\(\d+:\)`)
	widthDescExpr  = regexp.MustCompile(`^(\d+)w$`)
	tightComma     = regexp.MustCompile(`,(https?:|//|/)`)
	logoMarkerExpr = regexp.MustCompile(`(?i)logo|icon|avatar|sprite|placeholder|social`)
	logoClassExpr  = regexp.MustCompile(`(?i)icon|logo|social`)
	logoAltExpr    = regexp.MustCompile(`(?i)logo|icon`)
)

// imageRules holds the host allow-list used to recognise CDN images.
type imageRules struct {
	hosts []string
}

// imageCandidate is one URL found in the page with the hints used to rank it.
type imageCandidate struct {
	url       string
	width     int
	inContent bool
	order     int
	class     string
	alt       string
}

// decorative reports whether the image looks like a logo, icon or share
// button rather than article media.
func (c imageCandidate) decorative() bool {
	return logoMarkerExpr.MatchString(c.url) || logoClassExpr.MatchString(c.class) || logoAltExpr.MatchString(c.alt)
}

func (r imageRules) strategies() []scanner.Strategy[*page, string] {
	return []scanner.Strategy[*page, string]{
		{Name: "host-source", Run: func(pg *page) (string, bool) {
			return r.best(pg, r.collect(pg, r.hostSelector("source", "srcset"), "srcset"))
		}},
		{Name: "host-img", Run: func(pg *page) (string, bool) {
			return r.best(pg, r.collect(pg, r.hostSelector("img", "src"), "src"))
		}},
		{Name: "any-source", Run: func(pg *page) (string, bool) {
			return r.best(pg, r.collect(pg, "source[srcset]", "srcset"))
		}},
		{Name: "picture-img", Run: func(pg *page) (string, bool) {
			return r.best(pg, r.collect(pg, "picture img", "src"))
		}},
		{Name: "content-img", Run: func(pg *page) (string, bool) {
			var found []imageCandidate
			for _, c := range r.collect(pg, "img[src]", "src") {
				if c.inContent && !c.decorative() {
					found = append(found, c)
				}
			}
			return r.best(pg, found)
		}},
		{Name: "og-image", Run: func(pg *page) (string, bool) {
			content, _ := pg.doc.Find(`meta[property="og:image"]`).First().Attr("content")
			return r.best(pg, []imageCandidate{{url: strings.TrimSpace(content)}})
		}},
	}
}

func (r imageRules) hostSelector(tag, attr string) string {
	if len(r.hosts) == 0 {
		return tag + "[" + attr + "]"
	}
	parts := make([]string, len(r.hosts))
	for i, host := range r.hosts {
		parts[i] = tag + "[" + attr + `*="` + host + `"]`
	}
	return strings.Join(parts, ", ")
}

// collect expands every matching element into candidates; srcset yields one
// candidate per entry.
func (r imageRules) collect(pg *page, selector, attr string) []imageCandidate {
	var out []imageCandidate
	pg.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		value, ok := s.Attr(attr)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		inContent := s.Closest(contentAncestors).Length() > 0
		if attr == "srcset" {
			for _, c := range parseSrcset(value) {
				c.inContent = inContent
				c.order = len(out)
				out = append(out, c)
			}
			return
		}
		width, _ := strconv.Atoi(s.AttrOr("width", "0"))
		out = append(out, imageCandidate{
			url:       strings.TrimSpace(value),
			width:     max(width, fitWidth(value)),
			inContent: inContent,
			order:     len(out),
			class:     s.AttrOr("class", ""),
			alt:       s.AttrOr("alt", ""),
		})
	})
	return out
}

// best ranks candidates by width, then in-content placement, then document
// order, and returns the first one that normalises to a valid image URL.
func (r imageRules) best(pg *page, candidates []imageCandidate) (string, bool) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.width != b.width {
			return a.width > b.width
		}
		if a.inContent != b.inContent {
			return a.inContent
		}
		return a.order < b.order
	})
	for _, c := range candidates {
		normalized := normalizeImageURL(c.url, pg.url)
		if normalized != "" && r.valid(normalized) {
			return normalized, true
		}
	}
	return "", false
}

func (r imageRules) valid(raw string) bool {
	if imageExtExpr.MatchString(raw) {
		return true
	}
	if strings.Contains(raw, "process/smp-images") || fitOpExpr.MatchString(raw) {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, host := range r.hosts {
		if strings.HasSuffix(u.Hostname(), host) {
			return true
		}
	}
	return false
}

// parseSrcset splits "url [descriptor], url [descriptor]" entries. CDN URLs
// may contain commas inside fit(...) so entries are split on whitespace and
// a trailing comma marks the end of an entry.
func parseSrcset(srcset string) []imageCandidate {
	var out []imageCandidate
	var current *imageCandidate
	srcset = tightComma.ReplaceAllString(srcset, ", $1")
	for _, token := range strings.Fields(srcset) {
		endsEntry := strings.HasSuffix(token, ",")
		token = strings.TrimSuffix(token, ",")
		switch {
		case current != nil && widthDescExpr.MatchString(token):
			w, _ := strconv.Atoi(strings.TrimSuffix(token, "w"))
			current.width = max(current.width, w)
		case current != nil && strings.HasSuffix(token, "x") && !strings.Contains(token, "/"):
			// density descriptor
		case token != "":
			out = append(out, imageCandidate{url: token, width: fitWidth(token)})
			current = &out[len(out)-1]
		}
		if endsEntry {
			current = nil
		}
	}
	return out
}

// fitWidth reads the width from CDN transforms such as fit(960:540).
func fitWidth(raw string) int {
	m := fitWidthExpr.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	w, _ := strconv.Atoi(m[1])
	return w
}

func normalizeImageURL(raw string, base *url.URL) string {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "&amp;", "&"))
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if base == nil {
			return ""
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
