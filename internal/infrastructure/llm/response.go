package llm

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/scanner"
)

const (
	tierStrict   = "strict-json"
	tierPattern  = "pattern"
	tierDegraded = "degraded"

	maxTitleLength = 200
	maxTags        = 5
	fallbackTopic  = "Geral"
	patternScore   = 6
	degradedNote   = "Resposta do modelo ilegível; mantido o texto original."
	recoveredNote  = "Resposta do modelo recuperada a partir de JSON inválido."
)

// reply is the parser input: the raw model text plus the article it answers.
type reply struct {
	raw      string
	original domain.OriginalArticle
}

// draft is a parsed reply before validation.
type draft struct {
	Title          string   `json:"title"`
	Excerpt        string   `json:"excerpt"`
	Body           string   `json:"body"`
	IntensityScore flexInt  `json:"intensityScore"`
	Urgency        string   `json:"urgency"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Notes          string   `json:"notes"`
}

// flexInt accepts a JSON number or a numeric string; set is false when the
// field was absent or unusable.
type flexInt struct {
	value int
	set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) {
		return nil
	}
	// clamp before converting, out-of-range floats have no defined int value
	n = math.Max(math.Min(n, domain.MaxIntensity), domain.MinIntensity)
	f.value, f.set = int(n), true
	return nil
}

func replyParsers() *scanner.Chain[reply, draft] {
	return scanner.NewChain(
		scanner.Strategy[reply, draft]{Name: tierStrict, Run: parseStrict},
		scanner.Strategy[reply, draft]{Name: tierPattern, Run: parsePattern},
		scanner.Strategy[reply, draft]{Name: tierDegraded, Run: degrade},
	)
}

// parseStrict decodes the outermost {...} of the reply.
func parseStrict(in reply) (draft, bool) {
	text := fenceExpr.ReplaceAllString(in.raw, "")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return draft{}, false
	}

	var d draft
	if err := json.Unmarshal([]byte(text[start:end+1]), &d); err != nil {
		return draft{}, false
	}
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Body) == "" {
		return draft{}, false
	}
	return d, true
}

var (
	titleField    = stringField("title")
	excerptField  = stringField("excerpt")
	bodyField     = stringField("body")
	urgencyField  = stringField("urgency")
	categoryField = stringField("category")
	scoreField    = regexp.MustCompile(`"intensityScore"\s*:\s*"?(\d+)`)
)

func stringField(name string) *regexp.Regexp {
	return regexp.MustCompile(`"` + name + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
}

// parsePattern recovers fields from text that is almost JSON, e.g. with a
// trailing comma or an unescaped newline.
func parsePattern(in reply) (draft, bool) {
	d := draft{
		Title:    matchString(titleField, in.raw),
		Excerpt:  matchString(excerptField, in.raw),
		Body:     matchString(bodyField, in.raw),
		Urgency:  matchString(urgencyField, in.raw),
		Category: matchString(categoryField, in.raw),
		Notes:    recoveredNote,
	}
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Body) == "" {
		return draft{}, false
	}

	d.IntensityScore = flexInt{value: patternScore, set: true}
	if m := scoreField.FindStringSubmatch(in.raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.IntensityScore.value = n
		}
	}
	return d, true
}

func matchString(expr *regexp.Regexp, raw string) string {
	m := expr.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return s
	}
	return strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\\`, `\`).Replace(m[1])
}

// degrade always succeeds with the original text.
func degrade(in reply) (draft, bool) {
	body := in.original.Body
	if strings.TrimSpace(body) == "" {
		body = in.original.Excerpt
	}
	return draft{
		Title:          in.original.Title,
		Excerpt:        in.original.Excerpt,
		Body:           body,
		IntensityScore: flexInt{value: domain.DefaultIntensity, set: true},
		Urgency:        string(domain.UrgencyMedium),
		Category:       in.original.Category,
		Notes:          degradedNote,
	}, true
}

// finalize validates the draft into an unpublished rewrite of original.
func (d draft) finalize(original domain.OriginalArticle) domain.RewrittenArticle {
	score := domain.DefaultIntensity
	if d.IntensityScore.set {
		score = domain.ClampIntensity(d.IntensityScore.value)
	}

	category := strings.TrimSpace(d.Category)
	if category == "" {
		category = fallbackTopic
	}

	return domain.RewrittenArticle{
		OriginalArticleID: original.ID,
		Title:             truncateRunes(collapseSpaces(cleanMarkdown(d.Title)), maxTitleLength),
		Excerpt:           cleanMarkdown(d.Excerpt),
		Body:              cleanMarkdown(d.Body),
		IntensityScore:    score,
		Urgency:           domain.ParseUrgency(d.Urgency),
		Category:          category,
		Tags:              normalizeTags(d.Tags),
		Notes:             strings.TrimSpace(d.Notes),
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, min(len(tags), maxTags))
	for _, tag := range tags {
		if len(out) == maxTags {
			break
		}
		if t := strings.TrimSpace(tag); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}
