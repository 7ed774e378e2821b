package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"RedCardNews/internal/domain"
)

func TestReplyParserTiers(t *testing.T) {
	t.Parallel()

	chain := replyParsers()
	original := domain.OriginalArticle{ID: "o", Title: "Original", Excerpt: "Resumo", Body: "Corpo original", Category: "Futebol"}

	tests := []struct {
		name      string
		raw       string
		wantTier  string
		wantTitle string
	}{
		{
			name:      "fenced json",
			raw:       "```json\n{\"title\":\"Novo\",\"body\":\"Texto\"}\n```",
			wantTier:  tierStrict,
			wantTitle: "Novo",
		},
		{
			name:      "json with prose around it",
			raw:       `Aqui está: {"title":"Novo","body":"Texto","tags":["a"]} espero que ajude`,
			wantTier:  tierStrict,
			wantTitle: "Novo",
		},
		{
			name:      "trailing comma",
			raw:       `{"title": "Quase \"JSON\"", "body": "Linha um\nLinha dois", "urgency": "breaking",}`,
			wantTier:  tierPattern,
			wantTitle: `Quase "JSON"`,
		},
		{
			name:      "missing body",
			raw:       `{"title":"Só título"}`,
			wantTier:  tierDegraded,
			wantTitle: "Original",
		},
		{
			name:      "garbage",
			raw:       "não é json",
			wantTier:  tierDegraded,
			wantTitle: "Original",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, tier, ok := chain.Resolve(reply{raw: tt.raw, original: original})
			require.True(t, ok)
			require.Equal(t, tt.wantTier, tier)
			require.Equal(t, tt.wantTitle, d.Title)
			require.NotEmpty(t, d.Body)
		})
	}
}

func TestPatternTierDefaults(t *testing.T) {
	t.Parallel()

	d, ok := parsePattern(reply{raw: `{"title": "T", "body": "B", "urgency": "breaking",}`})
	require.True(t, ok)

	got := d.finalize(domain.OriginalArticle{ID: "o"})
	require.Equal(t, patternScore, got.IntensityScore)
	require.Equal(t, domain.UrgencyBreaking, got.Urgency)
	require.Equal(t, fallbackTopic, got.Category)
	require.Equal(t, recoveredNote, got.Notes)
}

func TestFinalizeValidation(t *testing.T) {
	t.Parallel()

	original := domain.OriginalArticle{ID: "o"}

	tests := []struct {
		name        string
		raw         string
		wantScore   int
		wantUrgency domain.Urgency
	}{
		{"score above range", `{"title":"t","body":"b","intensityScore":42,"urgency":"high"}`, 10, domain.UrgencyHigh},
		{"score below range", `{"title":"t","body":"b","intensityScore":-3,"urgency":"low"}`, 1, domain.UrgencyLow},
		{"score as string", `{"title":"t","body":"b","intensityScore":"7"}`, 7, domain.UrgencyMedium},
		{"score missing", `{"title":"t","body":"b","urgency":"EXTREME"}`, domain.DefaultIntensity, domain.UrgencyMedium},
		{"score beyond int range", `{"title":"t","body":"b","intensityScore":1e30}`, 10, domain.UrgencyMedium},
		{"score hugely negative", `{"title":"t","body":"b","intensityScore":-1e30}`, 1, domain.UrgencyMedium},
		{"score not a number", `{"title":"t","body":"b","intensityScore":"NaN"}`, domain.DefaultIntensity, domain.UrgencyMedium},
		{"score fractional", `{"title":"t","body":"b","intensityScore":7.6}`, 7, domain.UrgencyMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, ok := parseStrict(reply{raw: tt.raw})
			require.True(t, ok)
			got := d.finalize(original)
			require.Equal(t, tt.wantScore, got.IntensityScore)
			require.Equal(t, tt.wantUrgency, got.Urgency)
		})
	}
}

func TestFinalizeCapsTitleAndTags(t *testing.T) {
	t.Parallel()

	d := draft{
		Title:    strings.Repeat("á", 300),
		Body:     "b",
		Category: "  Ténis  ",
		Tags:     []string{" a ", "", "b", "c", "d", "e", "f", "g"},
	}
	got := d.finalize(domain.OriginalArticle{ID: "o"})

	require.Equal(t, maxTitleLength, len([]rune(got.Title)))
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, got.Tags)
	require.Equal(t, "Ténis", got.Category)
	require.Equal(t, "o", got.OriginalArticleID)
}

func TestCleanMarkdown(t *testing.T) {
	t.Parallel()

	in := "# Título\n\nTexto com *itálico* e **negrito**.\n\n- item um\n- item dois\n\n\n\nVer [ligação](http://x.pt) e `código`"
	want := "Título\n\nTexto com itálico e **negrito**.\n\nitem um\nitem dois\n\nVer ligação e código"
	require.Equal(t, want, cleanMarkdown(in))
}
