package llm

import (
	"fmt"
	"strings"

	"RedCardNews/internal/domain"
)

const defaultPersona = `És o editor do RedCardNews, um jornal desportivo português com uma voz
própria: direta, apaixonada e sem papas na língua. Reescreves notícias de
desporto com energia de bancada, mantendo todos os factos, nomes, resultados
e citações exatamente como no original. Nunca inventas informação.

Escreves sempre em português europeu. Usas **negrito** para destacar nomes e
momentos decisivos, mas não usas títulos markdown, listas, links nem blocos de
código.

Respondes apenas com um objeto JSON, sem texto antes ou depois, com os campos:
{
  "title": "título reescrito, no máximo 200 caracteres",
  "excerpt": "resumo de uma ou duas frases",
  "body": "texto completo reescrito, parágrafos separados por linhas em branco",
  "intensityScore": número inteiro de 1 a 10 que mede o dramatismo da notícia,
  "urgency": "low" | "medium" | "high" | "breaking",
  "category": "categoria desportiva da notícia",
  "tags": ["até", "cinco", "etiquetas"],
  "notes": "observações opcionais sobre a reescrita"
}`

func systemPrompt(override string) string {
	if p := strings.TrimSpace(override); p != "" {
		return p
	}
	return defaultPersona
}

func userPrompt(a domain.OriginalArticle) string {
	body := a.Body
	if strings.TrimSpace(body) == "" {
		body = a.Excerpt
	}

	var b strings.Builder
	b.WriteString("Reescreve a seguinte notícia no estilo RedCardNews.\n\n")
	fmt.Fprintf(&b, "TÍTULO: %s\n", a.Title)
	fmt.Fprintf(&b, "RESUMO: %s\n", a.Excerpt)
	fmt.Fprintf(&b, "CATEGORIA: %s\n", a.Category)
	if !a.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "DATA: %s\n", a.PublishedAt.Format("02/01/2006 15:04"))
	}
	fmt.Fprintf(&b, "\nTEXTO:\n%s\n", body)
	return b.String()
}
