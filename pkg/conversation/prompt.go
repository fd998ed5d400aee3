package conversation

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/liamdty/theramatch/pkg/taxonomy"
	"github.com/liamdty/theramatch/pkg/tools"
)

//go:embed prompt.tmpl
var defaultPrompt string

// TaxonomySource provides the taxonomy currently in effect.
type TaxonomySource interface {
	Current() *taxonomy.Taxonomy
}

// Prompt renders the system prompt from the current taxonomy.
type Prompt struct {
	tmpl     *template.Template
	taxonomy TaxonomySource
}

// NewPrompt parses text as the system prompt template. An empty text selects
// the built-in prompt. The template sees .Tool and .Taxonomy.
func NewPrompt(text string, source TaxonomySource) (*Prompt, error) {
	if text == "" {
		text = defaultPrompt
	}
	tmpl, err := template.New("system").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	return &Prompt{tmpl: tmpl, taxonomy: source}, nil
}

// Render returns the system prompt.
func (p *Prompt) Render() (string, error) {
	var b strings.Builder
	err := p.tmpl.Execute(&b, struct {
		Tool     string
		Taxonomy string
	}{
		Tool:     tools.MatchDataName,
		Taxonomy: p.taxonomy.Current().String(),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return b.String(), nil
}
