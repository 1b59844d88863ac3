package pdfjobs

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/alnah/go-pdfjobs/internal/dateutil"
	"github.com/alnah/go-pdfjobs/internal/htmlprep"
)

// TemplateFormat selects how the expanded template is interpreted.
type TemplateFormat string

// Template formats.
const (
	FormatHTML     TemplateFormat = "html"
	FormatMarkdown TemplateFormat = "markdown"
)

func (f TemplateFormat) validate() error {
	switch f {
	case "", FormatHTML, FormatMarkdown:
		return nil
	}
	return fmt.Errorf("%w: unknown template format %q", ErrTemplateSyntax, f)
}

// TemplateRenderer expands a template string against a data tree into HTML.
// Failures wrap ErrTemplateSyntax for bad templates or data, ErrTemplateIO
// for everything else.
type TemplateRenderer interface {
	Render(ctx context.Context, tmpl string, data map[string]any, format TemplateFormat) (string, error)
}

// Compile-time interface check
var _ TemplateRenderer = (*GoTemplateRenderer)(nil)

// GoTemplateRenderer renders html/template templates. Markdown output is
// converted to a standalone HTML document after expansion.
//
// Templates can format dates with readable tokens or presets
// (iso, european, us, long):
//
//	{{ today "long" }}
//	{{ formatDate .invoice.dueDate "DD/MM/YYYY" }}
type GoTemplateRenderer struct {
	markdown htmlprep.HTMLConverter
	now      func() time.Time
}

// NewGoTemplateRenderer creates a renderer with the goldmark Markdown converter.
func NewGoTemplateRenderer() *GoTemplateRenderer {
	return &GoTemplateRenderer{markdown: htmlprep.NewGoldmarkConverter(), now: time.Now}
}

func (g *GoTemplateRenderer) funcs() template.FuncMap {
	return template.FuncMap{
		"today": func(format string) (string, error) {
			now := time.Now
			if g.now != nil {
				now = g.now
			}
			return dateutil.Format(now(), format)
		},
		"formatDate": dateutil.FormatValue,
	}
}

// Render parses tmpl, executes it with data and converts Markdown when asked.
// Missing keys are an error rather than an empty string.
func (g *GoTemplateRenderer) Render(ctx context.Context, tmpl string, data map[string]any, format TemplateFormat) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", ErrEmptyTemplate
	}
	if err := format.validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t, err := template.New("document").Option("missingkey=error").Funcs(g.funcs()).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateSyntax, err)
	}

	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail: every execution error is the
	// template's or the data's.
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateSyntax, err)
	}

	if format != FormatMarkdown {
		return buf.String(), nil
	}
	out, err := g.markdown.ToHTML(ctx, buf.String())
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrTemplateIO, err)
	}
	return out, nil
}
