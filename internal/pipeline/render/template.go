// internal/pipeline/render/template.go
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/pkg/registry"
)

// templateData wraps the document with render-only derivations.
type templateData struct {
	*models.ReportDocument
	PlaceholderNarrative string
	NarrativeParagraphs  []string
}

var templateFuncs = template.FuncMap{
	// scorePct maps a 0..5 score to a 0..100 bar width.
	"scorePct": func(v float64) float64 {
		return math.Max(0, math.Min(100, v/5*100))
	},
	"fmtScore": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
	"fmtPct": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 1, 64)
	},
	"gradeLabel": func(g models.Grade) string {
		switch g {
		case models.GradeExcellent:
			return "Excellent"
		case models.GradeGood:
			return "Good"
		case models.GradeAverage:
			return "Average"
		case models.GradeNeedsImprovement:
			return "Needs Improvement"
		default:
			return "N/A"
		}
	},
}

func loadTemplates(dir string, reg *registry.TemplateRegistry) (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(reg.Templates))
	for _, entry := range reg.Templates {
		content, err := os.ReadFile(filepath.Join(dir, entry.File))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.ID, err)
		}
		tpl, err := template.New(entry.ID).Funcs(templateFuncs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.ID, err)
		}
		templates[entry.ID] = tpl
	}
	return templates, nil
}

// ValidateTemplates parses every manifest entry exactly the way the service
// does at startup, so the registry tool catches what would break a deploy.
func ValidateTemplates(dir string, reg *registry.TemplateRegistry) error {
	_, err := loadTemplates(dir, reg)
	return err
}

func (s *Service) expand(doc *models.ReportDocument) (string, error) {
	tpl, ok := s.templates[doc.TemplateID]
	if !ok {
		return "", apperrors.NewTemplateNotFoundError(doc.TemplateID)
	}

	data := templateData{
		ReportDocument:       doc,
		PlaceholderNarrative: models.PlaceholderNarrative,
		NarrativeParagraphs:  narrativeParagraphs(doc),
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", apperrors.NewRenderFailedError(doc.TeamID, err)
	}
	return buf.String(), nil
}

func narrativeParagraphs(doc *models.ReportDocument) []string {
	if !doc.HasNarrative() {
		return nil
	}
	var paragraphs []string
	for _, p := range strings.Split(doc.Narrative.Text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
