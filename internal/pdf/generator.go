// Package pdf renders a structured resume to PDF through the shared chromium instance.
package pdf

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"

	"github.com/playwright-community/playwright-go"
)

//go:embed templates/resume.html
var templates embed.FS

var funcMap = template.FuncMap{
	"join": strings.Join,
}

// PageOpener is the part of playwright.Browser the generator needs
type PageOpener interface {
	NewPage(options ...playwright.BrowserNewPageOptions) (playwright.Page, error)
}

// Generator converts resumes into PDF files
type Generator struct {
	tmpl    *template.Template
	browser PageOpener
}

// NewGenerator parses templatePath, or the built-in template when it is empty
func NewGenerator(browser PageOpener, templatePath string) (*Generator, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if templatePath == "" {
		tmpl, err = template.New("resume.html").Funcs(funcMap).ParseFS(templates, "templates/resume.html")
	} else {
		tmpl, err = template.New(filepath.Base(templatePath)).Funcs(funcMap).ParseFiles(templatePath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "parse resume template")
	}
	return &Generator{tmpl: tmpl, browser: browser}, nil
}

// RenderHTML executes the template for one resume
func (g *Generator) RenderHTML(resume *models.Resume) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, resume); err != nil {
		return "", errors.Wrap(err, "execute resume template")
	}
	return buf.String(), nil
}

// Generate renders resume as an A4 PDF
func (g *Generator) Generate(ctx context.Context, resume *models.Resume) ([]byte, error) {
	if g.browser == nil {
		return nil, errors.New("pdf generator has no browser")
	}
	html, err := g.RenderHTML(resume)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := g.browser.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "open pdf page")
	}
	defer page.Close()

	if err := page.SetContent(html, playwright.PageSetContentOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, errors.Wrap(err, "set pdf page content")
	}

	pdfBytes, err := page.PDF(playwright.PagePdfOptions{
		Format:          playwright.String("A4"),
		PrintBackground: playwright.Bool(true),
		Margin: &playwright.Margin{
			Top:    playwright.String("0"),
			Bottom: playwright.String("0"),
			Left:   playwright.String("0"),
			Right:  playwright.String("0"),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "render pdf")
	}
	return pdfBytes, nil
}

// SaveToFile writes pdfBytes to outputPath, creating parent directories
func SaveToFile(pdfBytes []byte, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.Wrap(err, "create resume directory")
	}
	return os.WriteFile(outputPath, pdfBytes, 0o644)
}
