package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go-openclaw-autoapply/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResume() *models.Resume {
	return &models.Resume{
		PersonalInformation: models.PersonalInformation{
			FullName: "Ada Lovelace",
			JobTitle: "Backend Developer",
			Email:    "ada@example.com",
			Links:    models.Link{LinkedIn: "linkedin.com/in/ada"},
		},
		Summary: "Go <backend> engineer.",
		Skills:  []string{"Go", "PostgreSQL", "Redis"},
		Experience: []models.Experience{{
			Role:             "Engineer",
			Company:          "Analytical Engines",
			Duration:         "2020 - now",
			Responsibilities: []string{"Built the job queue"},
		}},
	}
}

func TestRenderHTMLBuiltinTemplate(t *testing.T) {
	g, err := NewGenerator(nil, "")
	require.NoError(t, err)

	html, err := g.RenderHTML(sampleResume())
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Ada Lovelace</h1>")
	assert.Contains(t, html, "Go, PostgreSQL, Redis")
	assert.Contains(t, html, "Built the job queue")
	assert.Contains(t, html, "Go &lt;backend&gt; engineer.")
	assert.NotContains(t, html, "<h2>Projects</h2>")
}

func TestRenderHTMLCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mini.html")
	require.NoError(t, os.WriteFile(path, []byte(`{{.PersonalInformation.FullName}}|{{join .Skills "/"}}`), 0o644))

	g, err := NewGenerator(nil, path)
	require.NoError(t, err)
	html, err := g.RenderHTML(sampleResume())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace|Go/PostgreSQL/Redis", html)

	_, err = NewGenerator(nil, filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}

func TestGenerateWithoutBrowser(t *testing.T) {
	g, err := NewGenerator(nil, "")
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), sampleResume())
	assert.Error(t, err)
}

func TestSaveToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "dir", "resume.pdf")
	require.NoError(t, SaveToFile([]byte("%PDF-1.4"), out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}
