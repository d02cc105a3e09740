// Package resume decides which resume file an application uploads.
package resume

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"go-openclaw-autoapply/internal/ai"
	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/pdf"

	"go.uber.org/zap"
)

// Renderer turns a structured resume into PDF bytes
type Renderer interface {
	Generate(ctx context.Context, resume *models.Resume) ([]byte, error)
}

// Provider hands out a job-tailored resume when tailoring is configured and
// works, and the profile's base resume file otherwise.
type Provider struct {
	tailor   ai.Client
	renderer Renderer
	outDir   string
	log      *zap.SugaredLogger
}

// NewProvider builds a provider. A nil tailor or renderer disables tailoring.
func NewProvider(tailor ai.Client, renderer Renderer, outDir string, log *zap.SugaredLogger) *Provider {
	return &Provider{tailor: tailor, renderer: renderer, outDir: outDir, log: log}
}

// Resolve returns the resume path for job and whether it was tailored. Tailoring
// failures fall back to the base resume; a missing base resume is FormIncomplete.
func (p *Provider) Resolve(ctx context.Context, job *models.Job, profile *models.Profile) (string, bool, error) {
	if p.canTailor(job, profile) {
		path, err := p.optimize(ctx, job, profile)
		if err == nil {
			return path, true, nil
		}
		p.log.Warnw("⚠️ Resume tailoring failed, falling back to base resume",
			"job_id", job.ID, "user_id", profile.UserID, "error", err)
	}

	if profile.ResumePath == "" {
		return "", false, automation.New(automation.CategoryFormIncomplete, "resolve resume", "profile has no resume file")
	}
	if _, err := os.Stat(profile.ResumePath); err != nil {
		return "", false, automation.Wrap(automation.CategoryFormIncomplete, "resolve resume", err)
	}
	return profile.ResumePath, false, nil
}

func (p *Provider) canTailor(job *models.Job, profile *models.Profile) bool {
	return p.tailor != nil && p.renderer != nil && profile.Resume != nil && job.Description != ""
}

func (p *Provider) optimize(ctx context.Context, job *models.Job, profile *models.Profile) (string, error) {
	path := p.Path(profile.UserID, job.ID)
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		p.log.Debugw("♻️ Reusing tailored resume", "path", path)
		return path, nil
	}

	tailored, err := p.tailor.TailorResume(ctx, profile.Resume, job.Description)
	if err != nil {
		return "", err
	}
	data, err := p.renderer.Generate(ctx, tailored)
	if err != nil {
		return "", err
	}
	if err := pdf.SaveToFile(data, path); err != nil {
		return "", err
	}
	p.log.Infow("📝 Tailored resume generated", "job_id", job.ID, "path", path)
	return path, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Path is where the tailored resume for (user, job) is stored
func (p *Provider) Path(userID, jobID string) string {
	return filepath.Join(p.outDir, unsafeChars.ReplaceAllString(userID, "_"), unsafeChars.ReplaceAllString(jobID, "_")+".pdf")
}
