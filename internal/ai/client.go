// Package ai tailors a structured resume to a job description through a chat-completions model.
package ai

import (
	"context"
	"fmt"

	"go-openclaw-autoapply/internal/models"
)

// Client tailors resumes. Implementations must return a resume with the same shape as the base.
type Client interface {
	TailorResume(ctx context.Context, base *models.Resume, jobDescription string) (*models.Resume, error)
}

func buildSystemPrompt() string {
	return `You are an expert ATS-friendly resume writer.
I will provide a base resume in JSON format and a target job description.

Task:
1. Keep the JSON structure EXACTLY the same. Key names must not change. Keep company names, durations and education exactly as they are.
2. Adapt 'job_title' in personal_information to match the target role.
3. Remove skills and projects that do not align with the job description.
4. Rewrite 'summary' and the 'responsibilities' under 'experience' and the 'details' under 'projects' to emphasize the stack and keywords the job asks for. Do not invent experience.
5. Return ONLY the raw JSON object of the tailored resume, starting with { and ending with }. No markdown fences.`
}

func buildUserPrompt(baseResumeJSON, jobDescription string) string {
	return fmt.Sprintf("Base Resume (JSON):\n%s\n\nJob Description:\n%s\n\nPlease output the tailored resume in EXACTLY the same JSON structure.", baseResumeJSON, jobDescription)
}
