// Package portal holds the per-portal application strategies. Each strategy
// drives one browser.Session through a job's application form.
package portal

import (
	"context"
	"net/url"
	"strings"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/models"
)

const (
	NameLinkedIn = "linkedin"
	NameIndeed   = "indeed"
	NameGeneric  = "generic"
)

// Recorder receives the evidence a strategy produces
type Recorder interface {
	Screenshot(step string, data []byte) string
	Logf(format string, args ...any)
}

type Request struct {
	Job        *models.Job
	Profile    *models.Profile
	ResumePath string
	Recorder   Recorder
	// Progress reports a named step and completion percent; may be nil
	Progress func(step string, percent int)
}

type nopRecorder struct{}

func (nopRecorder) Screenshot(string, []byte) string { return "" }
func (nopRecorder) Logf(string, ...any)              {}

func (r Request) withDefaults() Request {
	if r.Recorder == nil {
		r.Recorder = nopRecorder{}
	}
	return r
}

func (r Request) progress(step string, percent int) {
	if r.Progress != nil {
		r.Progress(step, percent)
	}
}

// Result is what a confirmed submission yields. ConfirmationNumber is empty
// when the portal showed none.
type Result struct {
	ConfirmationNumber string
	FormFields         map[string]string
	ResumeFilename     string
	FinalURL           string
}

// Strategy applies to one job on one portal. Failures are *automation.Error values.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, sess browser.Session, req Request) (*Result, error)
}

var rules = []struct {
	domain   string
	strategy Strategy
}{
	{"linkedin.com", LinkedIn{}},
	{"indeed.com", Indeed{}},
}

// Select picks the strategy for a job URL. Unknown hosts get the generic strategy.
func Select(rawURL string) Strategy {
	for _, r := range rules {
		if hostMatches(rawURL, r.domain) {
			return r.strategy
		}
	}
	return Generic{}
}

var knownPortals = []struct{ domain, name string }{
	{"linkedin.com", NameLinkedIn},
	{"indeed.com", NameIndeed},
	{"glassdoor.com", "glassdoor"},
	{"monster.com", "monster"},
	{"ziprecruiter.com", "ziprecruiter"},
}

// Detect names the portal a URL belongs to, for display and cookie lookup
func Detect(rawURL string) string {
	for _, p := range knownPortals {
		if hostMatches(rawURL, p.domain) {
			return p.name
		}
	}
	return NameGeneric
}

func hostMatches(rawURL, domain string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == domain || strings.HasSuffix(host, "."+domain)
}
