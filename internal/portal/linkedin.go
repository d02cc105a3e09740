package portal

import (
	"context"
	"strings"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/browser"
)

var linkedInEasyApply = []string{
	`button:has-text("Easy Apply")`,
	`button[aria-label*="Easy Apply"]`,
	`.jobs-apply-button`,
}

var linkedInLoginMarkers = []string{"/login", "/authwall", "/checkpoint", "/uas/login"}

var linkedInForm = form{
	submit: []string{
		`button:has-text("Submit application")`,
		`button[aria-label*="Submit application"]`,
		`button:has-text("Send application")`,
	},
	next: []string{
		`button[aria-label*="Continue to next step"]`,
		`button[aria-label*="Review your application"]`,
		`button:has-text("Next")`,
		`button:has-text("Review")`,
	},
	success: []string{
		`.artdeco-inline-feedback--success`,
		`[data-test-modal-id="application-submitted"]`,
	},
}

// LinkedIn applies through the Easy Apply modal only
type LinkedIn struct{}

func (LinkedIn) Name() string { return NameLinkedIn }

func (s LinkedIn) Apply(ctx context.Context, sess browser.Session, req Request) (*Result, error) {
	req = req.withDefaults()

	req.Recorder.Logf("opening %s", req.Job.URL)
	if err := sess.Navigate(ctx, req.Job.URL); err != nil {
		return nil, err
	}
	shot(ctx, sess, req, StepLoaded)

	current := strings.ToLower(sess.CurrentURL())
	for _, marker := range linkedInLoginMarkers {
		if strings.Contains(current, marker) {
			return nil, automation.New(automation.CategoryAuthenticationRequired, "open job", "linkedin redirected to a login wall; refresh the session cookies")
		}
	}

	button, err := firstPresent(ctx, sess, linkedInEasyApply)
	if err != nil {
		return nil, err
	}
	if button == "" {
		return nil, automation.New(automation.CategoryUnsupportedFlow, "find easy apply", "job has no Easy Apply button and requires an off-site application")
	}
	req.Recorder.Logf("opening Easy Apply via %s", button)
	if err := sess.Click(ctx, button); err != nil {
		return nil, err
	}
	req.progress("form_loaded", 40)

	return newRun(linkedInForm, sess, req).complete(ctx)
}
