package portal

import (
	"context"
	"fmt"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/browser"
)

var indeedApply = []string{
	`button:has-text("Apply now")`,
	`.jobsearch-IndeedApplyButton`,
	`#indeedApplyButton`,
	`[data-jk] button:has-text("Apply")`,
}

// links that leave Indeed for the employer's own site
var indeedExternal = []string{
	`a:has-text("Apply on company site")`,
	`button:has-text("Apply on company site")`,
	`a[href^="http"]:has-text("Apply now")`,
}

var indeedForm = form{
	submit: []string{
		`button:has-text("Submit your application")`,
		`button:has-text("Submit application")`,
		`button[type="submit"]:has-text("Submit")`,
		`input[type="submit"]`,
	},
	next: []string{
		`button:has-text("Continue")`,
		`button:has-text("Next")`,
		`button:has-text("Review your application")`,
	},
	success: []string{
		`.ia-PostApply`,
		`[data-testid="post-apply-confirmation"]`,
	},
	successText: append([]string{"your application has been sent"}, defaultSuccessText...),
}

// Indeed applies through Indeed's native apply flow; employer redirects are unsupported
type Indeed struct{}

func (Indeed) Name() string { return NameIndeed }

func (s Indeed) Apply(ctx context.Context, sess browser.Session, req Request) (*Result, error) {
	req = req.withDefaults()

	req.Recorder.Logf("opening %s", req.Job.URL)
	if err := sess.Navigate(ctx, req.Job.URL); err != nil {
		return nil, err
	}
	shot(ctx, sess, req, StepLoaded)
	if err := s.checkRedirect(sess); err != nil {
		return nil, err
	}

	button, err := firstPresent(ctx, sess, indeedApply)
	if err != nil {
		return nil, err
	}
	if button == "" {
		external, err := firstPresent(ctx, sess, indeedExternal)
		if err != nil {
			return nil, err
		}
		if external != "" {
			return nil, automation.New(automation.CategoryUnsupportedFlow, "find apply", "job applies on the company site")
		}
		return nil, automation.New(automation.CategoryPortalChanged, "find apply", "no apply button found")
	}

	req.Recorder.Logf("opening Indeed apply via %s", button)
	if err := sess.Click(ctx, button); err != nil {
		return nil, err
	}
	if err := s.checkRedirect(sess); err != nil {
		return nil, err
	}
	req.progress("form_loaded", 40)

	return newRun(indeedForm, sess, req).complete(ctx)
}

func (Indeed) checkRedirect(sess browser.Session) error {
	current := sess.CurrentURL()
	if current != "" && !hostMatches(current, "indeed.com") {
		return automation.New(automation.CategoryUnsupportedFlow, "apply", fmt.Sprintf("redirected off Indeed to %s", current))
	}
	return nil
}
