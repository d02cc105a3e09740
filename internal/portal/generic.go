package portal

import (
	"context"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/browser"
)

var genericApply = []string{
	`button:has-text("Apply")`,
	`a:has-text("Apply")`,
	`input[value*="Apply"]`,
	`button[class*="apply"]`,
	`a[class*="apply"]`,
}

var genericForm = form{
	submit: []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button:has-text("Submit")`,
		`button:has-text("Send")`,
	},
	next: []string{
		`button:has-text("Next")`,
		`button:has-text("Continue")`,
	},
	success: []string{
		`[class*="success"]`,
		`[role="alert"]:has-text("Thank you")`,
	},
}

// Generic fills an arbitrary form by common attribute and label patterns
type Generic struct{}

func (Generic) Name() string { return NameGeneric }

func (s Generic) Apply(ctx context.Context, sess browser.Session, req Request) (*Result, error) {
	req = req.withDefaults()

	req.Recorder.Logf("opening %s", req.Job.URL)
	if err := sess.Navigate(ctx, req.Job.URL); err != nil {
		return nil, err
	}
	shot(ctx, sess, req, StepLoaded)

	login, err := sess.Exists(ctx, `input[type="password"]`)
	if err != nil {
		return nil, err
	}
	if login {
		return nil, automation.New(automation.CategoryAuthenticationRequired, "open job", "portal asks for an account login")
	}

	// job pages often show the posting first and the form behind an Apply button
	submit, err := firstPresent(ctx, sess, genericForm.submit)
	if err != nil {
		return nil, err
	}
	if submit == "" {
		button, err := firstPresent(ctx, sess, genericApply)
		if err != nil {
			return nil, err
		}
		if button != "" {
			req.Recorder.Logf("opening form via %s", button)
			if err := sess.Click(ctx, button); err != nil {
				return nil, err
			}
		}
	}
	req.progress("form_loaded", 40)

	return newRun(genericForm, sess, req).complete(ctx)
}
