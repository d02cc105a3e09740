package portal

import (
	"context"
	"fmt"
	"testing"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/browser/browsertest"
	"go-openclaw-autoapply/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	steps []string
	lines []string
}

func (r *recorder) Screenshot(step string, data []byte) string {
	r.steps = append(r.steps, step)
	return step + ".png"
}

func (r *recorder) Logf(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func testProfile() *models.Profile {
	return &models.Profile{
		UserID:     "u1",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		YearsOfExp: 5,
		Answers: map[string]string{
			"sponsorship":        "No",
			"authorized to work": "Yes",
		},
	}
}

func newRequest(url string) (Request, *recorder, *[]int) {
	rec := &recorder{}
	var percents []int
	return Request{
		Job:        &models.Job{ID: "j1", Title: "Go Engineer", Company: "Acme", URL: url},
		Profile:    testProfile(),
		ResumePath: "/data/resumes/resume.pdf",
		Recorder:   rec,
		Progress:   func(step string, percent int) { percents = append(percents, percent) },
	}, rec, &percents
}

const genericSubmit = `button[type="submit"]`

func genericPage() *browsertest.Session {
	s := browsertest.NewSession()
	s.AddField("first_name", "#first", "text", true)
	s.AddField("email", "#email", "email", true)
	s.AddField("resume_upload", "#resume", "file", true)
	s.OnClick(genericSubmit, func(s *browsertest.Session) {
		s.PageText = "Application submitted. Confirmation number: ABC123"
	})
	return s
}

func TestSelect(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.linkedin.com/jobs/view/123", NameLinkedIn},
		{"https://linkedin.com/jobs/view/123", NameLinkedIn},
		{"https://uk.indeed.com/viewjob?jk=abc", NameIndeed},
		{"https://notlinkedin.com/jobs/1", NameGeneric},
		{"https://example.com/linkedin.com", NameGeneric},
		{"https://boards.greenhouse.io/acme/jobs/1", NameGeneric},
		{"::not a url", NameGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, Select(tt.url).Name())
		})
	}
}

func TestDetect(t *testing.T) {
	assert.Equal(t, "glassdoor", Detect("https://www.glassdoor.com/job-listing/x"))
	assert.Equal(t, "ziprecruiter", Detect("https://www.ziprecruiter.com/c/Acme/Job/x"))
	assert.Equal(t, NameIndeed, Detect("https://vn.indeed.com/viewjob?jk=1"))
	assert.Equal(t, NameGeneric, Detect("https://jobs.acme.dev/42"))
}

func TestGenericHappyPath(t *testing.T) {
	sess := genericPage()
	req, rec, percents := newRequest("https://jobs.acme.dev/42")

	res, err := Generic{}.Apply(context.Background(), sess, req)
	require.NoError(t, err)

	assert.Equal(t, "ABC123", res.ConfirmationNumber)
	assert.Equal(t, "resume.pdf", res.ResumeFilename)
	assert.Equal(t, "https://jobs.acme.dev/42", res.FinalURL)
	assert.Equal(t, "Ada", res.FormFields["first_name"])
	assert.Equal(t, "ada@example.com", res.FormFields["email"])

	assert.Equal(t, []string{StepLoaded, StepBeforeSubmit, StepAfterSubmit}, rec.steps)
	assert.Equal(t, []int{40, 60, 80}, *percents)
	assert.Equal(t, "Ada", sess.Filled["#first"])
	assert.Equal(t, "/data/resumes/resume.pdf", sess.Uploaded["#resume"])
	assert.Equal(t, []string{genericSubmit}, sess.Clicks)
}

func TestGenericOpensFormBehindApplyButton(t *testing.T) {
	sess := browsertest.NewSession()
	sess.OnClick(`button:has-text("Apply")`, func(s *browsertest.Session) {
		s.Fields["email"] = &browser.Field{Hint: "email", Selector: "#email", Kind: "email", Required: true}
		s.Required = append(s.Required, "#email")
		s.Present[genericSubmit] = true
		s.ClickEffects[genericSubmit] = func(s *browsertest.Session) { s.PageText = "Thanks for applying!" }
	})
	req, _, _ := newRequest("https://jobs.acme.dev/42")

	res, err := Generic{}.Apply(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Empty(t, res.ConfirmationNumber, "confirmation number is optional")
	assert.Equal(t, []string{`button:has-text("Apply")`, genericSubmit}, sess.Clicks)
}

func TestGenericRequiredFieldLeftBlank(t *testing.T) {
	sess := genericPage()
	// the profile has no phone number
	sess.AddField("phone", "#phone", "tel", true)
	req, rec, _ := newRequest("https://jobs.acme.dev/42")

	_, err := Generic{}.Apply(context.Background(), sess, req)
	require.Error(t, err)
	assert.Equal(t, automation.CategoryFormIncomplete, automation.Classify(err))
	assert.Contains(t, err.Error(), "#phone")
	assert.Empty(t, sess.Clicks, "must not submit an incomplete form")
	assert.Equal(t, []string{StepLoaded}, rec.steps)
}

func TestGenericOptionalFieldWithoutMatchIsLeftBlank(t *testing.T) {
	sess := genericPage()
	req, _, _ := newRequest("https://jobs.acme.dev/42")
	req.Profile.Website = "https://ada.dev"

	res, err := Generic{}.Apply(context.Background(), sess, req)
	require.NoError(t, err)
	assert.NotContains(t, res.FormFields, "website")
}

func TestGenericSubmissionNotConfirmed(t *testing.T) {
	sess := genericPage()
	sess.ClickEffects[genericSubmit] = func(s *browsertest.Session) { s.PageText = "Please correct the errors below" }
	req, _, _ := newRequest("https://jobs.acme.dev/42")

	_, err := Generic{}.Apply(context.Background(), sess, req)
	require.Error(t, err)
	assert.Equal(t, automation.CategoryPortalChanged, automation.Classify(err))
}

func TestGenericValidationErrorWithApplicationID(t *testing.T) {
	sess := genericPage()
	sess.ClickEffects[genericSubmit] = func(s *browsertest.Session) {
		s.PageText = "Application ID: 48213\nPlease correct the errors below"
	}
	req, _, _ := newRequest("https://jobs.acme.dev/42")

	res, err := Generic{}.Apply(context.Background(), sess, req)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, automation.CategoryPortalChanged, automation.Classify(err))
}

func TestGenericSubmitButtonGoneCountsAsSubmitted(t *testing.T) {
	sess := genericPage()
	sess.ClickEffects[genericSubmit] = func(s *browsertest.Session) { delete(s.Present, genericSubmit) }
	req, _, _ := newRequest("https://jobs.acme.dev/42")

	res, err := Generic{}.Apply(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Empty(t, res.ConfirmationNumber)
}

func TestGenericLoginWall(t *testing.T) {
	sess := genericPage()
	sess.Present[`input[type="password"]`] = true
	req, _, _ := newRequest("https://jobs.acme.dev/42")

	_, err := Generic{}.Apply(context.Background(), sess, req)
	assert.Equal(t, automation.CategoryAuthenticationRequired, automation.Classify(err))
}

func TestGenericTimeoutDuringFill(t *testing.T) {
	sess := genericPage()
	sess.FailOn["fill"] = automation.New(automation.CategoryTimeout, "fill first_name", "locator timeout 30000ms exceeded")
	req, _, _ := newRequest("https://jobs.acme.dev/42")

	_, err := Generic{}.Apply(context.Background(), sess, req)
	assert.Equal(t, automation.CategoryTimeout, automation.Classify(err))
}

func TestScreenshotFailureDoesNotFailAttempt(t *testing.T) {
	sess := genericPage()
	sess.FailOn["screenshot"] = automation.New(automation.CategoryUnknown, "screenshot", "boom")
	req, rec, _ := newRequest("https://jobs.acme.dev/42")

	_, err := Generic{}.Apply(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Empty(t, rec.steps)
	assert.Contains(t, rec.lines, "screenshot loaded failed: unknown: screenshot: boom")
}

func TestLinkedInWithoutEasyApply(t *testing.T) {
	sess := browsertest.NewSession()
	req, rec, _ := newRequest("https://www.linkedin.com/jobs/view/123")

	_, err := LinkedIn{}.Apply(context.Background(), sess, req)
	require.Error(t, err)
	assert.Equal(t, automation.CategoryUnsupportedFlow, automation.Classify(err))
	assert.False(t, automation.CategoryUnsupportedFlow.Retryable())
	assert.Equal(t, []string{StepLoaded}, rec.steps)
}

func TestLinkedInAuthWall(t *testing.T) {
	sess := browsertest.NewSession()
	sess.Redirects["https://www.linkedin.com/jobs/view/123"] = "https://www.linkedin.com/authwall?trk=job"
	req, _, _ := newRequest("https://www.linkedin.com/jobs/view/123")

	_, err := LinkedIn{}.Apply(context.Background(), sess, req)
	assert.Equal(t, automation.CategoryAuthenticationRequired, automation.Classify(err))
}

func TestLinkedInMultiStepEasyApply(t *testing.T) {
	const (
		next   = `button:has-text("Next")`
		submit = `button:has-text("Submit application")`
		radio  = `input[name="sponsor"]`
	)
	sess := browsertest.NewSession()
	sess.AddField("email", "#email", "email", true)
	sess.AddField("resume_upload", "#resume", "file", false)
	sess.OnClick(linkedInEasyApply[0], func(s *browsertest.Session) {
		s.Present[next] = true
	})
	sess.OnClick(next, func(s *browsertest.Session) {
		delete(s.Present, next)
		s.Present[submit] = true
		s.QuestionList = []browser.Field{{
			Selector: radio,
			Label:    "Will you now or in the future require visa sponsorship?",
			Kind:     "radio",
			Required: true,
		}}
		s.Required = append(s.Required, radio)
	})
	sess.OnClick(submit, func(s *browsertest.Session) {
		s.Present[`.artdeco-inline-feedback--success`] = true
		s.PageText = "Your application was sent to Acme. Reference: APP-20240611"
	})
	req, rec, percents := newRequest("https://www.linkedin.com/jobs/view/123")

	res, err := LinkedIn{}.Apply(context.Background(), sess, req)
	require.NoError(t, err)

	assert.Equal(t, "APP-20240611", res.ConfirmationNumber)
	assert.Equal(t, "No", sess.Filled[radio])
	assert.Equal(t, []string{linkedInEasyApply[0], next, submit}, sess.Clicks)
	assert.Equal(t, []string{StepLoaded, StepBeforeSubmit, StepAfterSubmit}, rec.steps)
	assert.Equal(t, []int{40, 60, 80}, *percents)
}

func TestIndeed(t *testing.T) {
	const url = "https://www.indeed.com/viewjob?jk=abc"

	t.Run("external apply", func(t *testing.T) {
		sess := browsertest.NewSession()
		sess.Present[`a:has-text("Apply on company site")`] = true
		req, _, _ := newRequest(url)

		_, err := Indeed{}.Apply(context.Background(), sess, req)
		assert.Equal(t, automation.CategoryUnsupportedFlow, automation.Classify(err))
	})

	t.Run("redirect after apply", func(t *testing.T) {
		sess := browsertest.NewSession()
		sess.OnClick(indeedApply[0], func(s *browsertest.Session) { s.URL = "https://careers.acme.dev/apply" })
		req, _, _ := newRequest(url)

		_, err := Indeed{}.Apply(context.Background(), sess, req)
		assert.Equal(t, automation.CategoryUnsupportedFlow, automation.Classify(err))
		assert.Contains(t, err.Error(), "careers.acme.dev")
	})

	t.Run("no apply button", func(t *testing.T) {
		sess := browsertest.NewSession()
		req, _, _ := newRequest(url)

		_, err := Indeed{}.Apply(context.Background(), sess, req)
		assert.Equal(t, automation.CategoryPortalChanged, automation.Classify(err))
	})

	t.Run("native flow", func(t *testing.T) {
		submit := indeedForm.submit[0]
		sess := browsertest.NewSession()
		sess.AddField("email", "#email", "email", true)
		sess.OnClick(indeedApply[0], func(s *browsertest.Session) {
			s.URL = "https://smartapply.indeed.com/beta/indeedapply/form"
			s.Present[submit] = true
		})
		sess.OnClick(submit, func(s *browsertest.Session) {
			s.PageText = "Your application has been sent!"
			delete(s.Present, submit)
		})
		req, _, _ := newRequest(url)

		res, err := Indeed{}.Apply(context.Background(), sess, req)
		require.NoError(t, err)
		assert.Equal(t, "https://smartapply.indeed.com/beta/indeedapply/form", res.FinalURL)
	})
}

func TestExtractConfirmation(t *testing.T) {
	tests := []struct {
		text, expected string
	}{
		{"Application submitted. Confirmation number: ABC123", "ABC123"},
		{"Reference: REF-2024-001", "REF-2024-001"},
		{"Your Application ID is 98765", "98765"},
		{"Confirmation #: XK42QZ", "XK42QZ"},
		{"Thank you for applying!", ""},
		{"Application submitted successfully", ""},
		{"Reference: ABCDEF", ""},
		{"Confirmation No. 55123", "55123"},
		{"Thanks! Your application 2024 Summer Intern is in review", ""},
		{"Application ID: 48213", "48213"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractConfirmation(tt.text))
		})
	}
}

func TestAnswer(t *testing.T) {
	answers := map[string]string{
		"sponsorship":         "No",
		"visa_sponsorship":    "No, never",
		"authorized to work":  "Yes",
		"years of experience": "5",
	}

	got, ok := Answer(answers, "Will you require visa sponsorship?")
	require.True(t, ok)
	assert.Equal(t, "No, never", got)

	got, ok = Answer(answers, "Are you legally AUTHORIZED to work in Vietnam?")
	require.True(t, ok)
	assert.Equal(t, "Yes", got)

	_, ok = Answer(answers, "What is your favourite colour?")
	assert.False(t, ok)

	_, ok = Answer(nil, "anything")
	assert.False(t, ok)
}
