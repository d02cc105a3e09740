package portal

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/errors"
)

const (
	StepLoaded       = "loaded"
	StepBeforeSubmit = "before_submit"
	StepAfterSubmit  = "after_submit"
)

// maxFormSteps bounds Next/Continue clicks through multi-page forms
const maxFormSteps = 8

// profileFields are filled in this order from the profile
var profileFields = []string{
	"first_name", "last_name", "full_name", "email", "phone",
	"city", "location", "linkedin", "website", "experience_years", "cover_letter",
}

// form describes how one portal's application form is advanced, submitted and confirmed
type form struct {
	submit      []string
	next        []string
	success     []string
	successText []string
}

var defaultSuccessText = []string{
	"application submitted",
	"application sent",
	"application has been sent",
	"application has been submitted",
	"thank you for applying",
	"thanks for applying",
	"successfully applied",
}

// formRun is the state of one pass over a form
type formRun struct {
	form
	sess     browser.Session
	req      Request
	fields   map[string]string
	filled   map[string]bool
	uploaded bool
	resume   string
}

func newRun(f form, sess browser.Session, req Request) *formRun {
	return &formRun{
		form:   f,
		sess:   sess,
		req:    req,
		fields: map[string]string{},
		filled: map[string]bool{},
	}
}

// shot captures a screenshot as evidence. Capture failures never fail the attempt.
func shot(ctx context.Context, sess browser.Session, req Request, step string) {
	data, err := sess.Screenshot(ctx)
	if err != nil {
		req.Recorder.Logf("screenshot %s failed: %v", step, err)
		return
	}
	req.Recorder.Screenshot(step, data)
}

// firstPresent returns the first selector that is on the page, "" if none
func firstPresent(ctx context.Context, sess browser.Session, selectors []string) (string, error) {
	for _, sel := range selectors {
		ok, err := sess.Exists(ctx, sel)
		if err != nil {
			return "", err
		}
		if ok {
			return sel, nil
		}
	}
	return "", nil
}

// complete fills every step of the form, submits it and verifies the outcome
func (r *formRun) complete(ctx context.Context) (*Result, error) {
	for _, hint := range r.req.Job.RequiredFields {
		if r.req.Profile.FieldValue(hint) == "" {
			r.req.Recorder.Logf("listing asks for %s but the profile has none", hint)
		}
	}

	submit := ""
	for step := 0; ; step++ {
		if err := r.fillPage(ctx); err != nil {
			return nil, err
		}

		var err error
		submit, err = firstPresent(ctx, r.sess, r.submit)
		if err != nil {
			return nil, err
		}
		if submit != "" {
			break
		}

		next, err := firstPresent(ctx, r.sess, r.next)
		if err != nil {
			return nil, err
		}
		if next == "" {
			return nil, automation.New(automation.CategoryPortalChanged, "submit", "no submit button found")
		}
		if step >= maxFormSteps {
			return nil, automation.New(automation.CategoryPortalChanged, "submit", fmt.Sprintf("form did not end after %d steps", maxFormSteps))
		}
		if err := r.requireFilled(ctx); err != nil {
			return nil, err
		}
		r.req.Recorder.Logf("advancing form step %d via %s", step+1, next)
		if err := r.sess.Click(ctx, next); err != nil {
			return nil, err
		}
	}

	if err := r.requireFilled(ctx); err != nil {
		return nil, err
	}
	r.req.progress("form_filled", 60)
	shot(ctx, r.sess, r.req, StepBeforeSubmit)

	r.req.Recorder.Logf("submitting via %s", submit)
	if err := r.sess.Click(ctx, submit); err != nil {
		return nil, err
	}
	r.req.progress("submitted", 80)
	shot(ctx, r.sess, r.req, StepAfterSubmit)

	text, err := r.verify(ctx, submit)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ConfirmationNumber: ExtractConfirmation(text),
		FormFields:         r.fields,
		ResumeFilename:     r.resume,
		FinalURL:           r.sess.CurrentURL(),
	}
	if res.ConfirmationNumber != "" {
		r.req.Recorder.Logf("confirmation number %s", res.ConfirmationNumber)
	} else {
		r.req.Recorder.Logf("submission confirmed without a confirmation number")
	}
	return res, nil
}

// fillPage fills the profile fields, answers screening questions and uploads the resume
func (r *formRun) fillPage(ctx context.Context) error {
	for _, hint := range profileFields {
		value := r.req.Profile.FieldValue(hint)
		if value == "" {
			continue
		}
		f, err := r.sess.FindField(ctx, hint)
		if err != nil {
			return err
		}
		if f == nil {
			continue
		}
		if err := r.fill(ctx, f, hint, value); err != nil {
			return err
		}
	}

	if err := r.answerQuestions(ctx); err != nil {
		return err
	}
	return r.uploadResume(ctx)
}

// fill tolerates a missing optional control; anything else aborts the attempt
func (r *formRun) fill(ctx context.Context, f *browser.Field, key, value string) error {
	if r.filled[f.Selector] {
		return nil
	}
	if err := r.sess.Fill(ctx, f, value); err != nil {
		if !f.Required && automation.Classify(err) == automation.CategoryPortalChanged {
			r.req.Recorder.Logf("skipped %s: %v", key, err)
			return nil
		}
		return err
	}
	r.filled[f.Selector] = true
	r.fields[key] = value
	return nil
}

func (r *formRun) answerQuestions(ctx context.Context) error {
	questions, err := r.sess.Questions(ctx)
	if err != nil {
		return err
	}
	for i := range questions {
		q := &questions[i]
		if r.filled[q.Selector] || q.Kind == "file" {
			continue
		}
		answer, ok := Answer(r.req.Profile.Answers, q.Label)
		if !ok {
			if hint := browser.MatchLabel(q.Label); hint != "" && hint != "resume_upload" {
				answer = r.req.Profile.FieldValue(hint)
				ok = answer != ""
			}
		}
		if !ok {
			if q.Required {
				r.req.Recorder.Logf("no answer for required question %q", q.Label)
			}
			continue
		}
		if err := r.fill(ctx, q, q.Label, answer); err != nil {
			return err
		}
	}
	return nil
}

func (r *formRun) uploadResume(ctx context.Context) error {
	if r.uploaded || r.req.ResumePath == "" {
		return nil
	}
	f, err := r.sess.FindField(ctx, "resume_upload")
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	if err := r.sess.Upload(ctx, f, r.req.ResumePath); err != nil {
		return err
	}
	r.uploaded = true
	r.filled[f.Selector] = true
	r.resume = filepath.Base(r.req.ResumePath)
	r.req.Recorder.Logf("uploaded resume %s", r.resume)
	return nil
}

func (r *formRun) requireFilled(ctx context.Context) error {
	empty, err := r.sess.EmptyRequired(ctx)
	if err != nil {
		return err
	}
	if len(empty) == 0 {
		return nil
	}
	sort.Strings(empty)
	return automation.Wrap(automation.CategoryFormIncomplete, "fill form",
		errors.Newf("required fields left blank: %s", strings.Join(empty, ", ")))
}

// verify confirms the portal accepted the submission and returns the page text.
// An ID on the page is no proof on its own: forms that fail validation often
// still show a requisition or application number.
func (r *formRun) verify(ctx context.Context, submit string) (string, error) {
	text, err := r.sess.Text(ctx)
	if err != nil {
		return "", err
	}

	indicator, err := firstPresent(ctx, r.sess, r.success)
	if err != nil {
		return "", err
	}
	if indicator != "" {
		return text, nil
	}

	lower := browser.Normalize(text)
	phrases := r.successText
	if len(phrases) == 0 {
		phrases = defaultSuccessText
	}
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return text, nil
		}
	}

	// inline validation errors keep the form on screen
	still, err := r.sess.Exists(ctx, submit)
	if err != nil {
		return "", err
	}
	if !still {
		return text, nil
	}
	return "", automation.New(automation.CategoryPortalChanged, "verify submission", "submission not confirmed")
}

var confirmationRe = regexp.MustCompile(`(?i:confirmation|reference|application|tracking)[\s:]*((?i:number|id|code)\b|(?i:no\.)|#)?[\s:#]*(?i:is\s+)?([A-Z0-9][A-Z0-9-]{3,})`)

// ExtractConfirmation finds a confirmation code in page text, "" when there is none.
// Without a label such as "number" or "ID" the code must mix letters and digits,
// so years and counts in running text are skipped.
func ExtractConfirmation(text string) string {
	for _, m := range confirmationRe.FindAllStringSubmatch(text, -1) {
		code := strings.Trim(m[2], "-")
		if len(code) < 4 || !strings.ContainsAny(code, "0123456789") {
			continue
		}
		if m[1] == "" && !strings.ContainsAny(code, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			continue
		}
		return code
	}
	return ""
}

// Answer looks up a screening answer whose normalized key occurs in the label.
// The longest matching key wins.
func Answer(answers map[string]string, label string) (string, bool) {
	l := browser.Normalize(label)
	if l == "" {
		return "", false
	}
	best, bestKey := "", ""
	for k, v := range answers {
		key := browser.Normalize(strings.ReplaceAll(k, "_", " "))
		if key == "" || v == "" || !strings.Contains(l, key) {
			continue
		}
		if len(key) > len(bestKey) || (len(key) == len(bestKey) && key < bestKey) {
			best, bestKey = v, key
		}
	}
	return best, bestKey != ""
}
