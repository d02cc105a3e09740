// Package browsertest provides a scriptable in-memory browser session for
// strategy and worker tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/browser"
)

// Session fakes one page. Fields and selectors are scripted up front; everything the
// code under test does to the page is recorded. ClickEffects run with the session
// locked and must mutate the struct directly instead of calling its methods.
type Session struct {
	mu sync.Mutex

	// Fields are returned by FindField, keyed by hint
	Fields map[string]*browser.Field
	// Present marks selectors that Exists reports and Click accepts
	Present map[string]bool
	// ClickEffects mutate the page after a selector is clicked
	ClickEffects map[string]func(*Session)
	// Redirects maps a navigated URL to the URL the page ends up on
	Redirects    map[string]string
	PageText     string
	URL          string
	QuestionList []browser.Field
	// Required selectors are reported by EmptyRequired until filled or uploaded
	Required []string
	// FailOn makes the named primitive (navigate, find, fill, upload, click, screenshot, text) fail
	FailOn map[string]error
	Dead   bool

	Navigations []string
	Filled      map[string]string
	Uploaded    map[string]string
	Clicks      []string
	Shots       int
	CloseCount  int
}

func NewSession() *Session {
	return &Session{
		Fields:       map[string]*browser.Field{},
		Present:      map[string]bool{},
		ClickEffects: map[string]func(*Session){},
		Redirects:    map[string]string{},
		FailOn:       map[string]error{},
		Filled:       map[string]string{},
		Uploaded:     map[string]string{},
	}
}

// AddField scripts a control for hint at selector
func (s *Session) AddField(hint, selector, kind string, required bool) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fields[hint] = &browser.Field{Hint: hint, Selector: selector, Kind: kind, Required: required}
	s.Present[selector] = true
	if required {
		s.Required = append(s.Required, selector)
	}
	return s
}

// OnClick scripts the page change caused by clicking selector, making it present
func (s *Session) OnClick(selector string, effect func(*Session)) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Present[selector] = true
	if effect != nil {
		s.ClickEffects[selector] = effect
	}
	return s
}

func (s *Session) fail(op string) error {
	if s.Dead {
		return automation.New(automation.CategoryUnknown, op, "browser session lost")
	}
	if err, ok := s.FailOn[op]; ok {
		return err
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return automation.Wrap(automation.CategoryTimeout, "navigate", err)
	}
	if err := s.fail("navigate"); err != nil {
		return err
	}
	s.Navigations = append(s.Navigations, url)
	if to, ok := s.Redirects[url]; ok {
		s.URL = to
	} else {
		s.URL = url
	}
	return nil
}

func (s *Session) FindField(ctx context.Context, hint string) (*browser.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("find"); err != nil {
		return nil, err
	}
	f, ok := s.Fields[hint]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *Session) Fill(ctx context.Context, f *browser.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return automation.Wrap(automation.CategoryTimeout, "fill", err)
	}
	if err := s.fail("fill"); err != nil {
		return err
	}
	s.Filled[f.Selector] = value
	return nil
}

func (s *Session) Upload(ctx context.Context, f *browser.Field, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("upload"); err != nil {
		return err
	}
	s.Uploaded[f.Selector] = path
	return nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("click"); err != nil {
		return err
	}
	if !s.Present[selector] {
		return automation.New(automation.CategoryPortalChanged, "click", fmt.Sprintf("element not found: %s", selector))
	}
	s.Clicks = append(s.Clicks, selector)
	if effect, ok := s.ClickEffects[selector]; ok {
		effect(s)
	}
	return nil
}

func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("exists"); err != nil {
		return false, err
	}
	return s.Present[selector], nil
}

func (s *Session) Questions(ctx context.Context) ([]browser.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("questions"); err != nil {
		return nil, err
	}
	out := make([]browser.Field, len(s.QuestionList))
	copy(out, s.QuestionList)
	return out, nil
}

func (s *Session) EmptyRequired(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("required"); err != nil {
		return nil, err
	}
	var empty []string
	for _, sel := range s.Required {
		if _, ok := s.Filled[sel]; ok {
			continue
		}
		if _, ok := s.Uploaded[sel]; ok {
			continue
		}
		empty = append(empty, sel)
	}
	return empty, nil
}

func (s *Session) Text(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("text"); err != nil {
		return "", err
	}
	return s.PageText, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("screenshot"); err != nil {
		return nil, err
	}
	s.Shots++
	return []byte(fmt.Sprintf("png-%d", s.Shots)), nil
}

func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.URL
}

func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Dead && s.CloseCount == 0
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// Closes reports how many times Close was called
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCount
}

// Driver hands out sessions built by New and remembers them
type Driver struct {
	mu sync.Mutex

	New     func() *Session
	OpenErr error

	Sessions []*Session
	Portals  []string
}

func (d *Driver) Open(ctx context.Context, portal string) (browser.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Portals = append(d.Portals, portal)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := NewSession()
	if d.New != nil {
		s = d.New()
	}
	d.Sessions = append(d.Sessions, s)
	return s, nil
}

// Last returns the most recently opened session
func (d *Driver) Last() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Sessions) == 0 {
		return nil
	}
	return d.Sessions[len(d.Sessions)-1]
}

var (
	_ browser.Session = (*Session)(nil)
	_ browser.Driver  = (*Driver)(nil)
)
