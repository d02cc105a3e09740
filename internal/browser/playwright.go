package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/config"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const describeJS = `el => ({
	kind: el.tagName.toLowerCase() === 'input' ? (el.type || 'text').toLowerCase() : el.tagName.toLowerCase(),
	required: !!el.required || el.getAttribute('aria-required') === 'true',
	visible: !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length),
	label: ((el.labels && el.labels.length && el.labels[0].innerText) || el.getAttribute('aria-label') || el.placeholder || '').trim()
})`

const questionsJS = `() => {
	const out = [];
	const seen = new Set();
	const quote = v => v.replace(/"/g, '\\"');
	for (const el of document.querySelectorAll('input, select, textarea')) {
		const type = (el.type || '').toLowerCase();
		if (['hidden', 'submit', 'button', 'image', 'reset'].includes(type)) continue;
		const visible = !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
		if (!visible && type !== 'file') continue;
		let selector = '';
		if (type === 'radio') {
			if (!el.name) continue;
			selector = 'input[name="' + quote(el.name) + '"]';
		} else if (el.id) {
			selector = '#' + CSS.escape(el.id);
		} else if (el.name) {
			selector = el.tagName.toLowerCase() + '[name="' + quote(el.name) + '"]';
		} else {
			continue;
		}
		if (seen.has(selector)) continue;
		seen.add(selector);
		let label = '';
		if (type === 'radio') {
			const fs = el.closest('fieldset');
			const legend = fs && fs.querySelector('legend');
			label = legend ? legend.innerText : '';
		}
		if (!label && el.labels && el.labels.length) label = el.labels[0].innerText;
		if (!label) label = el.getAttribute('aria-label') || el.placeholder || el.name || '';
		out.push({
			selector: selector,
			label: label.trim(),
			kind: el.tagName.toLowerCase() === 'input' ? (type || 'text') : el.tagName.toLowerCase(),
			required: !!el.required || el.getAttribute('aria-required') === 'true'
		});
	}
	return out;
}`

const emptyRequiredJS = `() => Array.from(document.querySelectorAll('input[required], textarea[required], select[required], [aria-required="true"]'))
	.filter(el => el.type !== 'hidden' && !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length || el.type === 'file'))
	.filter(el => {
		if (el.type === 'checkbox' || el.type === 'radio') {
			return !el.name || !document.querySelector('input[name="' + el.name.replace(/"/g, '\\"') + '"]:checked');
		}
		if (el.type === 'file') return !el.files || el.files.length === 0;
		return !String(el.value || '').trim();
	})
	.map(el => el.name || el.id || el.getAttribute('aria-label') || el.tagName.toLowerCase())`

// PlaywrightDriver launches one chromium process; every session gets its own browser context
type PlaywrightDriver struct {
	cfg     config.BrowserConfig
	log     *zap.SugaredLogger
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewPlaywright(cfg config.BrowserConfig, log *zap.SugaredLogger) (*PlaywrightDriver, error) {
	if cfg.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium browser: %w", err)
	}

	log.Infow("🌐 Browser launched", "headless", cfg.Headless)
	return &PlaywrightDriver{cfg: cfg, log: log, pw: pw, browser: browser}, nil
}

// Browser exposes the shared browser for rendering jobs (resume PDFs)
func (d *PlaywrightDriver) Browser() playwright.Browser {
	return d.browser
}

func (d *PlaywrightDriver) Close() error {
	var firstErr error
	if d.browser != nil {
		firstErr = d.browser.Close()
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *PlaywrightDriver) Open(ctx context.Context, portal string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(ctx, "open session", err)
	}

	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: d.cfg.ViewportWidth, Height: d.cfg.ViewportHeight},
	}
	if d.cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(d.cfg.UserAgent)
	}

	bctx, err := d.browser.NewContext(opts)
	if err != nil {
		return nil, wrapError(ctx, "open session", err)
	}
	bctx.SetDefaultTimeout(float64(d.cfg.DefaultTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(d.cfg.NavigationTimeout.Milliseconds()))

	if portal != "" {
		cookies, err := LoadCookies(CookiePath(d.cfg.CookiesDir, portal))
		switch {
		case err != nil:
			d.log.Warnw("⚠️ Could not load cookies", "portal", portal, "error", err)
		case len(cookies) > 0:
			if err := bctx.AddCookies(cookies); err != nil {
				d.log.Warnw("⚠️ Could not apply cookies", "portal", portal, "error", err)
			}
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, wrapError(ctx, "open session", err)
	}

	s := &playwrightSession{
		bctx:  bctx,
		page:  page,
		cfg:   d.cfg,
		pacer: Pacer{MinMs: d.cfg.MinDelayMs, MaxMs: d.cfg.MaxDelayMs},
	}
	page.OnCrash(func(playwright.Page) {
		s.crashed.Store(true)
	})
	return s, nil
}

type playwrightSession struct {
	bctx  playwright.BrowserContext
	page  playwright.Page
	cfg   config.BrowserConfig
	pacer Pacer

	crashed   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// timeout bounds a primitive by the configured default and the ctx deadline
func (s *playwrightSession) timeout(ctx context.Context, def time.Duration) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		if rem := time.Until(deadline); rem < d {
			d = rem
		}
	}
	if d <= 0 {
		return nil, context.DeadlineExceeded
	}
	ms := float64(d.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms), nil
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	to, err := s.timeout(ctx, s.cfg.NavigationTimeout)
	if err != nil {
		return wrapError(ctx, "navigate", err)
	}
	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   to,
	})
	if err != nil {
		return wrapError(ctx, "navigate", err)
	}
	if resp != nil {
		if err := statusError(url, resp.Status()); err != nil {
			return err
		}
	}
	if err := humanScroll(ctx, s.page, s.pacer); err != nil {
		return wrapError(ctx, "navigate", err)
	}
	return nil
}

type fieldInfo struct {
	kind     string
	label    string
	required bool
	visible  bool
}

func (s *playwrightSession) describe(loc playwright.Locator) (fieldInfo, error) {
	raw, err := loc.Evaluate(describeJS, nil)
	if err != nil {
		return fieldInfo{}, err
	}
	m, _ := raw.(map[string]interface{})
	info := fieldInfo{}
	info.kind, _ = m["kind"].(string)
	info.label, _ = m["label"].(string)
	info.required, _ = m["required"].(bool)
	info.visible, _ = m["visible"].(bool)
	return info, nil
}

func (s *playwrightSession) FindField(ctx context.Context, hint string) (*Field, error) {
	if _, err := s.timeout(ctx, s.cfg.DefaultTimeout); err != nil {
		return nil, wrapError(ctx, "find field "+hint, err)
	}

	selectors, known := FieldSelectors[hint]
	if !known {
		selectors = []string{hint}
	}

	for _, sel := range selectors {
		n, err := s.page.Locator(sel).Count()
		if err != nil {
			return nil, wrapError(ctx, "find field "+hint, err)
		}
		if n == 0 {
			continue
		}
		info, err := s.describe(s.page.Locator(sel).First())
		if err != nil {
			return nil, wrapError(ctx, "find field "+hint, err)
		}
		if !info.visible && info.kind != "file" {
			continue
		}
		return &Field{Hint: hint, Selector: sel, Label: info.label, Kind: info.kind, Required: info.required}, nil
	}

	if !known {
		return nil, nil
	}

	// fall back to visible label text
	questions, err := s.Questions(ctx)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		if MatchLabel(q.Label) == hint {
			q.Hint = hint
			return &q, nil
		}
	}
	return nil, nil
}

func (s *playwrightSession) Fill(ctx context.Context, f *Field, value string) error {
	if f == nil {
		return automation.New(automation.CategoryPortalChanged, "fill", "no field")
	}
	op := "fill " + f.Hint
	to, err := s.timeout(ctx, s.cfg.DefaultTimeout)
	if err != nil {
		return wrapError(ctx, op, err)
	}

	loc := s.page.Locator(f.Selector).First()
	switch f.Kind {
	case "select":
		_, err = loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{value}}, playwright.LocatorSelectOptionOptions{Timeout: to})
		if err != nil {
			_, err = loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}}, playwright.LocatorSelectOptionOptions{Timeout: to})
		}
	case "radio":
		option := fmt.Sprintf(`%s[value="%s" i]`, f.Selector, strings.ReplaceAll(value, `"`, `\"`))
		err = s.page.Locator(option).First().Check(playwright.LocatorCheckOptions{Timeout: to})
	case "checkbox":
		if isYes(value) {
			err = loc.Check(playwright.LocatorCheckOptions{Timeout: to})
		} else {
			err = loc.Uncheck(playwright.LocatorUncheckOptions{Timeout: to})
		}
	default:
		err = loc.Fill(value, playwright.LocatorFillOptions{Timeout: to})
	}
	if err != nil {
		return wrapError(ctx, op, err)
	}
	return s.pace(ctx, op)
}

func (s *playwrightSession) Upload(ctx context.Context, f *Field, path string) error {
	if f == nil {
		return automation.New(automation.CategoryPortalChanged, "upload", "no field")
	}
	if _, err := os.Stat(path); err != nil {
		return automation.Wrap(automation.CategoryFormIncomplete, "upload resume", err)
	}
	to, err := s.timeout(ctx, s.cfg.DefaultTimeout)
	if err != nil {
		return wrapError(ctx, "upload", err)
	}
	if err := s.page.Locator(f.Selector).First().SetInputFiles(path, playwright.LocatorSetInputFilesOptions{Timeout: to}); err != nil {
		return wrapError(ctx, "upload", err)
	}
	return s.pace(ctx, "upload")
}

func (s *playwrightSession) Click(ctx context.Context, selector string) error {
	op := "click " + selector
	to, err := s.timeout(ctx, s.cfg.DefaultTimeout)
	if err != nil {
		return wrapError(ctx, op, err)
	}
	n, err := s.page.Locator(selector).Count()
	if err != nil {
		return wrapError(ctx, op, err)
	}
	if n == 0 {
		return notFound("click", selector)
	}
	if err := s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: to}); err != nil {
		return wrapError(ctx, op, err)
	}
	// clicks often navigate or open a modal step
	_ = s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: to,
	})
	return s.pace(ctx, op)
}

func (s *playwrightSession) Exists(ctx context.Context, selector string) (bool, error) {
	if _, err := s.timeout(ctx, s.cfg.DefaultTimeout); err != nil {
		return false, wrapError(ctx, "exists "+selector, err)
	}
	loc := s.page.Locator(selector)
	n, err := loc.Count()
	if err != nil {
		return false, wrapError(ctx, "exists "+selector, err)
	}
	if n == 0 {
		return false, nil
	}
	visible, err := loc.First().IsVisible()
	if err != nil {
		return false, wrapError(ctx, "exists "+selector, err)
	}
	return visible, nil
}

func (s *playwrightSession) Questions(ctx context.Context) ([]Field, error) {
	if _, err := s.timeout(ctx, s.cfg.DefaultTimeout); err != nil {
		return nil, wrapError(ctx, "list questions", err)
	}
	raw, err := s.page.Evaluate(questionsJS)
	if err != nil {
		return nil, wrapError(ctx, "list questions", err)
	}
	items, _ := raw.([]interface{})
	fields := make([]Field, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		f := Field{}
		f.Selector, _ = m["selector"].(string)
		f.Label, _ = m["label"].(string)
		f.Kind, _ = m["kind"].(string)
		f.Required, _ = m["required"].(bool)
		if f.Selector != "" {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func (s *playwrightSession) EmptyRequired(ctx context.Context) ([]string, error) {
	if _, err := s.timeout(ctx, s.cfg.DefaultTimeout); err != nil {
		return nil, wrapError(ctx, "check required fields", err)
	}
	raw, err := s.page.Evaluate(emptyRequiredJS)
	if err != nil {
		return nil, wrapError(ctx, "check required fields", err)
	}
	items, _ := raw.([]interface{})
	names := make([]string, 0, len(items))
	for _, item := range items {
		if name, ok := item.(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *playwrightSession) Text(ctx context.Context) (string, error) {
	to, err := s.timeout(ctx, s.cfg.DefaultTimeout)
	if err != nil {
		return "", wrapError(ctx, "read page text", err)
	}
	text, err := s.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{Timeout: to})
	if err != nil {
		return "", wrapError(ctx, "read page text", err)
	}
	return text, nil
}

func (s *playwrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	to, err := s.timeout(ctx, s.cfg.DefaultTimeout)
	if err != nil {
		return nil, wrapError(ctx, "screenshot", err)
	}
	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  to,
	})
	if err != nil {
		return nil, wrapError(ctx, "screenshot", err)
	}
	return data, nil
}

func (s *playwrightSession) CurrentURL() string {
	return s.page.URL()
}

func (s *playwrightSession) Alive() bool {
	return !s.closed.Load() && !s.crashed.Load() && !s.page.IsClosed()
}

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.bctx.Close()
	})
	return s.closeErr
}

func (s *playwrightSession) pace(ctx context.Context, op string) error {
	if err := s.pacer.Wait(ctx); err != nil {
		return wrapError(ctx, op, err)
	}
	return nil
}

func isYes(v string) bool {
	switch Normalize(v) {
	case "yes", "true", "1", "y", "on":
		return true
	}
	return false
}
