package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Pacer spaces interactions by a random human-like delay. Zero bounds disable it.
type Pacer struct {
	MinMs int
	MaxMs int
}

// Wait sleeps a random duration between MinMs and MaxMs, returning early on ctx
func (p Pacer) Wait(ctx context.Context) error {
	if p.MaxMs <= 0 || p.MaxMs < p.MinMs {
		return ctx.Err()
	}
	d := time.Duration(rand.Intn(p.MaxMs-p.MinMs+1)+p.MinMs) * time.Millisecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// humanScroll scrolls down a few steps and back up a bit, like someone reading the posting
func humanScroll(ctx context.Context, page playwright.Page, pacer Pacer) error {
	for i := 0; i < 3; i++ {
		if _, err := page.Evaluate("window.scrollBy(0, window.innerHeight / 2)"); err != nil {
			return err
		}
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
	}
	_, err := page.Evaluate("window.scrollBy(0, -200)")
	return err
}
