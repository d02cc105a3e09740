package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/errors"

	"github.com/playwright-community/playwright-go"
)

// wrapError converts a playwright failure into the automation taxonomy
func wrapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return automation.Wrap(automation.Classify(ctx.Err()), op, errors.WithSecondaryError(ctx.Err(), err))
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return automation.Wrap(automation.CategoryTimeout, op, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "net::err_"), strings.Contains(msg, "ns_error_"):
		return automation.Wrap(automation.CategoryNetwork, op, err)
	case strings.Contains(msg, "target closed"), strings.Contains(msg, "has been closed"), strings.Contains(msg, "crash"):
		return automation.Wrap(automation.CategoryUnknown, op, fmt.Errorf("browser session lost: %w", err))
	}
	return automation.Wrap(automation.Classify(err), op, err)
}

// statusError maps a navigation response status onto a category, nil for success
func statusError(url string, status int) error {
	switch {
	case status >= http.StatusInternalServerError:
		return automation.New(automation.CategoryNetwork, "navigate", fmt.Sprintf("%s returned HTTP %d", url, status))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return automation.New(automation.CategoryAuthenticationRequired, "navigate", fmt.Sprintf("%s returned HTTP %d", url, status))
	case status >= http.StatusBadRequest:
		return automation.New(automation.CategoryPortalChanged, "navigate", fmt.Sprintf("%s returned HTTP %d", url, status))
	}
	return nil
}

// notFound is the error for a selector that matched nothing
func notFound(op, selector string) error {
	return automation.New(automation.CategoryPortalChanged, op, fmt.Sprintf("element not found: %s", selector))
}
