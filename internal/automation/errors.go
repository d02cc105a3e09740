// Package automation holds the failure taxonomy shared by the browser driver,
// the portal strategies, the worker and the scheduler.
package automation

import (
	"context"
	"fmt"
	"net"
	"strings"
	"syscall"

	"go-openclaw-autoapply/internal/errors"
)

// Category classifies why an attempt failed
type Category string

const (
	CategoryNetwork                Category = "network"
	CategoryPortalChanged          Category = "portal_changed"
	CategoryUnsupportedFlow        Category = "unsupported_flow"
	CategoryFormIncomplete         Category = "form_incomplete"
	CategoryAuthenticationRequired Category = "authentication_required"
	CategoryTimeout                Category = "timeout"
	CategoryUnknown                Category = "unknown"
)

// maxMessageLen bounds what ends up in Attempt.ErrorMessage
const maxMessageLen = 1000

// Retryable reports the default retry decision for the category
func (c Category) Retryable() bool {
	switch c {
	case CategoryUnsupportedFlow, CategoryAuthenticationRequired:
		return false
	default:
		return true
	}
}

func (c Category) String() string { return string(c) }

// Error is the failure every browser primitive and strategy step returns.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Category, e.Op)
	default:
		return string(e.Category)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a categorized error with a plain message
func New(cat Category, op, msg string) error {
	return &Error{Category: cat, Op: op, Err: errors.New(msg)}
}

// Wrap attaches a category to err. A nil err stays nil.
func Wrap(cat Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: cat, Op: op, Err: err}
}

// Classify maps any error onto the taxonomy. Explicitly categorized errors win,
// then deadlines, then transport failures; everything else is unknown.
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "net::err_"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"):
		return CategoryNetwork
	case strings.Contains(msg, "timeout"):
		return CategoryTimeout
	}
	return CategoryUnknown
}

// Message renders err as the human readable attempt error. Never empty.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = fmt.Sprintf("%s: unexpected failure", Classify(err))
	}
	return Truncate(msg)
}

// Truncate caps msg at the stored error length
func Truncate(msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	cut := maxMessageLen - 3
	// avoid splitting a multi-byte rune
	for cut > 0 && !isRuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
