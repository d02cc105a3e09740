// Package browser owns browser session lifecycles and exposes the primitives
// portal strategies drive a form with.
package browser

import (
	"context"
)

// Field is a handle to one form control found on the current page
type Field struct {
	Hint     string `json:"hint"`
	Selector string `json:"selector"`
	Label    string `json:"label,omitempty"`
	// input type (text, email, tel, file, checkbox, radio) or tag (select, textarea)
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
}

// Session is one exclusively owned browser page. Every primitive returns an
// *automation.Error on timeout, missing element or navigation failure.
// Close must be called exactly once; extra calls are no-ops.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// FindField returns nil, nil when no control confidently matches hint
	FindField(ctx context.Context, hint string) (*Field, error)
	Fill(ctx context.Context, f *Field, value string) error
	Upload(ctx context.Context, f *Field, path string) error
	Click(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	// Questions lists visible labeled controls of the current form
	Questions(ctx context.Context) ([]Field, error)
	// EmptyRequired names required controls that are still blank
	EmptyRequired(ctx context.Context) ([]string, error)
	Text(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	CurrentURL() string
	Alive() bool
	Close() error
}

// Driver opens sessions. portal selects which login cookies to load.
type Driver interface {
	Open(ctx context.Context, portal string) (Session, error)
}
