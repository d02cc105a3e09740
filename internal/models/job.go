package models

import (
	"time"
)

// Job is the read-only job reference the worker consumes. The discovery side owns it.
type Job struct {
	ID          string `json:"id" yaml:"id"`
	Portal      string `json:"portal" yaml:"portal"`
	ExternalID  string `json:"external_id,omitempty" yaml:"external_id"`
	Title       string `json:"title" yaml:"title"`
	Company     string `json:"company" yaml:"company"`
	Location    string `json:"location,omitempty" yaml:"location"`
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description"`
	// hints from discovery, e.g. "cover_letter" when the listing asks for one
	RequiredFields []string  `json:"required_fields,omitempty" yaml:"required_fields"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
}
