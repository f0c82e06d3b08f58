package domain

import "errors"

var (
	ErrNoEntries        = errors.New("feed has no entries")
	ErrMissingLink      = errors.New("feed entry has no link")
	ErrNoRefinement     = errors.New("no usable refinement result")
	ErrTimeBudget       = errors.New("run time budget exhausted")
	ErrInvalidArticle   = errors.New("article is missing required fields")
	ErrDuplicate        = errors.New("article already stored for this date")
	ErrNotRecoverable   = errors.New("no structured data recoverable")
	ErrProviderDisabled = errors.New("provider has no credential")
)
