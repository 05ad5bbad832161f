package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidRecordID   = errors.New("invalid record ID")
	ErrInvalidSimilarity = errors.New("similarity must be between 0 and 1")
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrMissingReference  = errors.New("fiche reference is required")
	ErrInvalidChapter    = errors.New("chapter must be two digits")
	ErrInvalidSpan       = errors.New("span end precedes start")
)
