package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotReviewable   = errors.New("draft is no longer under review")
	ErrPriceRequired   = errors.New("price must be confirmed before publishing")
	ErrVersionConflict = errors.New("draft was modified by someone else, reload and retry")
)

type FetchReason string

const (
	FetchBlocked         FetchReason = "blocked"
	FetchTimeout         FetchReason = "timeout"
	FetchInvalidResponse FetchReason = "invalid-response"
)

// FetchError is returned when every fetch strategy failed for a URL.
type FetchError struct {
	Reason   FetchReason
	URL      string
	Attempts []FetchAttempt
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("could not fetch %s (%s) after %d attempts; the site may block automated access, upload the product images manually instead",
		e.URL, e.Reason, len(e.Attempts))
}

// SparseContentError means the cleaned page was too short to extract from.
type SparseContentError struct {
	URL    string
	Length int
}

func (e *SparseContentError) Error() string {
	return fmt.Sprintf("page %s has too little content after cleaning (%d characters)", e.URL, e.Length)
}

// ExtractionError is a failed or unparsable model call.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "extraction failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (check that the API key is valid, the account has quota left and the model API is reachable)"
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PhaseError aborts the draft pipeline and names the failing phase.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Hint returns the next step an admin should take.
func (e *PhaseError) Hint() string {
	var fe *FetchError
	var xe *ExtractionError
	switch {
	case errors.As(e.Err, &fe):
		return "Upload product images manually or paste the product text."
	case errors.As(e.Err, &xe):
		return "Check the API key, remaining quota and network connectivity, then retry."
	case e.Phase == PhaseDrafted:
		return "The draft could not be saved; check the database connection and retry."
	default:
		return "Retry the extraction or enter the product manually."
	}
}
