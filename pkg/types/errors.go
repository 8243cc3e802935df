package types

import "fmt"

// ResolutionError reports an invalid or ambiguous target specification.
type ResolutionError struct {
	Spec   string
	Reason string
}

func (e *ResolutionError) Error() string {
	if e.Spec == "" {
		return "target resolution failed: " + e.Reason
	}
	return fmt.Sprintf("invalid image specification %q: %s", e.Spec, e.Reason)
}

// ValidationError reports a malformed record rejected at assembly time.
type ValidationError struct {
	Source string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %d from %s: %s", e.Index, e.Source, e.Reason)
}

// ExtractionFailure reports that one target could not be inventoried.
type ExtractionFailure struct {
	Target Target
	Err    error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Target, e.Err)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }
