package services

import (
	"errors"
	"fmt"
)

// Texts shown to the end user. The UI renders them verbatim, so they must not
// change shape.
const (
	ConfigurationMissingText = "SYSTEM ERROR: API CONFIGURATION MISSING"
	CriticalFailureText      = "SYSTEM ERROR: CRITICAL FAILURE\nCONTACT SYSTEM ADMINISTRATOR"
	ProcessingFailureText    = "\nSYSTEM ERROR: PROCESSING FAILURE\nPLEASE RETRY OPERATION"
)

// ErrConfigurationMissing is returned by Relay.Open when no provider
// credential is configured. The provider is not contacted.
var ErrConfigurationMissing = errors.New("provider credential not configured")

// PreStreamError reports a failure that happened before any fragment was
// forwarded, while the response could still carry an error status.
type PreStreamError struct {
	Op  string
	Err error
}

func (e *PreStreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PreStreamError) Unwrap() error {
	return e.Err
}

// FailureText maps an error returned by Relay.Open onto the text the caller
// should receive.
func FailureText(err error) string {
	if errors.Is(err, ErrConfigurationMissing) {
		return ConfigurationMissingText
	}
	return CriticalFailureText
}

// Outcome describes how a forwarded stream ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeDegraded
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
