package scheduler

import "strings"

// ErrorClass labels a query failure; the label is persisted verbatim as
// the query state's error code.
type ErrorClass string

const (
	ClassFatal     ErrorClass = "FATAL"
	ClassRateLimit ErrorClass = "RATE_LIMIT"
	ClassTransient ErrorClass = "TRANSIENT"
)

// _maxErrorMessageLen bounds the message persisted with a query error.
const _maxErrorMessageLen = 500

var (
	_fatalMarkers = []string{
		"authentication",
		"unauthorized",
		"credential",
		"invalid config",
		"missing config",
	}
	_rateLimitMarkers = []string{
		"429",
		"rate limit",
		"rate-limit",
		"too many requests",
	}
)

// Classify maps an error message onto its scheduling class. Matching is
// case-insensitive substring search; FATAL markers take precedence over
// RATE_LIMIT ones, and anything unrecognized (timeouts, network errors,
// 5xx responses included) is TRANSIENT.
func Classify(err error) ErrorClass {
	msg := strings.ToLower(err.Error())
	for _, marker := range _fatalMarkers {
		if strings.Contains(msg, marker) {
			return ClassFatal
		}
	}
	for _, marker := range _rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return ClassRateLimit
		}
	}
	return ClassTransient
}

// Outcome is the scheduling decision for one query attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomePause
	OutcomeFatal
)

func outcomeForClass(class ErrorClass) Outcome {
	switch class {
	case ClassFatal:
		return OutcomeFatal
	case ClassRateLimit:
		return OutcomePause
	default:
		return OutcomeRetryable
	}
}

func truncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= _maxErrorMessageLen {
		return msg
	}
	return string(runes[:_maxErrorMessageLen])
}
