// Package errs classifies failures by kind rather than by concrete type,
// per spec §7's error taxonomy. Components compare against these sentinels
// with errors.Is; nothing propagates across component boundaries except as
// a logged, classified event.
package errs

import "errors"

var (
	// ErrTransientIO covers socket/file IO failures: log and retry, never propagate.
	ErrTransientIO = errors.New("transient io failure")

	// ErrMalformedInput covers bad JSON / missing fields: discard, count, continue.
	ErrMalformedInput = errors.New("malformed input")

	// ErrContractViolation covers internally-inconsistent results (missing
	// score breakdown, negative pips, invalid direction): drop and log ERROR.
	ErrContractViolation = errors.New("contract violation")

	// ErrStateConflict covers idempotency hits (milestone already fired):
	// suppress silently, no log noise.
	ErrStateConflict = errors.New("state conflict")

	// ErrSafetyViolation covers Sentry violations: record, alert, maybe auto-disable.
	ErrSafetyViolation = errors.New("safety violation")

	// ErrResourceExhaustion covers queue/ring overflow: drop oldest, log WARN.
	ErrResourceExhaustion = errors.New("resource exhaustion")

	// ErrFeedUnavailable is the sole fatal condition at startup: failure to
	// bind the outbound publisher.
	ErrFeedUnavailable = errors.New("feed unavailable")
)
