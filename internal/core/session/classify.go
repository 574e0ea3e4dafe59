package session

import "strings"

// Outcome classifies the terminal state of one agent attempt.
// ENUM(success, rate_limited, permission_denied, frozen, other_failure).
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeRateLimited      Outcome = "rate_limited"
	OutcomePermissionDenied Outcome = "permission_denied"
	OutcomeFrozen           Outcome = "frozen"
	OutcomeOtherFailure     Outcome = "other_failure"
)

// Retryable reports whether the outcome qualifies for another attempt.
// OtherFailure is deliberately terminal: an unrecognized non-zero exit
// propagates immediately instead of burning attempts.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeRateLimited, OutcomePermissionDenied, OutcomeFrozen:
		return true
	default:
		return false
	}
}

// Agents often print a user-facing quota message and exit cleanly, so the
// output text is consulted independent of the exit code.
var rateLimitPatterns = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"429",
	"quota",
	"plan limit",
	"too many requests",
}

var permissionPatterns = []string{
	"permission denied",
	"access denied",
	"access is denied",
	"eacces",
	"eperm",
	"operation not permitted",
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Classify resolves the outcome of one attempt. Precedence: a freeze kill
// overrides everything; then rate-limit phrasing, then permission-denial
// phrasing (both case-insensitive, regardless of exit code), then the
// exit code alone.
func Classify(frozen bool, exitCode int, output string) Outcome {
	if frozen {
		return OutcomeFrozen
	}

	lower := strings.ToLower(output)
	switch {
	case containsAny(lower, rateLimitPatterns):
		return OutcomeRateLimited
	case containsAny(lower, permissionPatterns):
		return OutcomePermissionDenied
	case exitCode != 0:
		return OutcomeOtherFailure
	default:
		return OutcomeSuccess
	}
}
