package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		frozen   bool
		exitCode int
		output   string
		want     Outcome
	}{
		{"clean exit", false, 0, "Task complete!", OutcomeSuccess},
		{"nonzero exit", false, 1, "something broke", OutcomeOtherFailure},
		{"rate limit text, zero exit", false, 0, "HTTP 429: plan limit reached", OutcomeRateLimited},
		{"rate limit text, nonzero exit", false, 1, "Rate Limit exceeded", OutcomeRateLimited},
		{"quota phrasing", false, 0, "monthly quota exhausted", OutcomeRateLimited},
		{"permission text, zero exit", false, 0, "EACCES: permission denied", OutcomePermissionDenied},
		{"permission text, nonzero exit", false, 13, "Access Denied", OutcomePermissionDenied},
		{"rate limit beats permission", false, 1, "permission denied after rate limit", OutcomeRateLimited},
		{"frozen beats everything", true, 0, "rate limit permission denied", OutcomeFrozen},
		{"frozen with kill exit", true, -1, "", OutcomeFrozen},
		{"case insensitive", false, 0, "TOO MANY REQUESTS", OutcomeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.frozen, tt.exitCode, tt.output))
		})
	}
}

func TestOutcome_Retryable(t *testing.T) {
	assert.True(t, OutcomeRateLimited.Retryable())
	assert.True(t, OutcomePermissionDenied.Retryable())
	assert.True(t, OutcomeFrozen.Retryable())
	assert.False(t, OutcomeSuccess.Retryable())
	assert.False(t, OutcomeOtherFailure.Retryable())
}
