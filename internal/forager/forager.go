// Package forager is the service layer tying the checklist ledger, agent
// runtime, and session execution into the batch orchestration loop.
package forager

import (
	"context"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/colonyops/forager/internal/core/session"
)

// SessionRunner executes one agent session end-to-end. session.Runner is
// the production implementation; tests substitute stubs.
type SessionRunner interface {
	Run(ctx context.Context, inv agent.Invocation, prompt string) (session.Result, error)
}
