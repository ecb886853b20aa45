package stage

import (
	"context"

	"blurchain/internal/payload"
)

// Handler describes the contract the scheduler needs from each stage worker.
// Execute receives the resolved input payload and returns the output payload
// handed to the next stage. Handlers are shared across runs and must derive
// per-run state from the context.
type Handler interface {
	Execute(context.Context, payload.Payload) (payload.Payload, error)
	HealthCheck(context.Context) Health
}
