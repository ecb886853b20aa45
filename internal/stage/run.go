package stage

import (
	"context"
	"fmt"
	"runtime/debug"

	"blurchain/internal/payload"
	"blurchain/internal/services"
)

// Run invokes h.Execute and converts a panic into a processing failure so a
// faulty worker never takes the scheduler down with it.
func Run(ctx context.Context, kind Kind, h Handler, input payload.Payload) (output payload.Payload, err error) {
	if h == nil {
		return payload.Payload{}, services.Wrap(services.ErrProcessing, string(kind), "resolve handler", "no worker registered", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			output = payload.Payload{}
			err = services.Wrap(
				services.ErrProcessing, string(kind), "execute",
				"worker panicked",
				fmt.Errorf("%v\n%s", r, debug.Stack()),
			)
		}
	}()
	return h.Execute(ctx, input)
}
