package workflow

import (
	"time"

	"blurchain/internal/payload"
	"blurchain/internal/services"
	"blurchain/internal/stage"
	"blurchain/internal/store"
)

// State is the lifecycle position of one stage.
type State string

const (
	StateEnqueued  State = store.StateEnqueued
	StateRunning   State = store.StateRunning
	StateSucceeded State = store.StateSucceeded
	StateFailed    State = store.StateFailed
	StateCancelled State = store.StateCancelled
)

// IsFinished reports whether the state is terminal.
func (s State) IsFinished() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// StateEvent describes one stage state change.
type StateEvent struct {
	RunID      uint64
	RunUUID    string
	Name       string
	StageIndex int
	StageCount int
	StageKind  stage.Kind
	Tags       []string
	State      State
	Output     payload.Payload
	Error      string
	ErrorKind  services.Kind
	// Detail carries non-error context such as why a stage is still waiting.
	Detail    string
	Sequence  uint64
	Timestamp time.Time
}

// OutputLocator returns the image locator carried by the event's output.
func (e StateEvent) OutputLocator() string {
	v, _ := e.Output.ImageURI()
	return v
}

// IsLastStage reports whether the event belongs to the final stage of its run.
func (e StateEvent) IsLastStage() bool {
	return e.StageCount > 0 && e.StageIndex == e.StageCount-1
}

// PipelineTopic is the hub tag that receives every event of the named pipeline.
func PipelineTopic(name string) string {
	return "pipeline:" + name
}
