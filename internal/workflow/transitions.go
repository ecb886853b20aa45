package workflow

import (
	"context"
	"fmt"
	"time"

	"blurchain/internal/logging"
	"blurchain/internal/payload"
	"blurchain/internal/services"
	"blurchain/internal/store"
)

// transition moves stage index of r to state and publishes the change. It
// returns false when the stage had already reached a terminal state.
func (s *Scheduler) transition(r *run, index int, state State, out payload.Payload, stageErr error, detail string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.transitionLocked(r, index, state, out, stageErr, detail)
}

func (s *Scheduler) transitionLocked(r *run, index int, state State, out payload.Payload, stageErr error, detail string) bool {
	if index < 0 || index >= len(r.states) || r.states[index].IsFinished() {
		return false
	}
	r.states[index] = state

	spec := r.def.Stages[index]
	evt := StateEvent{
		RunID:      r.id,
		RunUUID:    r.uuid,
		Name:       r.name,
		StageIndex: index,
		StageCount: len(r.states),
		StageKind:  spec.Kind,
		Tags:       append([]string(nil), spec.Tags...),
		State:      state,
		Output:     out,
		Detail:     detail,
	}
	if stageErr != nil {
		evt.Error = stageErr.Error()
		evt.ErrorKind = services.KindOf(stageErr)
	}
	s.emit(evt)
	s.persistStage(r, evt)
	return true
}

// emit stamps the event and hands it to the hub. Holding pubMu across the
// publication keeps hub order identical to sequence order.
func (s *Scheduler) emit(evt StateEvent) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.sequence++
	evt.Sequence = s.sequence
	evt.Timestamp = time.Now().UTC()
	for _, tag := range evt.Tags {
		s.hub.Publish(tag, evt)
	}
	s.hub.Publish(PipelineTopic(evt.Name), evt)
}

// cancelRemaining marks every unfinished stage of r cancelled and closes the
// run record.
func (s *Scheduler) cancelRemaining(r *run, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	for i := range r.states {
		s.transitionLocked(r, i, StateCancelled, payload.Payload{}, nil, reason)
	}
	r.finished = true
	s.persistRun(r, StateCancelled, "", reason)
}

// failRemaining marks stage index failed with stageErr and every later stage
// failed without running it.
func (s *Scheduler) failRemaining(r *run, index int, stageErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	s.transitionLocked(r, index, StateFailed, payload.Payload{}, stageErr, "")
	failedKind := r.def.Stages[index].Kind
	for i := index + 1; i < len(r.states); i++ {
		blocked := services.Wrap(services.Marker(stageErr), string(r.def.Stages[i].Kind), "",
			fmt.Sprintf("not run: %s stage failed", failedKind), nil)
		s.transitionLocked(r, i, StateFailed, payload.Payload{}, blocked, "")
	}
	r.finished = true
	s.persistRun(r, StateFailed, "", stageErr.Error())
}

// complete closes a run whose stages all succeeded. It returns false when the
// run was already closed by a cancellation.
func (s *Scheduler) complete(r *run, out payload.Payload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	r.finished = true
	locator, _ := out.ImageURI()
	s.persistRun(r, StateSucceeded, locator, "")
	return true
}

func (s *Scheduler) persistStage(r *run, evt StateEvent) {
	if s.store == nil {
		return
	}
	upd := store.StageUpdate{
		State:        string(evt.State),
		ErrorKind:    string(evt.ErrorKind),
		ErrorMessage: evt.Error,
	}
	now := evt.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	switch {
	case evt.State == StateRunning:
		upd.StartedAt = &now
	case evt.State.IsFinished():
		upd.FinishedAt = &now
	}
	if evt.State == StateSucceeded {
		encoded, err := payload.Marshal(evt.Output)
		if err == nil {
			upd.OutputPayload = encoded
		}
	}
	if err := s.store.UpdateStage(context.Background(), int64(r.id), evt.StageIndex, upd); err != nil {
		s.warnStoreFailure(r, "failed to record stage state", err)
	}
}

func (s *Scheduler) persistRun(r *run, state State, outputLocator, message string) {
	if s.store == nil {
		return
	}
	if err := s.store.FinishRun(context.Background(), int64(r.id), string(state), outputLocator, message); err != nil {
		s.warnStoreFailure(r, "failed to record run result", err)
	}
}

func (s *Scheduler) warnStoreFailure(r *run, msg string, err error) {
	logging.WarnWithContext(logging.WithContext(r.ctx, s.logger), msg, "store_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check run database access"),
		logging.String(logging.FieldImpact, "history may be incomplete"),
	)
}
