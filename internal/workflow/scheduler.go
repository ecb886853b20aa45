package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"blurchain/internal/constraint"
	"blurchain/internal/logging"
	"blurchain/internal/notifications"
	"blurchain/internal/payload"
	"blurchain/internal/pipeline"
	"blurchain/internal/stage"
	"blurchain/internal/statehub"
	"blurchain/internal/store"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("scheduler closed")

const defaultPollInterval = 5 * time.Second

// Options configures a Scheduler. Handlers is required; everything else has a
// usable default.
type Options struct {
	Handlers     map[stage.Kind]stage.Handler
	Store        *store.Store
	Hub          *statehub.Hub[StateEvent]
	Checker      constraint.Checker
	Notifier     notifications.Service
	Logger       *slog.Logger
	PollInterval time.Duration
}

// Scheduler executes pipeline definitions under unique names.
type Scheduler struct {
	handlers     map[stage.Kind]stage.Handler
	store        *store.Store
	hub          *statehub.Hub[StateEvent]
	checker      constraint.Checker
	notifier     notifications.Service
	logger       *slog.Logger
	pollInterval time.Duration

	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	runs    map[string]*run
	localID uint64
	closed  bool

	pubMu    sync.Mutex
	sequence uint64
}

// RunRef identifies an enqueued run.
type RunRef struct {
	ID     uint64
	UUID   string
	Name   string
	Stages int
	done   <-chan struct{}
}

// Done is closed when the run's goroutine has exited.
func (r RunRef) Done() <-chan struct{} { return r.done }

// NewScheduler constructs a scheduler.
func NewScheduler(opts Options) (*Scheduler, error) {
	if len(opts.Handlers) == 0 {
		return nil, errors.New("scheduler requires stage handlers")
	}
	handlers := make(map[stage.Kind]stage.Handler, len(opts.Handlers))
	for kind, h := range opts.Handlers {
		if h == nil {
			return nil, fmt.Errorf("handler for %s is nil", kind)
		}
		handlers[kind] = h
	}
	hub := opts.Hub
	if hub == nil {
		hub = statehub.New[StateEvent](0)
	}
	checker := opts.Checker
	if checker == nil {
		checker = constraint.NewBatteryChecker()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	root, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		handlers:     handlers,
		store:        opts.Store,
		hub:          hub,
		checker:      checker,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(opts.Logger, "scheduler"),
		pollInterval: poll,
		root:         root,
		rootCancel:   cancel,
		runs:         make(map[string]*run),
	}, nil
}

// Enqueue starts def under name, replacing any live run with that name. The
// replaced run's unfinished stages are published as cancelled before the new
// run's enqueued events, and the new run does not execute until the replaced
// run's goroutine has returned.
func (s *Scheduler) Enqueue(ctx context.Context, name string, def pipeline.Definition) (RunRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RunRef{}, errors.New("pipeline name is required")
	}
	if err := def.Validate(); err != nil {
		return RunRef{}, err
	}
	for _, spec := range def.Stages {
		if _, ok := s.handlers[spec.Kind]; !ok {
			return RunRef{}, fmt.Errorf("no handler registered for %s", spec.Kind)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RunRef{}, ErrClosed
	}

	runUUID := uuid.NewString()
	id, err := s.allocateID(ctx, runUUID, name, def)
	if err != nil {
		return RunRef{}, err
	}

	r := newRun(s.root, id, runUUID, name, def)
	prev := s.runs[name]
	if prev != nil {
		prev.cancel()
		s.cancelRemaining(prev, "superseded by run "+fmt.Sprint(id))
		s.logger.Info("pipeline run replaced",
			logging.String(logging.FieldEventType, "run_replaced"),
			logging.String(logging.FieldPipeline, name),
			logging.Uint64("previous_run_id", prev.id),
			logging.Uint64(logging.FieldRunID, id),
		)
	}
	s.runs[name] = r

	for i := range def.Stages {
		s.transition(r, i, StateEnqueued, payload.Payload{}, nil, "")
	}
	s.logger.Info("pipeline run enqueued",
		logging.String(logging.FieldEventType, "run_enqueued"),
		logging.String(logging.FieldPipeline, name),
		logging.Uint64(logging.FieldRunID, id),
		logging.String(logging.FieldCorrelationID, runUUID),
		logging.Int("stages", def.Len()),
		logging.Int("blur_level", def.BlurLevel),
	)

	s.wg.Add(1)
	go s.execute(r, prev)

	return RunRef{ID: id, UUID: runUUID, Name: name, Stages: def.Len(), done: r.done}, nil
}

// Cancel cooperatively cancels the live run registered under name. Its
// unfinished stages are published as cancelled before Cancel returns. It
// reports whether a live run was found.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[strings.TrimSpace(name)]
	if r == nil || r.isFinished() {
		return false
	}
	r.cancel()
	s.cancelRemaining(r, "cancelled by request")
	s.logger.Info("pipeline run cancelled",
		logging.String(logging.FieldEventType, "run_cancelled"),
		logging.String(logging.FieldPipeline, r.name),
		logging.Uint64(logging.FieldRunID, r.id),
	)
	return true
}

// Subscribe follows events published under tag, starting with the latest.
func (s *Scheduler) Subscribe(tag string) *statehub.Subscription[StateEvent] {
	return s.hub.Subscribe(tag)
}

// Latest returns the most recent event published under tag.
func (s *Scheduler) Latest(tag string) (StateEvent, bool) {
	return s.hub.Latest(tag)
}

// HealthCheck runs every registered handler's health check in stage order.
func (s *Scheduler) HealthCheck(ctx context.Context) []stage.Health {
	order := []stage.Kind{stage.KindCleanup, stage.KindBlur, stage.KindSave}
	results := make([]stage.Health, 0, len(s.handlers))
	for _, kind := range order {
		if h, ok := s.handlers[kind]; ok {
			results = append(results, h.HealthCheck(ctx))
		}
	}
	return results
}

// Wait blocks until every run goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels every live run, waits for their goroutines, and rejects
// further Enqueue calls.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	for _, r := range s.runs {
		r.cancel()
		s.cancelRemaining(r, "scheduler shutting down")
	}
	s.mu.Unlock()

	s.rootCancel()
	s.wg.Wait()
}

// allocateID records the run in the store, whose row id becomes the run id.
// Without a store a process-local counter is used. Callers hold s.mu so ids
// increase in enqueue order.
func (s *Scheduler) allocateID(ctx context.Context, runUUID, name string, def pipeline.Definition) (uint64, error) {
	if s.store == nil {
		s.localID++
		return s.localID, nil
	}
	input := ""
	stages := make([]store.NewStage, 0, def.Len())
	for _, spec := range def.Stages {
		if v, ok := spec.Input.ImageURI(); ok && input == "" {
			input = v
		}
		stages = append(stages, store.NewStage{Kind: string(spec.Kind), Tags: spec.Tags})
	}
	rec, err := s.store.CreateRun(ctx, store.NewRun{
		UUID:         runUUID,
		Name:         name,
		BlurLevel:    def.BlurLevel,
		InputLocator: input,
		Stages:       stages,
	})
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return uint64(rec.ID), nil
}

// release drops r from the live set once its goroutine is done.
func (s *Scheduler) release(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs[r.name] == r {
		delete(s.runs, r.name)
	}
}
