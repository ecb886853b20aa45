package presenter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blurchain/internal/constraint"
	"blurchain/internal/controller"
	"blurchain/internal/logging"
	"blurchain/internal/payload"
	"blurchain/internal/pipeline"
	"blurchain/internal/presenter"
	"blurchain/internal/stage"
	"blurchain/internal/statehub"
	"blurchain/internal/workflow"
)

type fakePipelines struct {
	mu        sync.Mutex
	nextID    uint64
	started   []pipeline.Definition
	cancelled []string
	hub       *statehub.Hub[workflow.StateEvent]
}

func (f *fakePipelines) Start(_ context.Context, name string, def pipeline.Definition) (workflow.RunRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.started = append(f.started, def)
	return workflow.RunRef{ID: f.nextID, Name: name, Stages: def.Len()}, nil
}

func (f *fakePipelines) Cancel(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, name)
	return true
}

func (f *fakePipelines) Observe(tag string) *statehub.Subscription[workflow.StateEvent] {
	return f.hub.Subscribe(tag)
}

func outputEvent(runID uint64, state workflow.State, locator string) workflow.StateEvent {
	evt := workflow.StateEvent{
		RunID:      runID,
		Name:       pipeline.ImageManipulationWorkName,
		StageIndex: 2,
		StageCount: 3,
		StageKind:  stage.KindSave,
		Tags:       []string{pipeline.TagOutput},
		State:      state,
	}
	if locator != "" {
		evt.Output = payload.Of(payload.KeyImageURI, locator)
	}
	return evt
}

func newPresenter(t *testing.T, opener presenter.Opener) (*presenter.Presenter, *fakePipelines) {
	t.Helper()
	fake := &fakePipelines{hub: statehub.New[workflow.StateEvent](64)}
	p := presenter.New(fake, presenter.Options{
		ImageLocator:    "file:///tmp/in.png",
		RequireCharging: true,
		Opener:          opener,
		Logger:          logging.NewNop(),
	})
	return p, fake
}

func TestInitialControls(t *testing.T) {
	p, _ := newPresenter(t, nil)
	view := p.View()
	if view.Phase != presenter.PhaseIdle {
		t.Fatalf("expected idle, got %s", view.Phase)
	}
	if want := (presenter.Controls{Go: true}); view.Controls != want {
		t.Fatalf("controls = %+v, want %+v", view.Controls, want)
	}
}

func TestApplyBlurBuildsDefinition(t *testing.T) {
	p, fake := newPresenter(t, nil)
	ref, err := p.ApplyBlur(context.Background(), 2)
	if err != nil {
		t.Fatalf("ApplyBlur: %v", err)
	}
	if ref.ID != 1 {
		t.Fatalf("unexpected run id %d", ref.ID)
	}
	def := fake.started[0]
	if def.Len() != 4 {
		t.Fatalf("expected 4 stages, got %d", def.Len())
	}
	if loc, _ := def.Stages[1].Input.ImageURI(); loc != "file:///tmp/in.png" {
		t.Fatalf("first blur input = %q", loc)
	}
	save := def.Stages[3]
	if !save.HasTag(pipeline.TagOutput) || !save.Constraint.RequiresCharging {
		t.Fatalf("unexpected save spec %+v", save)
	}
	if got := p.Controls(); got != (presenter.Controls{Progress: true, Cancel: true}) {
		t.Fatalf("controls after start = %+v", got)
	}
}

func TestHandleTransitions(t *testing.T) {
	tests := []struct {
		name    string
		events  []workflow.StateEvent
		phase   presenter.Phase
		control presenter.Controls
		output  string
	}{
		{
			name:    "running",
			events:  []workflow.StateEvent{outputEvent(1, workflow.StateEnqueued, "")},
			phase:   presenter.PhaseInProgress,
			control: presenter.Controls{Progress: true, Cancel: true},
		},
		{
			name: "succeeded with output",
			events: []workflow.StateEvent{
				outputEvent(1, workflow.StateRunning, ""),
				outputEvent(1, workflow.StateSucceeded, "file:///out.png"),
			},
			phase:   presenter.PhaseFinished,
			control: presenter.Controls{Go: true, SeeFile: true},
			output:  "file:///out.png",
		},
		{
			name:    "failed",
			events:  []workflow.StateEvent{outputEvent(1, workflow.StateFailed, "")},
			phase:   presenter.PhaseFinished,
			control: presenter.Controls{Go: true},
		},
		{
			name:    "cancelled",
			events:  []workflow.StateEvent{outputEvent(1, workflow.StateCancelled, "")},
			phase:   presenter.PhaseFinished,
			control: presenter.Controls{Go: true},
		},
		{
			name: "stale run ignored",
			events: []workflow.StateEvent{
				outputEvent(2, workflow.StateRunning, ""),
				outputEvent(1, workflow.StateSucceeded, "file:///old.png"),
			},
			phase:   presenter.PhaseInProgress,
			control: presenter.Controls{Progress: true, Cancel: true},
		},
		{
			name: "newer run resets output",
			events: []workflow.StateEvent{
				outputEvent(1, workflow.StateSucceeded, "file:///old.png"),
				outputEvent(2, workflow.StateEnqueued, ""),
			},
			phase:   presenter.PhaseInProgress,
			control: presenter.Controls{Progress: true, Cancel: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newPresenter(t, nil)
			var view presenter.View
			for _, evt := range tt.events {
				view, _ = p.Handle(evt)
			}
			if view.Phase != tt.phase {
				t.Fatalf("phase = %s, want %s", view.Phase, tt.phase)
			}
			if view.Controls != tt.control {
				t.Fatalf("controls = %+v, want %+v", view.Controls, tt.control)
			}
			if p.OutputLocator() != tt.output {
				t.Fatalf("output = %q, want %q", p.OutputLocator(), tt.output)
			}
		})
	}
}

func TestHandleIgnoresEventsOfSupersededRun(t *testing.T) {
	p, _ := newPresenter(t, nil)
	p.Handle(outputEvent(1, workflow.StateRunning, ""))
	if _, err := p.ApplyBlur(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ApplyBlur(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if _, changed := p.Handle(outputEvent(1, workflow.StateCancelled, "")); changed {
		t.Fatal("expected stale event to be ignored")
	}
	if p.View().Phase != presenter.PhaseInProgress {
		t.Fatalf("phase = %s", p.View().Phase)
	}
}

func TestNonOutputStageUpdatesProgress(t *testing.T) {
	p, _ := newPresenter(t, nil)
	view, changed := p.Handle(workflow.StateEvent{
		RunID:      3,
		StageIndex: 1,
		StageCount: 5,
		StageKind:  stage.KindBlur,
		State:      workflow.StateRunning,
	})
	if !changed || view.Phase != presenter.PhaseInProgress || view.StageLabel != "Blur" {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, changed := p.Handle(workflow.StateEvent{
		RunID:      3,
		StageIndex: 1,
		StageCount: 5,
		StageKind:  stage.KindBlur,
		State:      workflow.StateRunning,
	}); changed {
		t.Fatal("identical event should not change the view")
	}
}

func TestCancelWork(t *testing.T) {
	p, fake := newPresenter(t, nil)
	if !p.CancelWork() {
		t.Fatal("expected cancel to be forwarded")
	}
	if len(fake.cancelled) != 1 || fake.cancelled[0] != pipeline.ImageManipulationWorkName {
		t.Fatalf("cancelled = %v", fake.cancelled)
	}
}

func TestOpenResult(t *testing.T) {
	var opened []string
	opener := presenter.OpenerFunc(func(locator string) error {
		opened = append(opened, locator)
		return nil
	})
	p, _ := newPresenter(t, opener)

	if ok, err := p.OpenResult(); ok || err != nil {
		t.Fatalf("expected no-op without output, got %v %v", ok, err)
	}
	p.Handle(outputEvent(1, workflow.StateSucceeded, "file:///out.png"))
	ok, err := p.OpenResult()
	if err != nil || !ok {
		t.Fatalf("OpenResult: %v %v", ok, err)
	}
	if len(opened) != 1 || opened[0] != "file:///out.png" {
		t.Fatalf("opened = %v", opened)
	}
}

func TestOpenResultWithoutHandler(t *testing.T) {
	p, _ := newPresenter(t, presenter.OpenerFunc(func(string) error {
		return presenter.ErrNoHandler
	}))
	p.Handle(outputEvent(1, workflow.StateSucceeded, "file:///out.png"))
	if ok, err := p.OpenResult(); ok || err != nil {
		t.Fatalf("expected silent no-op, got %v %v", ok, err)
	}

	boom := errors.New("boom")
	p2, _ := newPresenter(t, presenter.OpenerFunc(func(string) error { return boom }))
	p2.Handle(outputEvent(1, workflow.StateSucceeded, "file:///out.png"))
	if _, err := p2.OpenResult(); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSystemOpenerMissingFile(t *testing.T) {
	err := presenter.SystemOpener{}.Open("file:///definitely/not/here.png")
	if !errors.Is(err, presenter.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

type passHandler struct{}

func (passHandler) Execute(_ context.Context, in payload.Payload) (payload.Payload, error) {
	return in, nil
}

func (passHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy("pass") }

func TestWatchFollowsRealPipeline(t *testing.T) {
	s, err := workflow.NewScheduler(workflow.Options{
		Handlers: map[stage.Kind]stage.Handler{
			stage.KindCleanup: passHandler{},
			stage.KindBlur:    passHandler{},
			stage.KindSave:    passHandler{},
		},
		Hub:     statehub.New[workflow.StateEvent](256),
		Checker: constraint.Static{Charging: true},
		Logger:  logging.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	p := presenter.New(controller.New(s, logging.NewNop()), presenter.Options{
		ImageLocator: "file:///tmp/in.png",
		Opener:       presenter.OpenerFunc(func(string) error { return nil }),
		Logger:       logging.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	views := make(chan presenter.View, 64)
	go func() {
		_ = p.Watch(ctx, func(v presenter.View) { views <- v })
	}()

	ref, err := p.ApplyBlur(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-views:
			if v.RunID == ref.ID && v.Phase == presenter.PhaseFinished {
				if !v.Controls.SeeFile || v.OutputLocator != "file:///tmp/in.png" {
					t.Fatalf("unexpected final view %+v", v)
				}
				return
			}
		case <-deadline:
			t.Fatal("presenter never reached finished")
		}
	}
}
