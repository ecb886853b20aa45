// Package presenter turns pipeline state events into what the user sees: a
// phase, the set of visible controls, and the result that can be opened.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"blurchain/internal/logging"
	"blurchain/internal/pipeline"
	"blurchain/internal/statehub"
	"blurchain/internal/workflow"
)

// Phase is the coarse state of the view.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInProgress
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "in progress"
	case PhaseFinished:
		return "finished"
	default:
		return "idle"
	}
}

// Controls lists which user actions are currently visible.
type Controls struct {
	Progress bool
	Cancel   bool
	Go       bool
	SeeFile  bool
}

// View is a snapshot of everything a renderer needs.
type View struct {
	Phase         Phase
	Controls      Controls
	RunID         uint64
	StageIndex    int
	StageCount    int
	StageLabel    string
	StageState    workflow.State
	Detail        string
	Error         string
	OutputLocator string
}

// Pipelines is the controller surface the presenter drives.
type Pipelines interface {
	Start(ctx context.Context, name string, def pipeline.Definition) (workflow.RunRef, error)
	Cancel(name string) bool
	Observe(tag string) *statehub.Subscription[workflow.StateEvent]
}

// Options configures a Presenter.
type Options struct {
	Name            string
	ImageLocator    string
	RequireCharging bool
	Opener          Opener
	Logger          *slog.Logger
}

// Presenter is the view model for a single named pipeline.
type Presenter struct {
	pipelines       Pipelines
	name            string
	requireCharging bool
	opener          Opener
	logger          *slog.Logger

	mu            sync.Mutex
	imageLocator  string
	outputLocator string
	runID         uint64
	view          View
}

// New builds a presenter in the idle phase.
func New(pipelines Pipelines, opts Options) *Presenter {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = pipeline.ImageManipulationWorkName
	}
	opener := opts.Opener
	if opener == nil {
		opener = SystemOpener{}
	}
	p := &Presenter{
		pipelines:       pipelines,
		name:            name,
		requireCharging: opts.RequireCharging,
		opener:          opener,
		logger:          logging.NewComponentLogger(opts.Logger, "presenter"),
		imageLocator:    strings.TrimSpace(opts.ImageLocator),
	}
	p.view = View{Phase: PhaseIdle, Controls: controlsFor(PhaseIdle, "")}
	return p
}

// SetImage changes the locator used by the next ApplyBlur.
func (p *Presenter) SetImage(locator string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imageLocator = strings.TrimSpace(locator)
}

// ImageLocator returns the current input locator.
func (p *Presenter) ImageLocator() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.imageLocator
}

// OutputLocator returns the locator of the last successful result, if any.
func (p *Presenter) OutputLocator() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputLocator
}

// View returns the current snapshot.
func (p *Presenter) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Controls returns the currently visible controls.
func (p *Presenter) Controls() Controls {
	return p.View().Controls
}

// ApplyBlur builds a pipeline for level and starts it, superseding any run
// already under the presenter's name. Events from older runs are ignored from
// then on.
func (p *Presenter) ApplyBlur(ctx context.Context, level int) (workflow.RunRef, error) {
	p.mu.Lock()
	def := pipeline.Build(level, p.imageLocator, p.requireCharging)
	p.mu.Unlock()

	ref, err := p.pipelines.Start(ctx, p.name, def)
	if err != nil {
		return workflow.RunRef{}, fmt.Errorf("apply blur: %w", err)
	}

	p.mu.Lock()
	if ref.ID > p.runID {
		p.runID = ref.ID
		p.outputLocator = ""
		p.view = View{
			Phase:      PhaseInProgress,
			Controls:   controlsFor(PhaseInProgress, ""),
			RunID:      ref.ID,
			StageCount: ref.Stages,
		}
	}
	p.mu.Unlock()

	p.logger.Info("blur requested",
		logging.String(logging.FieldEventType, "blur_requested"),
		logging.Uint64(logging.FieldRunID, ref.ID),
		logging.Int("blur_level", def.BlurLevel),
		logging.Bool("require_charging", p.requireCharging),
	)
	return ref, nil
}

// CancelWork cancels the presenter's pipeline. It reports whether a live run
// was found.
func (p *Presenter) CancelWork() bool {
	return p.pipelines.Cancel(p.name)
}

// Handle folds evt into the view. It returns the new view and whether it
// changed. Events of runs older than the newest one seen are dropped.
func (p *Presenter) Handle(evt workflow.StateEvent) (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if evt.RunID < p.runID {
		return p.view, false
	}
	if evt.RunID > p.runID {
		p.runID = evt.RunID
		p.outputLocator = ""
		p.view.Phase = PhaseIdle
	}

	next := p.view
	next.RunID = evt.RunID
	next.StageIndex = evt.StageIndex
	next.StageCount = evt.StageCount
	next.StageLabel = evt.StageKind.Label()
	next.StageState = evt.State
	next.Detail = evt.Detail
	next.Error = evt.Error

	isOutput := false
	for _, tag := range evt.Tags {
		if tag == pipeline.TagOutput {
			isOutput = true
			break
		}
	}
	switch {
	case isOutput && evt.State.IsFinished():
		next.Phase = PhaseFinished
		p.outputLocator = evt.OutputLocator()
	case isOutput:
		next.Phase = PhaseInProgress
	case next.Phase != PhaseFinished:
		next.Phase = PhaseInProgress
	}
	next.OutputLocator = p.outputLocator
	next.Controls = controlsFor(next.Phase, p.outputLocator)

	changed := next != p.view
	p.view = next
	return next, changed
}

// Watch follows the presenter's pipeline and calls render whenever the view
// changes. It blocks until ctx ends; run it on its own goroutine.
func (p *Presenter) Watch(ctx context.Context, render func(View)) error {
	sub := p.pipelines.Observe(workflow.PipelineTopic(p.name))
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.C():
			if !ok {
				return nil
			}
			if view, changed := p.Handle(evt); changed && render != nil {
				render(view)
			}
		}
	}
}

// OpenResult hands the output locator to the opener. It reports false when
// there is nothing to open or no application can open it.
func (p *Presenter) OpenResult() (bool, error) {
	locator := p.OutputLocator()
	if locator == "" {
		return false, nil
	}
	if err := p.opener.Open(locator); err != nil {
		if errors.Is(err, ErrNoHandler) {
			p.logger.Info("no application available to open result",
				logging.String(logging.FieldEventType, "open_result_skipped"),
				logging.String("output", locator),
			)
			return false, nil
		}
		return false, fmt.Errorf("open result: %w", err)
	}
	return true, nil
}

func controlsFor(phase Phase, outputLocator string) Controls {
	switch phase {
	case PhaseInProgress:
		return Controls{Progress: true, Cancel: true}
	case PhaseFinished:
		return Controls{Go: true, SeeFile: outputLocator != ""}
	default:
		return Controls{Go: true}
	}
}
