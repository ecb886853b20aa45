// Package pipeline assembles the ordered stage definitions of an image blur
// run: one cleanup, one blur pass per requested level, and a final save.
package pipeline

import (
	"fmt"

	"blurchain/internal/constraint"
	"blurchain/internal/payload"
	"blurchain/internal/stage"
)

const (
	// ImageManipulationWorkName is the unique name shared by every blur run,
	// so starting a new run supersedes the previous one.
	ImageManipulationWorkName = "image_manipulation_work"
	// TagOutput marks the stage whose state observers follow.
	TagOutput = "OUTPUT"
	// MinBlurLevel and MaxBlurLevel bound the number of blur passes.
	MinBlurLevel = 1
	MaxBlurLevel = 3
)

// StageSpec describes one stage of a Definition.
type StageSpec struct {
	Kind stage.Kind
	// Input, when non-empty, is used instead of the previous stage's output.
	Input      payload.Payload
	Tags       []string
	Constraint constraint.Constraint
}

// HasTag reports whether the spec carries tag.
func (s StageSpec) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Definition is the ordered list of stages for one run.
type Definition struct {
	Stages    []StageSpec
	BlurLevel int
}

// Len returns the number of stages.
func (d Definition) Len() int { return len(d.Stages) }

// Tags returns the distinct tags across all stages in order of appearance.
func (d Definition) Tags() []string {
	seen := map[string]struct{}{}
	var tags []string
	for _, s := range d.Stages {
		for _, t := range s.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}

// Validate checks the Definition is runnable.
func (d Definition) Validate() error {
	if len(d.Stages) == 0 {
		return fmt.Errorf("pipeline definition has no stages")
	}
	for i, s := range d.Stages {
		if !s.Kind.Valid() {
			return fmt.Errorf("stage %d: unknown kind %q", i, s.Kind)
		}
	}
	return nil
}

// NormalizeLevel clamps level into [MinBlurLevel, MaxBlurLevel].
func NormalizeLevel(level int) int {
	switch {
	case level < MinBlurLevel:
		return MinBlurLevel
	case level > MaxBlurLevel:
		return MaxBlurLevel
	default:
		return level
	}
}

// Build returns the Definition for a blur run. Only the first blur pass
// receives initialLocator; later passes consume the previous pass's output.
// The save stage is tagged TagOutput and carries the charging precondition
// when requireCharging is set.
func Build(blurLevel int, initialLocator string, requireCharging bool) Definition {
	level := NormalizeLevel(blurLevel)
	stages := make([]StageSpec, 0, level+2)
	stages = append(stages, StageSpec{Kind: stage.KindCleanup})

	for i := range level {
		spec := StageSpec{Kind: stage.KindBlur}
		if i == 0 {
			spec.Input = payload.Of(payload.KeyImageURI, initialLocator)
		}
		stages = append(stages, spec)
	}

	stages = append(stages, StageSpec{
		Kind:       stage.KindSave,
		Tags:       []string{TagOutput},
		Constraint: constraint.Constraint{RequiresCharging: requireCharging},
	})

	return Definition{Stages: stages, BlurLevel: level}
}
