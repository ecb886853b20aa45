// Package constraint declares the preconditions a stage waits on before it
// may run, and the checkers that evaluate them against the host.
package constraint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/distatus/battery"
)

// Constraint lists preconditions for a stage. The zero value has none.
type Constraint struct {
	RequiresCharging bool `json:"requires_charging,omitempty"`
}

// IsZero reports whether c imposes no precondition.
func (c Constraint) IsZero() bool { return !c.RequiresCharging }

func (c Constraint) String() string {
	if c.RequiresCharging {
		return "requires charging"
	}
	return "none"
}

// Status is the outcome of evaluating a Constraint.
type Status struct {
	Satisfied bool
	Reason    string
}

// Checker evaluates constraints against the current host state.
type Checker interface {
	Check(ctx context.Context, c Constraint) (Status, error)
}

// PowerSource reports whether the host is running on external power.
type PowerSource func() (onPower bool, detail string, err error)

// BatteryChecker evaluates the charging precondition through the host battery
// interface.
type BatteryChecker struct {
	power PowerSource
}

// NewBatteryChecker returns a checker backed by the system batteries.
func NewBatteryChecker() *BatteryChecker {
	return &BatteryChecker{power: systemPower}
}

// NewBatteryCheckerWith returns a checker using the supplied power source.
func NewBatteryCheckerWith(power PowerSource) *BatteryChecker {
	if power == nil {
		power = systemPower
	}
	return &BatteryChecker{power: power}
}

// Check implements Checker.
func (b *BatteryChecker) Check(ctx context.Context, c Constraint) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if !c.RequiresCharging {
		return Status{Satisfied: true}, nil
	}
	onPower, detail, err := b.power()
	if err != nil {
		return Status{Reason: "battery state unavailable"}, fmt.Errorf("read battery state: %w", err)
	}
	if !onPower {
		return Status{Reason: detail}, nil
	}
	return Status{Satisfied: true, Reason: detail}, nil
}

func systemPower() (bool, string, error) {
	batteries, err := battery.GetAll()
	return summarize(batteries, err)
}

// summarize folds per-battery readings into a single power verdict. A host
// without batteries is on mains power. Any battery reporting Charging or Full
// means the charger is connected.
func summarize(batteries []*battery.Battery, err error) (bool, string, error) {
	var perBattery battery.Errors
	if err != nil && !errors.As(err, &perBattery) {
		return false, "", err
	}

	readable := 0
	states := make([]string, 0, len(batteries))
	for i, bat := range batteries {
		if bat == nil {
			continue
		}
		if i < len(perBattery) && perBattery[i] != nil {
			continue
		}
		readable++
		states = append(states, bat.State.String())
		if bat.State == battery.Charging || bat.State == battery.Full {
			return true, "charging", nil
		}
	}

	switch {
	case len(batteries) == 0:
		return true, "no battery present", nil
	case readable == 0:
		return false, "", fmt.Errorf("no readable battery: %w", err)
	default:
		return false, "on battery (" + strings.ToLower(strings.Join(states, ", ")) + ")", nil
	}
}

// Static is a Checker with a fixed answer for the charging precondition.
type Static struct {
	Charging bool
}

// Check implements Checker.
func (s Static) Check(ctx context.Context, c Constraint) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if !c.RequiresCharging || s.Charging {
		return Status{Satisfied: true}, nil
	}
	return Status{Reason: "not charging"}, nil
}
