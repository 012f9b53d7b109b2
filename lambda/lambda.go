/*
 * lambda.go, part of goemle.
 *
 *
 * Copyright 2026 The goemle Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

// Package lambda tracks the alchemical interpolation parameter across
// successive jobs.
package lambda

import (
	"fmt"
	"math"

	emle "github.com/rmera/goemle"
)

// State is the state of a Scheduler.
type State int

const (
	Disabled State = iota
	Fixed
	Linear
	Complete
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Fixed:
		return "fixed"
	case Linear:
		return "linear"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Scheduler is a small state machine holding lambda. It is not safe for
// concurrent use: it belongs to the job-processing loop.
type Scheduler struct {
	state      State
	lambda     float64
	start, end float64
	steps      int
	k          int //steps taken under the linear schedule
}

// New returns a Scheduler built from the configured values: none gives a
// disabled scheduler, one a fixed lambda, and two a linear schedule from
// values[0] to values[1] over steps steps.
func New(values []float64, steps int) (*Scheduler, error) {
	switch len(values) {
	case 0:
		return NewDisabled(), nil
	case 1:
		return NewFixed(values[0])
	case 2:
		return NewLinear(values[0], values[1], steps)
	}
	return nil, emle.Errorf(emle.Configuration, "lambda.New", "lambda-interpolate takes one or two values, got %d", len(values))
}

func NewDisabled() *Scheduler {
	return &Scheduler{state: Disabled}
}

func NewFixed(l float64) (*Scheduler, error) {
	if err := check(l); err != nil {
		return nil, emle.AsKind(err, emle.Configuration, "lambda.NewFixed")
	}
	return &Scheduler{state: Fixed, lambda: l, start: l, end: l}, nil
}

// NewLinear returns a Scheduler that moves lambda from start to end in steps
// equal increments, and keeps it at end afterwards. If steps is 0 the schedule
// is complete from the beginning.
func NewLinear(start, end float64, steps int) (*Scheduler, error) {
	for _, l := range []float64{start, end} {
		if err := check(l); err != nil {
			return nil, emle.AsKind(err, emle.Configuration, "lambda.NewLinear")
		}
	}
	if steps < 0 {
		return nil, emle.Errorf(emle.Configuration, "lambda.NewLinear", "negative number of interpolation steps: %d", steps)
	}
	S := &Scheduler{state: Linear, lambda: start, start: start, end: end, steps: steps}
	if steps == 0 {
		S.state = Complete
		S.lambda = end
	}
	return S, nil
}

func check(l float64) error {
	if math.IsNaN(l) || l < 0 || l > 1 {
		return fmt.Errorf("lambda must be in [0,1], got %g", l)
	}
	return nil
}

// Lambda returns the current value. It is meaningless for a disabled scheduler.
func (S *Scheduler) Lambda() float64 { return S.lambda }

func (S *Scheduler) State() State { return S.state }

// Enabled returns false only if the scheduler is disabled, i.e. if no blending is to be done.
func (S *Scheduler) Enabled() bool { return S.state != Disabled }

// Advance moves a linear schedule one step forward. It does nothing in any other state.
func (S *Scheduler) Advance() {
	if S.state != Linear {
		return
	}
	S.k++
	if S.k >= S.steps {
		S.lambda = S.end
		S.state = Complete
		return
	}
	l := S.start + (S.end-S.start)*float64(S.k)/float64(S.steps)
	lo, hi := math.Min(S.start, S.end), math.Max(S.start, S.end)
	S.lambda = math.Max(lo, math.Min(hi, l))
}

// Set overrides lambda and leaves the scheduler in the fixed state,
// whatever state it was in.
func (S *Scheduler) Set(l float64) error {
	if err := check(l); err != nil {
		return emle.AsKind(err, emle.MalformedRequest, "Set")
	}
	S.state = Fixed
	S.lambda = l
	return nil
}
