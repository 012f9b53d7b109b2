/*
 * forcefield.go, part of goemle.
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

package qm

import (
	"context"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/top"
)

// FFBackend evaluates the classical force field of the QM region.
// It is the pure-MM reference of interpolated runs.
type FFBackend struct {
	topology string
	model    *top.Model
}

// NewFFBackend reads and compiles the Gromacs topology in the file name.
func NewFFBackend(name string, defines ...string) (*FFBackend, error) {
	if name == "" {
		return nil, emle.NewError(emle.Configuration, "the force field backend needs a topology", "NewFFBackend")
	}
	F, err := top.ReadFile(name, defines...)
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "NewFFBackend", "%w", err)
	}
	M, err := F.Compile()
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "NewFFBackend", "topology %s: %w", name, err)
	}
	return &FFBackend{topology: name, model: M}, nil
}

func (F *FFBackend) Name() string { return ForceField }

// Charges returns the charges of the topology atoms. They are the
// fixed QM charges of the pure-MM reference.
func (F *FFBackend) Charges() []float64 {
	return F.model.F.Charges()
}

// NAtoms returns the number of atoms in the topology.
func (F *FFBackend) NAtoms() int { return len(F.model.F.Atoms) }

// Compute returns the force-field energy and gradient. The charge and multiplicity are ignored.
func (F *FFBackend) Compute(ctx context.Context, S *System) (*Result, error) {
	if err := S.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "FFBackend.Compute", "%w", err)
	}
	if len(S.Z) != F.NAtoms() {
		return nil, emle.Errorf(emle.BackendCompute, "FFBackend.Compute", "%d QM atoms but topology %s has %d", len(S.Z), F.topology, F.NAtoms())
	}
	E, G, err := F.model.Gradient(S.Coords)
	if err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "FFBackend.Compute", "%w", err)
	}
	return &Result{Energy: E, Gradient: G}, nil
}
