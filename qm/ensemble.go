/*
 * ensemble.go, part of goemle.
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
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// Ensemble evaluates several backends concurrently and averages their results.
type Ensemble struct {
	members []Backend
	//Spread is the standard deviation of the member energies in the last job.
	Spread float64
}

func NewEnsemble(members ...Backend) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, emle.NewError(emle.Configuration, "empty ensemble", "NewEnsemble")
	}
	return &Ensemble{members: members}, nil
}

func (E *Ensemble) Name() string {
	names := make([]string, len(E.members))
	for i, m := range E.members {
		names[i] = m.Name()
	}
	return fmt.Sprintf("ensemble[%s]", strings.Join(names, ","))
}

// Compute runs every member on S. Any member failing fails the job.
func (E *Ensemble) Compute(ctx context.Context, S *System) (*Result, error) {
	if err := S.validate(); err != nil {
		return nil, err
	}
	res := make([]*Result, len(E.members))
	eg, ctx := errgroup.WithContext(ctx)
	for i, m := range E.members {
		eg.Go(func() error {
			r, err := m.Compute(ctx, S)
			if err != nil {
				return err
			}
			if r.Gradient.NVecs() != len(S.Z) {
				return fmt.Errorf("member %s returned %d gradients for %d atoms", m.Name(), r.Gradient.NVecs(), len(S.Z))
			}
			res[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, emle.AsKind(err, emle.BackendCompute, "Ensemble.Compute")
	}
	energies := make([]float64, len(res))
	grad := make([]float64, 3*len(S.Z))
	for i, r := range res {
		energies[i] = r.Energy
		floats.Add(grad, r.Gradient.Raw())
	}
	floats.Scale(1/float64(len(res)), grad)
	G, err := v3.NewMatrix(grad)
	if err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "Ensemble.Compute", "%w", err)
	}
	mean, std := stat.MeanStdDev(energies, nil)
	if len(res) < 2 {
		std = 0
	}
	E.Spread = std
	return &Result{Energy: mean, Gradient: G}, nil
}

// Close closes every member.
func (E *Ensemble) Close() error {
	var errs []error
	for _, m := range E.members {
		errs = append(errs, Close(m))
	}
	return errors.Join(errs...)
}
