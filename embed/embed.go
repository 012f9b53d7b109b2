/*
 * embed.go, part of goemle.
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

// Package embed computes the correction to an in-vacuo QM energy
// due to the field of the MM point charges.
package embed

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// Method is an embedding scheme.
type Method string

const (
	//Predicted charges, Slater valence densities and induced dipoles.
	Electrostatic Method = "electrostatic"
	//Predicted charges as point charges.
	Mechanical Method = "mechanical"
	//Predicted charges and Slater densities, no induction.
	NonPolarisable Method = "nonpol"
	//Fixed, user-given, charges for the QM atoms.
	FixedMM Method = "mm"
	//No correction at all, the in-vacuo result is passed through.
	None Method = "none"
)

var methods = []Method{Electrostatic, Mechanical, NonPolarisable, FixedMM, None}

// ParseMethod returns the Method named s (case insensitive).
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range methods {
		if v == m {
			return m, nil
		}
	}
	return "", emle.Errorf(emle.Configuration, "ParseMethod", "unknown embedding method %q", s)
}

// Input is what a corrector needs to compute its correction.
// Coordinates are in A, charges in e.
type Input struct {
	Z         []int
	QM        *v3.Matrix
	Charge    float64 //total charge of the QM region
	MMCharges []float64
	MM        *v3.Matrix //can be nil if there are no MM charges.
}

func (I *Input) validate() error {
	if len(I.Z) == 0 || I.QM.NVecs() != len(I.Z) {
		return emle.Errorf(emle.MalformedRequest, "Input.validate", "%d atomic numbers but %d QM coordinates", len(I.Z), I.QM.NVecs())
	}
	if len(I.MMCharges) != I.MM.NVecs() {
		return emle.Errorf(emle.MalformedRequest, "Input.validate", "%d MM charges but %d MM coordinates", len(I.MMCharges), I.MM.NVecs())
	}
	return nil
}

// Result is an embedding correction. Energies are in Hartree, gradients in Hartree/Bohr.
// GradMM is nil if there were no MM charges.
type Result struct {
	Energy float64
	GradQM *v3.Matrix
	GradMM *v3.Matrix
}

// Corrector is the interface implemented by every embedding method.
type Corrector interface {
	Method() Method

	//Check returns an error if a QM region with atomic numbers z
	//can't be handled. It never runs a model.
	Check(z []int) error

	//Correct computes the correction for the given QM region and MM field.
	Correct(ctx context.Context, in *Input) (*Result, error)
}

// New returns the corrector for the given method. params is used by the model-based methods
// (the default model is used if it is nil), fixedCharges only by FixedMM.
func New(method Method, params *Params, fixedCharges []float64) (Corrector, error) {
	switch method {
	case Electrostatic, Mechanical, NonPolarisable:
		if params == nil {
			params = DefaultParams()
		}
		return &modelCorrector{method: method, p: params, h: fdStep}, nil
	case FixedMM:
		if len(fixedCharges) == 0 {
			return nil, emle.Errorf(emle.Configuration, "embed.New", "the %s method requires charges for the QM atoms", FixedMM)
		}
		return &fixedCorrector{charges: append([]float64(nil), fixedCharges...)}, nil
	case None:
		return nil, emle.Errorf(emle.Configuration, "embed.New", "method %s has no corrector", None)
	}
	return nil, emle.Errorf(emle.Configuration, "embed.New", "unknown embedding method %q", method)
}

// Finite-difference step for the QM-side gradients, in Bohr.
const fdStep = 1e-4

type modelCorrector struct {
	method Method
	p      *Params
	h      float64
}

func (C *modelCorrector) Method() Method { return C.method }

func (C *modelCorrector) Check(z []int) error {
	return emle.Decorate(emle.CheckSupported(z), "Check")
}

// Correct returns the correction. The gradient on the MM atoms is analytic, the one on the QM atoms
// is obtained by central finite differences, as the charges depend on the QM geometry.
func (C *modelCorrector) Correct(ctx context.Context, in *Input) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := C.Check(in.Z); err != nil {
		return nil, err
	}
	a, err := C.p.forAtoms(in.Z)
	if err != nil {
		return nil, err
	}
	x := toBohr(in.QM)
	ret := &Result{GradQM: v3.Zeros(len(x))}
	if len(in.MMCharges) == 0 {
		return ret, nil
	}
	R := toBohr(in.MM)
	E, gR, err := C.evaluate(x, R, in.MMCharges, a, in.Charge, true)
	if err != nil {
		return nil, err
	}
	gx, err := C.qmGradient(ctx, x, R, in.MMCharges, a, in.Charge)
	if err != nil {
		return nil, err
	}
	ret.Energy = E
	ret.GradQM = toMatrix(gx)
	ret.GradMM = toMatrix(gR)
	return ret, nil
}

// evaluate returns the embedding energy and, if mmgrad is true, its gradient on the MM atoms.
func (C *modelCorrector) evaluate(x, R []vec, Q []float64, a *atomParams, qtot float64, mmgrad bool) (float64, []vec, error) {
	q, err := qeqCharges(x, a.s, a.chi, C.p.AQEq, qtot)
	if err != nil {
		return 0, nil, emle.Errorf(emle.BackendCompute, "evaluate", "%s embedding: %w", C.method, err)
	}
	var gR []vec
	if mmgrad {
		gR = make([]vec, len(R))
	}
	if C.method == Mechanical {
		E := pointChargeEnergy(x, R, q, Q)
		if mmgrad {
			pointChargeGrad(x, R, q, Q, nil, gR)
		}
		return E, gR, nil
	}
	qval := make([]float64, len(q))
	for i := range q {
		qval[i] = q[i] - a.qcore[i]
	}
	E := staticEnergy(x, R, Q, a.qcore, qval, a.s)
	if mmgrad {
		staticMMGrad(x, R, Q, a.qcore, qval, a.s, gR)
	}
	if C.method == NonPolarisable {
		return E, gR, nil
	}
	alpha, err := polarizabilities(qval, a.s, a.k)
	if err != nil {
		return 0, nil, emle.Errorf(emle.BackendCompute, "evaluate", "%s embedding: %w", C.method, err)
	}
	ind, err := induce(x, R, Q, a.s, alpha, C.p.AThole, mmgrad)
	if err != nil {
		return 0, nil, emle.Errorf(emle.BackendCompute, "evaluate", "%s embedding: %w", C.method, err)
	}
	if mmgrad {
		inducedMMGrad(x, R, Q, a.s, ind, gR)
	}
	return E + ind.E, gR, nil
}

func (C *modelCorrector) qmGradient(ctx context.Context, x, R []vec, Q []float64, a *atomParams, qtot float64) ([]vec, error) {
	g := make([]vec, len(x))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := range x {
		for c := 0; c < 3; c++ {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				var e [2]float64
				for k, sign := range []float64{1, -1} {
					xd := append([]vec(nil), x...)
					xd[i][c] += sign * C.h
					E, _, err := C.evaluate(xd, R, Q, a, qtot, false)
					if err != nil {
						return err
					}
					e[k] = E
				}
				g[i][c] = (e[0] - e[1]) / (2 * C.h)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, emle.AsKind(err, emle.BackendCompute, "qmGradient")
	}
	return g, nil
}

// fixedCorrector treats the QM atoms as point charges with constant values.
type fixedCorrector struct {
	charges []float64
}

func (C *fixedCorrector) Method() Method { return FixedMM }

func (C *fixedCorrector) Check(z []int) error {
	if len(z) != len(C.charges) {
		return emle.Errorf(emle.MalformedRequest, "Check", "%d QM atoms but %d fixed QM charges configured", len(z), len(C.charges))
	}
	return nil
}

func (C *fixedCorrector) Correct(ctx context.Context, in *Input) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := C.Check(in.Z); err != nil {
		return nil, err
	}
	x := toBohr(in.QM)
	ret := &Result{GradQM: v3.Zeros(len(x))}
	if len(in.MMCharges) == 0 {
		return ret, nil
	}
	R := toBohr(in.MM)
	gx := make([]vec, len(x))
	gR := make([]vec, len(R))
	ret.Energy = pointChargeEnergy(x, R, C.charges, in.MMCharges)
	pointChargeGrad(x, R, C.charges, in.MMCharges, gx, gR)
	ret.GradQM = toMatrix(gx)
	ret.GradMM = toMatrix(gR)
	return ret, nil
}

func toBohr(m *v3.Matrix) []vec {
	n := m.NVecs()
	ret := make([]vec, n)
	for i := range ret {
		v := m.Vec(i)
		ret[i] = vec{v[0] * emle.A2Bohr, v[1] * emle.A2Bohr, v[2] * emle.A2Bohr}
	}
	return ret
}

func toMatrix(g []vec) *v3.Matrix {
	if len(g) == 0 {
		return nil
	}
	ret := v3.Zeros(len(g))
	for i, v := range g {
		ret.SetVec(i, v)
	}
	return ret
}

func (m Method) String() string { return string(m) }

// Describe returns a one-line description of the corrector, for logging.
func Describe(C Corrector) string {
	if C == nil {
		return "no embedding"
	}
	if mc, ok := C.(*modelCorrector); ok {
		return fmt.Sprintf("%s embedding with model %s", mc.method, mc.p)
	}
	return fmt.Sprintf("%s embedding", C.Method())
}
