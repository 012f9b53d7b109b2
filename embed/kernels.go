/*
 * kernels.go, part of goemle.
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

package embed

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//Everything in this file works in atomic units: Bohr, Hartree, e.

type vec = [3]float64

func sub(a, b vec) vec { return vec{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func dot(a, b vec) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func norm(a vec) float64 { return math.Sqrt(dot(a, a)) }

// t0Slater is the interaction of a unit point charge with a unit
// Slater valence density of width s, at a distance r. It also returns the
// radial derivative.
func t0Slater(r, s float64) (float64, float64) {
	e := math.Exp(-r / s)
	g := 1 - (1+r/(2*s))*e
	dg := e * (1/(2*s) + r/(2*s*s))
	return g / r, dg/r - g/(r*r)
}

// f1Slater is the damping factor applied to the field of a point
// charge felt by a Slater density of width s, and its radial derivative.
func f1Slater(r, s float64) (float64, float64) {
	u := r / s
	e := math.Exp(-u)
	return 1 - e*(1+u+u*u/2), e * r * r / (2 * s * s * s)
}

// qeqCharges solves the charge equilibration problem for atoms at x with
// valence widths s and electronegativities chi, constrained to a total charge qtot.
func qeqCharges(x []vec, s, chi []float64, aqeq, qtot float64) ([]float64, error) {
	n := len(x)
	A := mat.NewDense(n+1, n+1, nil)
	b := mat.NewVecDense(n+1, nil)
	sg := make([]float64, n)
	for i := range sg {
		sg[i] = s[i] * aqeq
	}
	for i := 0; i < n; i++ {
		A.Set(i, i, 1/(sg[i]*math.Sqrt(math.Pi)))
		for j := i + 1; j < n; j++ {
			r := norm(sub(x[i], x[j]))
			if r == 0 {
				return nil, fmt.Errorf("atoms %d and %d overlap", i, j)
			}
			smat := math.Sqrt(sg[i]*sg[i] + sg[j]*sg[j])
			v := math.Erf(r/(smat*math.Sqrt2)) / r
			A.Set(i, j, v)
			A.Set(j, i, v)
		}
		A.Set(i, n, 1)
		A.Set(n, i, 1)
		b.SetVec(i, -chi[i])
	}
	b.SetVec(n, qtot)
	var q mat.VecDense
	if err := q.SolveVec(A, b); err != nil {
		return nil, fmt.Errorf("charge equilibration: %w", err)
	}
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = q.AtVec(i)
	}
	return ret, nil
}

// staticEnergy is the interaction of the core charges plus Slater valence
// densities of the QM atoms with the MM point charges.
func staticEnergy(x, R []vec, Q, qcore, qval, s []float64) float64 {
	var E float64
	for i := range x {
		for j := range R {
			r := norm(sub(R[j], x[i]))
			t0, _ := t0Slater(r, s[i])
			E += Q[j] * (qcore[i]/r + qval[i]*t0)
		}
	}
	return E
}

// staticMMGrad adds the derivative of staticEnergy with respect to the MM
// positions to g.
func staticMMGrad(x, R []vec, Q, qcore, qval, s []float64, g []vec) {
	for i := range x {
		for j := range R {
			d := sub(R[j], x[i])
			r := norm(d)
			_, dt0 := t0Slater(r, s[i])
			f := Q[j] * (-qcore[i]/(r*r) + qval[i]*dt0) / r
			for c := 0; c < 3; c++ {
				g[j][c] += f * d[c]
			}
		}
	}
}

// pointChargeEnergy is the Coulomb energy between charges q at x and Q at R.
func pointChargeEnergy(x, R []vec, q, Q []float64) float64 {
	var E float64
	for i := range x {
		for j := range R {
			E += q[i] * Q[j] / norm(sub(R[j], x[i]))
		}
	}
	return E
}

// pointChargeGrad adds the gradient of pointChargeEnergy to gx (QM side, can be nil)
// and gR (MM side, can be nil).
func pointChargeGrad(x, R []vec, q, Q []float64, gx, gR []vec) {
	for i := range x {
		for j := range R {
			d := sub(R[j], x[i])
			r := norm(d)
			f := q[i] * Q[j] / (r * r * r)
			for c := 0; c < 3; c++ {
				if gx != nil {
					gx[i][c] += f * d[c]
				}
				if gR != nil {
					gR[j][c] -= f * d[c]
				}
			}
		}
	}
}

// polarizabilities returns the isotropic polarizability of each atom, from
// its valence charge and width. k scales the volume of each atom.
func polarizabilities(qval, s, k []float64) ([]float64, error) {
	alpha := make([]float64, len(qval))
	for i := range alpha {
		v := -60 * qval[i] * s[i] * s[i] * s[i]
		alpha[i] = v * k[i]
		if alpha[i] <= 0 || math.IsNaN(alpha[i]) {
			return nil, fmt.Errorf("non-positive polarizability %g for atom %d (valence charge %g)", alpha[i], i, qval[i])
		}
	}
	return alpha, nil
}

// tholeMatrix builds the 3Nx3N matrix relating induced dipoles to external fields,
// with Thole-damped dipole-dipole interactions.
func tholeMatrix(x []vec, alpha []float64, athole float64) *mat.Dense {
	n := len(x)
	A := mat.NewDense(3*n, 3*n, nil)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			A.Set(3*i+c, 3*i+c, 1/alpha[i])
		}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d := sub(x[i], x[j])
			r := norm(d)
			au3 := r * r * r / math.Sqrt(alpha[i]*athole*alpha[j]*athole)
			e := math.Exp(-au3)
			l3 := 1 - e
			l5 := 1 - (1+au3)*e
			r3 := r * r * r
			r5 := r3 * r * r
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					var t21 float64
					if a == b {
						t21 = -1 / r3
					}
					t22 := 3 * d[a] * d[b] / r5
					A.Set(3*i+a, 3*j+b, -(l3*t21 + l5*t22))
				}
			}
		}
	}
	return A
}

// fields returns the damped field F (felt by the Slater densities) and the
// undamped field G created by the MM charges on each QM atom, flattened.
func fields(x, R []vec, Q, s []float64) (*mat.VecDense, *mat.VecDense) {
	n := len(x)
	F := mat.NewVecDense(3*n, nil)
	G := mat.NewVecDense(3*n, nil)
	for i := range x {
		for j := range R {
			d := sub(R[j], x[i])
			r := norm(d)
			f1, _ := f1Slater(r, 2*s[i])
			r3 := r * r * r
			for c := 0; c < 3; c++ {
				m := -d[c] / r3
				F.SetVec(3*i+c, F.AtVec(3*i+c)+Q[j]*f1*m)
				G.SetVec(3*i+c, G.AtVec(3*i+c)+Q[j]*m)
			}
		}
	}
	return F, G
}

// induction holds the solution of the induced dipole problem.
type induction struct {
	mu *mat.VecDense //induced dipoles
	nu *mat.VecDense //A^-1 G, needed for the gradient on the MM atoms.
	E  float64
}

func induce(x, R []vec, Q, s, alpha []float64, athole float64, adjoint bool) (*induction, error) {
	A := tholeMatrix(x, alpha, athole)
	F, G := fields(x, R, Q, s)
	ind := new(induction)
	ind.mu = new(mat.VecDense)
	if err := ind.mu.SolveVec(A, F); err != nil {
		return nil, fmt.Errorf("induced dipoles: %w", err)
	}
	ind.E = -0.5 * mat.Dot(ind.mu, G)
	if adjoint {
		ind.nu = new(mat.VecDense)
		if err := ind.nu.SolveVec(A, G); err != nil {
			return nil, fmt.Errorf("induced dipoles (adjoint): %w", err)
		}
	}
	return ind, nil
}

// inducedMMGrad adds the derivative of the induction energy with respect to
// the MM positions to g. ind must have been obtained with adjoint=true.
func inducedMMGrad(x, R []vec, Q, s []float64, ind *induction, g []vec) {
	for i := range x {
		mu := vec{ind.mu.AtVec(3 * i), ind.mu.AtVec(3*i + 1), ind.mu.AtVec(3*i + 2)}
		nu := vec{ind.nu.AtVec(3 * i), ind.nu.AtVec(3*i + 1), ind.nu.AtVec(3*i + 2)}
		for j := range R {
			d := sub(R[j], x[i])
			r := norm(d)
			r3 := r * r * r
			r5 := r3 * r * r
			f1, df1 := f1Slater(r, 2*s[i])
			var m vec
			for c := 0; c < 3; c++ {
				m[c] = -d[c] / r3
			}
			//M is the derivative of m with respect to R[j]. It is symmetric.
			Mmu := vec{}
			Mnu := vec{}
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					M := 3 * d[a] * d[b] / r5
					if a == b {
						M -= 1 / r3
					}
					Mmu[a] += M * mu[b]
					Mnu[a] += M * nu[b]
				}
			}
			nm := dot(nu, m)
			for c := 0; c < 3; c++ {
				g[j][c] += -0.5 * Q[j] * (Mmu[c] + f1*Mnu[c] + nm*df1*d[c]/r)
			}
		}
	}
}
