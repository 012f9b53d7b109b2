/*
 * energy.go, part of goemle.
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

package top

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// nbPair is a non-bonded interaction between two atoms, with its
// Lennard-Jones C6 and C12 and the product of the charges, already scaled.
type nbPair struct {
	i, j    int
	c6, c12 float64
	qq      float64
}

// Model is a force field ready to be evaluated: the non-bonded pair list has been
// built once from the bonds, the exclusions and the 1-4 pairs.
type Model struct {
	F  *FF
	nb []nbPair
}

// Compile builds the non-bonded pair list of the force field. Atom pairs closer than
// NrExcl bonds, or explicitly excluded, don't interact, except for the ones in the
// pairs section, which are scaled by the fudge factors.
func (F *FF) Compile() (*Model, error) {
	n := len(F.Atoms)
	if n == 0 {
		return nil, fmt.Errorf("empty force field")
	}
	lj := make([][2]float64, n)
	for i, a := range F.Atoms {
		t, ok := F.ATypes[a.Type]
		if !ok {
			return nil, fmt.Errorf("atom %d (%s) has unknown type %s", i+1, a.Name, a.Type)
		}
		lj[i] = [2]float64{t.V, t.W}
	}
	excl := F.excluded()
	M := &Model{F: F}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if excl[[2]int{i, j}] {
				continue
			}
			c6, c12 := F.combine(lj[i], lj[j])
			M.nb = append(M.nb, nbPair{i: i, j: j, c6: c6, c12: c12, qq: F.Atoms[i].Charge * F.Atoms[j].Charge})
		}
	}
	for _, p := range F.Pairs {
		if p.FuncType != 1 {
			return nil, fmt.Errorf("unsupported pair function %d", p.FuncType)
		}
		i, j := p.IDs[0], p.IDs[1]
		if i < 0 || j < 0 || i >= n || j >= n {
			return nil, fmt.Errorf("pair %d-%d out of range", i+1, j+1)
		}
		var c6, c12 float64
		switch {
		case len(p.LJ) == 2:
			c6, c12 = F.ljParams(p.LJ[0], p.LJ[1])
		case F.GenPairs:
			c6, c12 = F.combine(lj[i], lj[j])
			c6 *= F.FudgeLJ
			c12 *= F.FudgeLJ
		default:
			return nil, fmt.Errorf("pair %d-%d has no parameters and gen-pairs is off", i+1, j+1)
		}
		qq := F.FudgeQQ * F.Atoms[i].Charge * F.Atoms[j].Charge
		M.nb = append(M.nb, nbPair{i: i, j: j, c6: c6, c12: c12, qq: qq})
	}
	for _, set := range [][]*Term{F.Bonds, F.Angles, F.Dihedrals} {
		for _, t := range set {
			for _, id := range t.IDs {
				if id < 0 || id >= n {
					return nil, fmt.Errorf("term refers to atom %d, but there are %d atoms", id+1, n)
				}
			}
		}
	}
	return M, nil
}

// excluded returns the set of atom pairs (i<j) that are within NrExcl bonds
// of each other, or explicitly excluded.
func (F *FF) excluded() map[[2]int]bool {
	n := len(F.Atoms)
	adj := make([][]int, n)
	for _, b := range F.Bonds {
		i, j := b.IDs[0], b.IDs[1]
		if i < 0 || j < 0 || i >= n || j >= n {
			continue
		}
		adj[i] = append(adj[i], j)
		adj[j] = append(adj[j], i)
	}
	key := func(i, j int) [2]int {
		if i > j {
			i, j = j, i
		}
		return [2]int{i, j}
	}
	ret := make(map[[2]int]bool)
	for s := 0; s < n; s++ {
		dist := map[int]int{s: 0}
		queue := []int{s}
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			if dist[c] >= F.NrExcl {
				continue
			}
			for _, nb := range adj[c] {
				if _, seen := dist[nb]; !seen {
					dist[nb] = dist[c] + 1
					queue = append(queue, nb)
					ret[key(s, nb)] = true
				}
			}
		}
	}
	for _, ex := range F.Exclusions {
		for _, j := range ex[1:] {
			if ex[0] != j {
				ret[key(ex[0], j)] = true
			}
		}
	}
	return ret
}

// ljParams turns a pair of V, W values into C6 and C12, according to the combination rule.
func (F *FF) ljParams(v, w float64) (c6, c12 float64) {
	if F.CombRule == 1 {
		return v, w
	}
	s6 := math.Pow(v, 6)
	return 4 * w * s6, 4 * w * s6 * s6
}

func (F *FF) combine(a, b [2]float64) (c6, c12 float64) {
	switch F.CombRule {
	case 1:
		return math.Sqrt(a[0] * b[0]), math.Sqrt(a[1] * b[1])
	case 3:
		return F.ljParams(math.Sqrt(a[0]*b[0]), math.Sqrt(a[1]*b[1]))
	}
	return F.ljParams((a[0]+b[0])/2, math.Sqrt(a[1]*b[1]))
}

// Energy returns the force-field energy, in Hartree, of the molecule with
// the given coordinates, in A.
func (M *Model) Energy(coords *v3.Matrix) (float64, error) {
	if coords.NVecs() != len(M.F.Atoms) {
		return 0, fmt.Errorf("%d coordinates for a topology of %d atoms", coords.NVecs(), len(M.F.Atoms))
	}
	x := make([]r3.Vec, coords.NVecs())
	for i := range x {
		v := coords.Vec(i)
		x[i] = r3.Vec{X: v[0] * emle.A2Nm, Y: v[1] * emle.A2Nm, Z: v[2] * emle.A2Nm}
	}
	return M.energy(x) * emle.KJ2H, nil
}

// Gradient returns the energy, in Hartree, and its gradient in Hartree/Bohr,
// obtained by central finite differences.
func (M *Model) Gradient(coords *v3.Matrix) (float64, *v3.Matrix, error) {
	E, err := M.Energy(coords)
	if err != nil {
		return 0, nil, err
	}
	const h = 1e-5 //nm
	x := make([]r3.Vec, coords.NVecs())
	for i := range x {
		v := coords.Vec(i)
		x[i] = r3.Vec{X: v[0] * emle.A2Nm, Y: v[1] * emle.A2Nm, Z: v[2] * emle.A2Nm}
	}
	g := v3.Zeros(len(x))
	//kJ/mol/nm to Hartree/Bohr
	f := emle.KJ2H / (10 * emle.A2Bohr)
	for i := range x {
		var gi [3]float64
		for c := 0; c < 3; c++ {
			orig := x[i]
			x[i] = displace(orig, c, h)
			ep := M.energy(x)
			x[i] = displace(orig, c, -h)
			em := M.energy(x)
			x[i] = orig
			gi[c] = f * (ep - em) / (2 * h)
		}
		g.SetVec(i, gi)
	}
	return E, g, nil
}

func displace(v r3.Vec, c int, h float64) r3.Vec {
	switch c {
	case 0:
		v.X += h
	case 1:
		v.Y += h
	default:
		v.Z += h
	}
	return v
}

// energy returns the energy in kJ/mol for coordinates in nm.
func (M *Model) energy(x []r3.Vec) float64 {
	F := M.F
	var E float64
	for _, b := range F.Bonds {
		d := r3.Norm(r3.Sub(x[b.IDs[1]], x[b.IDs[0]])) - b.Eq
		E += 0.5 * b.K * d * d
	}
	for _, a := range F.Angles {
		th := angle(x[a.IDs[0]], x[a.IDs[1]], x[a.IDs[2]])
		d := th - a.Eq*emle.Deg2Rad
		E += 0.5 * a.K * d * d
		if a.FuncType == 5 {
			d13 := r3.Norm(r3.Sub(x[a.IDs[2]], x[a.IDs[0]])) - a.UB[0]
			E += 0.5 * a.UB[1] * d13 * d13
		}
	}
	for _, d := range F.Dihedrals {
		phi := dihedral(x[d.IDs[0]], x[d.IDs[1]], x[d.IDs[2]], x[d.IDs[3]])
		switch d.FuncType {
		case 2:
			dx := math.Remainder(phi-d.Eq*emle.Deg2Rad, 2*math.Pi)
			E += 0.5 * d.K * dx * dx
		case 3:
			c := math.Cos(phi - math.Pi)
			p := 1.0
			for _, cn := range d.RB {
				E += cn * p
				p *= c
			}
		default:
			E += d.K * (1 + math.Cos(float64(d.Mult)*phi-d.Eq*emle.Deg2Rad))
		}
	}
	for _, p := range M.nb {
		r := r3.Norm(r3.Sub(x[p.j], x[p.i]))
		r6 := math.Pow(r, 6)
		E += p.c12/(r6*r6) - p.c6/r6
		E += emle.CoulombKJ * p.qq / r
	}
	return E
}

// angle returns the a-b-c angle in radians.
func angle(a, b, c r3.Vec) float64 {
	u := r3.Sub(a, b)
	v := r3.Sub(c, b)
	cos := r3.Dot(u, v) / (r3.Norm(u) * r3.Norm(v))
	return math.Acos(math.Max(-1, math.Min(1, cos)))
}

// dihedral returns the a-b-c-d dihedral in radians, 180 degrees for trans.
func dihedral(a, b, c, d r3.Vec) float64 {
	b1 := r3.Sub(b, a)
	b2 := r3.Sub(c, b)
	b3 := r3.Sub(d, c)
	n1 := r3.Cross(b1, b2)
	n2 := r3.Cross(b2, b3)
	y := r3.Norm(b2) * r3.Dot(b1, n2)
	return math.Atan2(y, r3.Dot(n1, n2))
}
