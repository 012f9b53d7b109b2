/*
 * top_test.go, part of goemle.
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
	"bufio"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

const waterTypes = `
[ atomtypes ]
; name  at.num   mass     charge ptype  sigma      epsilon
  OW       8   15.99940   0.000   A    0.315061   0.636386
  HW       1    1.00800   0.000   A    0.0        0.0
`

const waterITP = `
[ defaults ]
; nbfunc comb-rule gen-pairs fudgeLJ fudgeQQ
  1       2         yes       0.5     0.8333

#include "types.itp"

[ moleculetype ]
; name nrexcl
SOL  2

[ atoms ]
  1  OW  1  SOL  OW  1  -0.834   15.9994
  2  HW  1  SOL  HW1 1   0.417    1.008
  3  HW  1  SOL  HW2 1   0.417    1.008

[ bonds ]
1 2 1 0.09572 502416.0
1 3 1 0.09572 502416.0

[ angles ]
2 1 3 1 104.52 628.02

#ifdef FLEXIBLE
[ exclusions ]
1 2 3
#else
[ constraints ]
1 2 1 0.09572
#endif
`

func writeWater(Te *testing.T) string {
	dir := Te.TempDir()
	require.NoError(Te, os.WriteFile(filepath.Join(dir, "types.itp"), []byte(waterTypes), 0o644))
	name := filepath.Join(dir, "water.itp")
	require.NoError(Te, os.WriteFile(name, []byte(waterITP), 0o644))
	return name
}

func waterCoords(Te *testing.T, stretch float64) *v3.Matrix {
	th := 104.52 * emle.Deg2Rad
	c, err := v3.NewMatrix([]float64{
		0, 0, 0,
		0.9572 + stretch, 0, 0,
		0.9572 * math.Cos(th), 0.9572 * math.Sin(th), 0,
	})
	require.NoError(Te, err)
	return c
}

func TestReadWater(Te *testing.T) {
	name := writeWater(Te)
	_, err := ReadFile(name)
	assert.Error(Te, err, "constraints should be rejected")
	F, err := ReadFile(name, "FLEXIBLE")
	require.NoError(Te, err)
	assert.Equal(Te, "SOL", F.Name)
	assert.Equal(Te, 2, F.NrExcl)
	assert.Equal(Te, 2, F.CombRule)
	assert.InDelta(Te, 0.8333, F.FudgeQQ, 1e-12)
	require.Len(Te, F.Atoms, 3)
	assert.Equal(Te, "HW2", F.Atoms[2].Name)
	assert.InDeltaSlice(Te, []float64{-0.834, 0.417, 0.417}, F.Charges(), 1e-12)
	require.Len(Te, F.Bonds, 2)
	assert.Equal(Te, []int{0, 2}, F.Bonds[1].IDs)
	require.Len(Te, F.Angles, 1)
	assert.InDelta(Te, 104.52, F.Angles[0].Eq, 1e-12)
	assert.Equal(Te, [][]int{{0, 1, 2}}, F.Exclusions)
	require.Contains(Te, F.ATypes, "OW")
	assert.InDelta(Te, 0.315061, F.ATypes["OW"].V, 1e-12)
}

func TestWaterEnergy(Te *testing.T) {
	F, err := ReadFile(writeWater(Te), "FLEXIBLE")
	require.NoError(Te, err)
	M, err := F.Compile()
	require.NoError(Te, err)
	assert.Empty(Te, M.nb, "all water pairs are excluded")

	E, err := M.Energy(waterCoords(Te, 0))
	require.NoError(Te, err)
	assert.InDelta(Te, 0, E, 1e-10)

	//0.1 A is 0.01 nm
	E, g, err := M.Gradient(waterCoords(Te, 0.1))
	require.NoError(Te, err)
	assert.InDelta(Te, 0.5*502416.0*1e-4*emle.KJ2H, E, 1e-8)
	want := 502416.0 * 0.01 * emle.KJ2H / (10 * emle.A2Bohr)
	assert.InEpsilon(Te, want, g.Vec(1)[0], 1e-4)
	var sum [3]float64
	for i := 0; i < g.NVecs(); i++ {
		v := g.Vec(i)
		for c := range sum {
			sum[c] += v[c]
		}
	}
	for _, s := range sum {
		assert.InDelta(Te, 0, s, 1e-6)
	}

	_, err = M.Energy(waterCoords(Te, 0).VecView(0))
	assert.Error(Te, err)
}

func TestNonBonded(Te *testing.T) {
	const itp = `
[ atomtypes ]
 A  12.0 0.0 A 0.3 0.5
[ moleculetype ]
ion 3
[ atoms ]
1 A 1 ION P 1  0.5
2 A 1 ION N 1 -0.5
`
	F := NewFF()
	require.NoError(Te, F.Fill(bufio.NewReader(strings.NewReader(itp)), false))
	M, err := F.Compile()
	require.NoError(Te, err)
	require.Len(Te, M.nb, 1)
	c, err := v3.NewMatrix([]float64{0, 0, 0, 4, 0, 0})
	require.NoError(Te, err)
	E, err := M.Energy(c)
	require.NoError(Te, err)
	sr := 0.3 / 0.4
	want := 4*0.5*(math.Pow(sr, 12)-math.Pow(sr, 6)) - emle.CoulombKJ*0.25/0.4
	assert.InDelta(Te, want*emle.KJ2H, E, 1e-10)
}

func TestDihedrals(Te *testing.T) {
	a := [4][3]float64{{1, 1, 0}, {1, 0, 0}, {2, 0, 0}, {2, -1, 0}}
	c, err := v3.FromRows([][]float64{a[0][:], a[1][:], a[2][:], a[3][:]})
	require.NoError(Te, err)
	F := NewFF()
	for i := 0; i < 4; i++ {
		F.Atoms = append(F.Atoms, &Atom{ID: i + 1, Type: "C"})
	}
	F.ATypes["C"] = &AtomType{Name: "C"}
	F.Dihedrals = []*Term{
		{FuncType: 9, IDs: []int{0, 1, 2, 3}, Eq: 0, K: 2, Mult: 1},
		{FuncType: 3, IDs: []int{0, 1, 2, 3}, RB: []float64{1, 1, 0, 0, 0, 0}},
	}
	M, err := F.Compile()
	require.NoError(Te, err)
	E, err := M.Energy(c)
	require.NoError(Te, err)
	//trans: k(1+cos(180)) = 0, and psi=phi-180=0 so RB = C0+C1
	assert.InDelta(Te, 2*emle.KJ2H, E, 1e-10)

	F.Dihedrals[0].IDs = []int{0, 1, 2, 7}
	_, err = F.Compile()
	assert.Error(Te, err)
}

func TestTermFromGro(Te *testing.T) {
	T, err := TermFromGro("1 2 3 4 3 1 2 3 4 5 6 ; RB", "dihedrals")
	require.NoError(Te, err)
	assert.Equal(Te, []float64{1, 2, 3, 4, 5, 6}, T.RB)
	_, err = TermFromGro("1 2 5 1.0", "angles")
	assert.Error(Te, err)
	_, err = TermFromGro("1 2 1", "bonds")
	assert.Error(Te, err)
	T, err = TermFromGro("1 2 1 0.1 1000", "bonds")
	require.NoError(Te, err)
	assert.Equal(Te, []int{0, 1}, T.IDs)
}
