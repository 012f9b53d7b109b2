/*
 * orcafile_test.go, part of goemle.
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

package orcafile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/internal/protocol"
	"github.com/rmera/goemle/qm"
	v3 "github.com/rmera/goemle/v3"
)

const sanderInput = `! BLYP 6-31G* EnGrad
%pal nprocs 1 end
%pointcharges "ptchrg.xyz"
*xyzfile 0 1 inpfile.xyz
`

const sanderXYZ = `3

O 0.000 0.000 0.1171
H 0.000 0.7572 -0.4683
H 0.000 -0.7572 -0.4683
`

const sanderCharges = `2
 -0.834  3.000 0.000 0.000
  0.417  3.500 0.800 0.000
`

// sanderFiles writes the files sander leaves for ORCA and returns the input name.
func sanderFiles(Te *testing.T) string {
	dir := Te.TempDir()
	for name, content := range map[string]string{"orc_job.inp": sanderInput, "inpfile.xyz": sanderXYZ, "ptchrg.xyz": sanderCharges} {
		require.NoError(Te, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return filepath.Join(dir, "orc_job.inp")
}

func TestReadInput(Te *testing.T) {
	name := sanderFiles(Te)
	I, err := ReadInput(name)
	require.NoError(Te, err)
	dir := filepath.Dir(name)
	assert.Equal(Te, filepath.Join(dir, "orc_job"), I.Base)
	assert.Equal(Te, filepath.Join(dir, "inpfile.xyz"), I.XYZFile)
	assert.Equal(Te, filepath.Join(dir, "ptchrg.xyz"), I.PointCharges)
	assert.Equal(Te, 0, I.Charge)
	assert.Equal(Te, 1, I.Multi)

	J, err := I.Job("id")
	require.NoError(Te, err)
	assert.Equal(Te, []int{8, 1, 1}, J.Z)
	assert.Equal(Te, 2, J.NMM)
	assert.Equal(Te, []float64{-0.834, 0.417}, J.MMCharges)
	assert.Equal(Te, []float64{3, 0, 0, 3.5, 0.8, 0}, J.MMCoords)
	_, err = J.QM()
	assert.NoError(Te, err)
}

func TestInlineGeometry(Te *testing.T) {
	in := "! XTB2 EnGrad\n* xyz -1 2\nC 0 0 0\nH 1.09 0 0 # a comment\n*\n"
	I, err := readInput(strings.NewReader(in), "/tmp")
	require.NoError(Te, err)
	assert.Equal(Te, -1, I.Charge)
	assert.Equal(Te, 2, I.Multi)
	assert.Equal(Te, []int{6, 1}, I.Z)
	J, err := I.Job("x")
	require.NoError(Te, err)
	assert.Equal(Te, 0, J.NMM)
	assert.Equal(Te, 1.09, J.Coords[3])
}

func TestBadInput(Te *testing.T) {
	for name, in := range map[string]string{
		"no geometry":  "! EnGrad\n",
		"multiplicity": "*xyzfile 0 0 a.xyz\n",
		"charge":       "*xyzfile x 1 a.xyz\n",
		"no file":      "*xyzfile 0 1\n",
		"gzmt":         "* int 0 1\n",
		"unterminated": "* xyz 0 1\nO 0 0 0\n",
		"element":      "* xyz 0 1\nXx 0 0 0\n*\n",
		"pointcharges": "%pointcharges\n*xyzfile 0 1 a.xyz\n",
	} {
		_, err := readInput(strings.NewReader(in), ".")
		assert.ErrorIs(Te, err, emle.ErrMalformedRequest, name)
	}
	_, err := ReadInput(filepath.Join(Te.TempDir(), "missing.inp"))
	assert.ErrorIs(Te, err, emle.ErrMalformedRequest)

	I := &Input{XYZFile: filepath.Join(Te.TempDir(), "missing.xyz")}
	_, err = I.Job("x")
	assert.ErrorIs(Te, err, emle.ErrMalformedRequest)
}

func TestPointCharges(Te *testing.T) {
	q, R, err := ReadPointCharges(strings.NewReader("2\n1.0D-1 0 0 0\n\n-0.1 1 2 3\n"))
	require.NoError(Te, err)
	assert.Equal(Te, []float64{0.1, -0.1}, q)
	assert.Equal(Te, [3]float64{1, 2, 3}, R.Vec(1))

	var buf bytes.Buffer
	require.NoError(Te, WritePointCharges(&buf, q, R))
	q2, R2, err := ReadPointCharges(&buf)
	require.NoError(Te, err)
	assert.Equal(Te, q, q2)
	assert.True(Te, v3.Equal(R, R2, 1e-8))

	q, R, err = ReadPointCharges(strings.NewReader("0\n"))
	require.NoError(Te, err)
	assert.Empty(Te, q)
	assert.Nil(Te, R)

	for _, bad := range []string{"", "two\n", "2\n0.1 0 0 0\n", "1\n0.1 0 0\n"} {
		_, _, err := ReadPointCharges(strings.NewReader(bad))
		assert.ErrorIs(Te, err, emle.ErrMalformedRequest, bad)
	}
}

func TestWriteResult(Te *testing.T) {
	name := sanderFiles(Te)
	I, err := ReadInput(name)
	require.NoError(Te, err)
	J, err := I.Job("id")
	require.NoError(Te, err)
	r := &protocol.Result{
		EVac:   -76.1,
		ETot:   -76.2,
		GradQM: []float64{0.01, 0.02, 0.03, -0.01, 0, 0, 0, -0.02, -0.03},
		GradMM: []float64{0.001, 0, 0, 0, -0.002, 0.0005},
	}
	require.NoError(Te, I.WriteResult(J, r))

	E, G, err := qm.ReadEngradFile(I.Base + ".engrad")
	require.NoError(Te, err)
	assert.Equal(Te, -76.2, E)
	assert.InDeltaSlice(Te, r.GradQM, G.Raw(), 1e-12)

	f, err := os.Open(I.Base + ".pcgrad")
	require.NoError(Te, err)
	defer f.Close()
	P, err := ReadPCGrad(f)
	require.NoError(Te, err)
	assert.InDeltaSlice(Te, r.GradMM, P.Raw(), 1e-12)

	//no MM gradient from the server: zeros for every charge.
	r.GradMM = nil
	require.NoError(Te, I.WriteResult(J, r))
	data, err := os.ReadFile(I.Base + ".pcgrad")
	require.NoError(Te, err)
	P, err = ReadPCGrad(bytes.NewReader(data))
	require.NoError(Te, err)
	assert.Equal(Te, make([]float64, 6), P.Raw())

	r.GradMM = []float64{1, 2, 3}
	assert.ErrorIs(Te, I.WriteResult(J, r), emle.ErrMalformedRequest)
}
