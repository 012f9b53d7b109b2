/*
 * v3_test.go, part of goemle.
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

package v3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatrix(Te *testing.T) {
	A, err := NewMatrix([]float64{1, 2, 3, 4, 5, 6})
	require.NoError(Te, err)
	assert.Equal(Te, 2, A.NVecs())
	assert.Equal(Te, [3]float64{4, 5, 6}, A.Vec(1))

	_, err = NewMatrix([]float64{1, 2, 3, 4})
	require.Error(Te, err)
	_, err = NewMatrix(nil)
	require.Error(Te, err)
}

func TestRowsRoundTrip(Te *testing.T) {
	rows := [][]float64{{0, 0, 0}, {1.5, -2, 3}}
	A, err := FromRows(rows)
	require.NoError(Te, err)
	assert.Equal(Te, rows, A.Rows())
	assert.Equal(Te, []float64{0, 0, 0, 1.5, -2, 3}, A.Raw())

	_, err = FromRows([][]float64{{1, 2}})
	require.Error(Te, err)
}

func TestGeo(Te *testing.T) {
	A, _ := NewMatrix([]float64{0, 0, 0, 3, 4, 0})
	d, n := Displacement(A, 0, A, 1)
	assert.Equal(Te, [3]float64{3, 4, 0}, d)
	assert.InDelta(Te, 5.0, n, 1e-12)
	assert.InDelta(Te, 5.0, Dist(A, 1, A, 0), 1e-12)

	B := A.Clone()
	B.AddToVec(1, [3]float64{0, 0, 1})
	assert.Equal(Te, [3]float64{3, 4, 1}, B.Vec(1))
	assert.Equal(Te, [3]float64{3, 4, 0}, A.Vec(1), "Clone must not share data")

	S := Stack(A, B.VecView(1))
	assert.Equal(Te, 3, S.NVecs())
	assert.Equal(Te, [3]float64{3, 4, 1}, S.Vec(2))

	H := A.Scaled(0.5)
	assert.Equal(Te, [3]float64{1.5, 2, 0}, H.Vec(1))
	assert.True(Te, Equal(H.Scaled(2), A, 1e-12))
	assert.False(Te, Equal(H, A, 1e-12))
}
