/*
 * gonum.go, part of goemle.
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
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a set of vectors in 3D space.
// Within the package it is understood that a "vector" is a row vector, i.e. the
// cartesian coordinates of a point in 3D space.
type Matrix struct {
	*mat.Dense
}

// NewMatrix generates and returns a Matrix with 3 columns from data.
// data is used as the backing slice, it is not copied.
func NewMatrix(data []float64) (*Matrix, error) {
	const cols int = 3
	l := len(data)
	rows := l / cols
	if l%cols != 0 || l == 0 {
		return nil, Error{fmt.Sprintf("input slice length %d not divisible by %d, or empty", l, cols), []string{"NewMatrix"}, true}
	}
	return &Matrix{mat.NewDense(rows, cols, data)}, nil
}

// Zeros returns a zero-filled Matrix with vecs vectors.
func Zeros(vecs int) *Matrix {
	return &Matrix{mat.NewDense(vecs, 3, make([]float64, vecs*3))}
}

// NVecs returns the number of vectors (rows) in the receiver
func (F *Matrix) NVecs() int {
	if F == nil || F.Dense == nil {
		return 0
	}
	r, _ := F.Dims()
	return r
}

// Vec returns a copy of the ith vector.
func (F *Matrix) Vec(i int) [3]float64 {
	return [3]float64{F.At(i, 0), F.At(i, 1), F.At(i, 2)}
}

// SetVec sets the ith vector of the receiver to v.
func (F *Matrix) SetVec(i int, v [3]float64) {
	F.Set(i, 0, v[0])
	F.Set(i, 1, v[1])
	F.Set(i, 2, v[2])
}

// AddToVec adds v to the ith vector of the receiver.
func (F *Matrix) AddToVec(i int, v [3]float64) {
	for j := 0; j < 3; j++ {
		F.Set(i, j, F.At(i, j)+v[j])
	}
}

// VecView returns a view of the ith vector.
func (F *Matrix) VecView(i int) *Matrix {
	return &Matrix{F.Dense.Slice(i, i+1, 0, 3).(*mat.Dense)}
}

// Clone returns a deep copy of the receiver.
func (F *Matrix) Clone() *Matrix {
	return &Matrix{mat.DenseCopyOf(F.Dense)}
}

// Raw returns the elements of the receiver, row by row, in a new slice.
func (F *Matrix) Raw() []float64 {
	n := F.NVecs()
	ret := make([]float64, 0, 3*n)
	for i := 0; i < n; i++ {
		ret = append(ret, F.At(i, 0), F.At(i, 1), F.At(i, 2))
	}
	return ret
}

// Rows returns the receiver as a slice of 3-element slices.
func (F *Matrix) Rows() [][]float64 {
	n := F.NVecs()
	ret := make([][]float64, n)
	for i := range ret {
		ret[i] = []float64{F.At(i, 0), F.At(i, 1), F.At(i, 2)}
	}
	return ret
}

// FromRows builds a Matrix from a slice of 3-element slices.
func FromRows(rows [][]float64) (*Matrix, error) {
	data := make([]float64, 0, 3*len(rows))
	for i, r := range rows {
		if len(r) != 3 {
			return nil, Error{fmt.Sprintf("row %d has %d elements, 3 expected", i, len(r)), []string{"FromRows"}, true}
		}
		data = append(data, r...)
	}
	if len(data) == 0 {
		return nil, Error{"no rows given", []string{"FromRows"}, true}
	}
	return NewMatrix(data)
}

// Scaled returns a copy of the receiver with every element multiplied by f.
func (F *Matrix) Scaled(f float64) *Matrix {
	r := Zeros(F.NVecs())
	r.Scale(f, F.Dense)
	return r
}

// Displacement returns the vector from the ith vector of F to the jth vector of G,
// that is, G[j]-F[i], and its norm.
func Displacement(F *Matrix, i int, G *Matrix, j int) ([3]float64, float64) {
	var d [3]float64
	var n float64
	for k := 0; k < 3; k++ {
		d[k] = G.At(j, k) - F.At(i, k)
		n += d[k] * d[k]
	}
	return d, math.Sqrt(n)
}

// Dist returns the distance between the ith vector of F and the jth vector of G.
func Dist(F *Matrix, i int, G *Matrix, j int) float64 {
	_, n := Displacement(F, i, G, j)
	return n
}

// Stack returns a new matrix with the vectors of A followed by those of B.
func Stack(A, B *Matrix) *Matrix {
	na, nb := A.NVecs(), B.NVecs()
	r := Zeros(na + nb)
	for i := 0; i < na; i++ {
		r.SetVec(i, A.Vec(i))
	}
	for i := 0; i < nb; i++ {
		r.SetVec(na+i, B.Vec(i))
	}
	return r
}

// Equal returns true if A and B have the same shape and all their elements
// differ by at most epsilon.
func Equal(A, B *Matrix, epsilon float64) bool {
	if A.NVecs() != B.NVecs() {
		return false
	}
	return mat.EqualApprox(A.Dense, B.Dense, epsilon)
}

func (F *Matrix) String() string {
	if F == nil || F.Dense == nil {
		return "<nil>"
	}
	var b strings.Builder
	for i := 0; i < F.NVecs(); i++ {
		fmt.Fprintf(&b, "%12.6f %12.6f %12.6f\n", F.At(i, 0), F.At(i, 1), F.At(i, 2))
	}
	return b.String()
}

// Error is the error type for the package. It has the same
// methods as emle.Error, minus the kind, to avoid a circular import.
type Error struct {
	message  string
	deco     []string
	critical bool
}

// Error returns a string with an error message.
func (err Error) Error() string {
	return fmt.Sprintf("v3: %s", err.message)
}

// Decorate will add the dec string to the decoration slice of strings of the error,
// and return the resulting slice.
func (err Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

// Critical return whether the error is critical or it can be ignored
func (err Error) Critical() bool { return err.critical }
