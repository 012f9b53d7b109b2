/*
 * engrad.go, part of goemle.
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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// ReadEngrad reads an ORCA .engrad file, and returns the energy, in Hartree,
// and the gradient, in Hartree/Bohr. The coordinate block, if present, is not read.
func ReadEngrad(r io.Reader) (float64, *v3.Matrix, error) {
	var vals []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		l := strings.TrimSpace(s.Text())
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		vals = append(vals, l)
	}
	if err := s.Err(); err != nil {
		return 0, nil, err
	}
	if len(vals) < 2 {
		return 0, nil, fmt.Errorf("engrad: truncated file")
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil || n <= 0 {
		return 0, nil, fmt.Errorf("engrad: bad number of atoms %q", vals[0])
	}
	E, err := strconv.ParseFloat(vals[1], 64)
	if err != nil {
		return 0, nil, fmt.Errorf("engrad: bad energy: %w", err)
	}
	if len(vals) < 2+3*n {
		return 0, nil, fmt.Errorf("engrad: %d gradient components expected, %d found", 3*n, len(vals)-2)
	}
	g, err := parsefloats(vals[2 : 2+3*n])
	if err != nil {
		return 0, nil, fmt.Errorf("engrad: %w", err)
	}
	G, err := v3.NewMatrix(g)
	return E, G, err
}

// ReadEngradFile is like ReadEngrad, but reads from the file name.
func ReadEngradFile(name string) (float64, *v3.Matrix, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	return ReadEngrad(f)
}

// WriteEngrad writes energy (Hartree), gradient (Hartree/Bohr) and the geometry
// (A, converted to Bohr in the file) in the ORCA .engrad format.
func WriteEngrad(w io.Writer, energy float64, grad *v3.Matrix, z []int, coords *v3.Matrix) error {
	n := grad.NVecs()
	if len(z) != n || coords.NVecs() != n {
		return emle.Errorf(emle.MalformedRequest, "WriteEngrad", "%d gradients for %d atoms", n, len(z))
	}
	b := bufio.NewWriter(w)
	fmt.Fprintf(b, "#\n# Number of atoms\n#\n%d\n", n)
	fmt.Fprintf(b, "#\n# The current total energy in Eh\n#\n%22.12f\n", energy)
	fmt.Fprintf(b, "#\n# The current gradient in Eh/bohr\n#\n")
	for i := 0; i < n; i++ {
		v := grad.Vec(i)
		for _, c := range v {
			fmt.Fprintf(b, "%22.12f\n", c)
		}
	}
	fmt.Fprintf(b, "#\n# The atomic numbers and current coordinates in Bohr\n#\n")
	for i := 0; i < n; i++ {
		v := coords.Vec(i)
		fmt.Fprintf(b, "%4d %14.7f %14.7f %14.7f\n", z[i], v[0]*emle.A2Bohr, v[1]*emle.A2Bohr, v[2]*emle.A2Bohr)
	}
	return b.Flush()
}

func parsefloats(s []string) ([]float64, error) {
	ret := make([]float64, len(s))
	for i, v := range s {
		f, err := strconv.ParseFloat(strings.Replace(v, "D", "E", 1), 64)
		if err != nil {
			return nil, err
		}
		ret[i] = f
	}
	return ret, nil
}
