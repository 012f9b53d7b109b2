/*
 * files.go, part of goemle.
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

package emle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	v3 "github.com/rmera/goemle/v3"
)

// XYZRead reads one frame in XYZ format from r and returns the atomic
// numbers and the coordinates (in A) of the atoms in it.
func XYZRead(r io.Reader) ([]int, *v3.Matrix, error) {
	in := bufio.NewReader(r)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return nil, nil, fmt.Errorf("xyz: can't read atom number: %w", err)
	}
	natoms, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return nil, nil, fmt.Errorf("xyz: can't read atom number from %q: %w", strings.TrimSpace(line), err)
	}
	if natoms <= 0 {
		return nil, nil, fmt.Errorf("xyz: %d atoms declared", natoms)
	}
	in.ReadString('\n') //comment line, we don't care.
	zs := make([]int, 0, natoms)
	coords := v3.Zeros(natoms)
	for i := 0; i < natoms; i++ {
		line, err = in.ReadString('\n')
		if err != nil && line == "" {
			return nil, nil, fmt.Errorf("xyz: %d atoms declared but only %d read: %w", natoms, i, err)
		}
		f := strings.Fields(line)
		if len(f) < 4 {
			return nil, nil, fmt.Errorf("xyz: ill-formatted line %d: %q", i+3, strings.TrimSpace(line))
		}
		z, err := Symbol2Z(f[0])
		if err != nil {
			return nil, nil, fmt.Errorf("xyz: line %d: %w", i+3, err)
		}
		zs = append(zs, z)
		for j := 0; j < 3; j++ {
			c, err := strconv.ParseFloat(f[j+1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("xyz: line %d: %w", i+3, err)
			}
			coords.Set(i, j, c)
		}
	}
	return zs, coords, nil
}

// XYZFileRead opens the file named xyzname and reads it with XYZRead
func XYZFileRead(xyzname string) ([]int, *v3.Matrix, error) {
	f, err := os.Open(xyzname)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return XYZRead(f)
}

// XYZWrite writes the atoms with atomic numbers zs and coordinates coords (in A)
// to w, in XYZ format.
func XYZWrite(w io.Writer, zs []int, coords *v3.Matrix, comment string) error {
	if len(zs) != coords.NVecs() {
		return fmt.Errorf("xyz: %d elements but %d coordinates", len(zs), coords.NVecs())
	}
	out := bufio.NewWriter(w)
	fmt.Fprintf(out, "%d\n%s\n", len(zs), strings.ReplaceAll(comment, "\n", " "))
	for i, z := range zs {
		c := coords.Vec(i)
		fmt.Fprintf(out, "%-2s  %14.8f %14.8f %14.8f\n", Z2Symbol(z), c[0], c[1], c[2])
	}
	return out.Flush()
}

// XYZFileWrite writes the given atoms to the file xyzname.
func XYZFileWrite(xyzname string, zs []int, coords *v3.Matrix, comment string) error {
	f, err := os.Create(xyzname)
	if err != nil {
		return err
	}
	if err := XYZWrite(f, zs, coords, comment); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
