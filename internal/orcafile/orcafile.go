/*
 * orcafile.go, part of goemle.
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

// Package orcafile reads the files an MD driver writes for ORCA (the input,
// the QM geometry and the point charges) and writes the ones it reads back:
// the .engrad file, with the energy and QM gradient, and the .pcgrad file,
// with the gradient on the point charges.
package orcafile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/internal/protocol"
	"github.com/rmera/goemle/qm"
	v3 "github.com/rmera/goemle/v3"
)

var fi func(string) []string = strings.Fields

// Input is what the driver asked for in an ORCA input file.
type Input struct {
	//Base is the input name without extension, with its directory.
	//The output files are Base.engrad and Base.pcgrad.
	Base          string
	Charge, Multi int
	//XYZFile is empty if the geometry was given inline, then Z and Coords
	//are already filled.
	XYZFile string
	//PointCharges is empty if there are no MM charges.
	PointCharges string
	Z            []int
	Coords       *v3.Matrix
}

// ReadInput parses the ORCA input file name. Only the geometry, the charge,
// the multiplicity and the point charges are taken from it; keywords are ignored.
func ReadInput(name string) (*Input, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, emle.Errorf(emle.MalformedRequest, "ReadInput", "%w", err)
	}
	defer f.Close()
	I, err := readInput(f, filepath.Dir(name))
	if err != nil {
		return nil, emle.Decorate(err, "ReadInput")
	}
	I.Base = strings.TrimSuffix(name, filepath.Ext(name))
	return I, nil
}

func readInput(r io.Reader, dir string) (*Input, error) {
	fail := func(format string, a ...any) error {
		return emle.Errorf(emle.MalformedRequest, "readInput", format, a...)
	}
	rel := func(s string) string {
		s = strings.Trim(s, `"'`)
		if filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(dir, s)
	}
	I := &Input{Multi: 1}
	geometry := false
	in := bufio.NewScanner(r)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		low := strings.ToLower(line)
		switch {
		case strings.HasPrefix(low, "%pointcharges"):
			f := fi(line)
			if len(f) < 2 {
				return nil, fail("%%pointcharges without a file name")
			}
			I.PointCharges = rel(f[1])
		case strings.HasPrefix(low, "*"):
			f := fi(strings.TrimPrefix(line, "*"))
			if len(f) < 3 {
				return nil, fail("ill-formatted geometry line %q", line)
			}
			var err error
			if I.Charge, err = strconv.Atoi(f[1]); err != nil {
				return nil, fail("charge in %q: %w", line, err)
			}
			if I.Multi, err = strconv.Atoi(f[2]); err != nil || I.Multi < 1 {
				return nil, fail("multiplicity in %q", line)
			}
			switch strings.ToLower(f[0]) {
			case "xyzfile":
				if len(f) < 4 {
					return nil, fail("xyzfile without a file name")
				}
				I.XYZFile = rel(f[3])
			case "xyz":
				if err := I.readInline(in); err != nil {
					return nil, err
				}
			default:
				return nil, fail("unsupported geometry type %q", f[0])
			}
			geometry = true
		}
	}
	if err := in.Err(); err != nil {
		return nil, fail("%w", err)
	}
	if !geometry {
		return nil, fail("no geometry in the input")
	}
	return I, nil
}

// readInline reads a "* xyz" block, up to the closing "*".
func (I *Input) readInline(in *bufio.Scanner) error {
	var rows [][]float64
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "*" {
			if len(rows) == 0 {
				return emle.NewError(emle.MalformedRequest, "empty geometry block", "readInline")
			}
			var err error
			I.Coords, err = v3.FromRows(rows)
			return err
		}
		f := fi(line)
		if len(f) < 4 {
			return emle.Errorf(emle.MalformedRequest, "readInline", "ill-formatted atom line %q", line)
		}
		z, err := emle.Symbol2Z(f[0])
		if err != nil {
			return emle.Errorf(emle.MalformedRequest, "readInline", "%w", err)
		}
		row := make([]float64, 3)
		for j := range row {
			if row[j], err = strconv.ParseFloat(f[j+1], 64); err != nil {
				return emle.Errorf(emle.MalformedRequest, "readInline", "atom line %q: %w", line, err)
			}
		}
		I.Z = append(I.Z, z)
		rows = append(rows, row)
	}
	return emle.NewError(emle.MalformedRequest, "unterminated geometry block", "readInline")
}

// Job reads the geometry and the point charges, if they are in separate files,
// and returns the job for the server.
func (I *Input) Job(id string) (*protocol.Job, error) {
	if I.XYZFile != "" {
		var err error
		if I.Z, I.Coords, err = emle.XYZFileRead(I.XYZFile); err != nil {
			return nil, emle.Errorf(emle.MalformedRequest, "Job", "%w", err)
		}
	}
	J := &protocol.Job{ID: id, Z: I.Z, Coords: I.Coords.Raw(), Charge: I.Charge, Multi: I.Multi}
	if I.PointCharges == "" {
		return J, nil
	}
	q, R, err := ReadPointChargesFile(I.PointCharges)
	if err != nil {
		return nil, emle.Decorate(err, "Job")
	}
	J.NMM = len(q)
	J.MMCharges = q
	J.MMCoords = R.Raw()
	return J, nil
}

// ReadPointCharges reads an ORCA point-charge file: the number of charges,
// then one line per charge with its value, in e, and position, in A.
func ReadPointCharges(r io.Reader) ([]float64, *v3.Matrix, error) {
	in := bufio.NewScanner(r)
	in.Buffer(make([]byte, 64*1024), 1024*1024)
	if !in.Scan() {
		return nil, nil, emle.NewError(emle.MalformedRequest, "empty point charge file", "ReadPointCharges")
	}
	n, err := strconv.Atoi(strings.TrimSpace(in.Text()))
	if err != nil || n < 0 {
		return nil, nil, emle.Errorf(emle.MalformedRequest, "ReadPointCharges", "invalid number of charges %q", in.Text())
	}
	q := make([]float64, 0, n)
	rows := make([][]float64, 0, n)
	for len(q) < n && in.Scan() {
		f := fi(in.Text())
		if len(f) == 0 {
			continue
		}
		if len(f) < 4 {
			return nil, nil, emle.Errorf(emle.MalformedRequest, "ReadPointCharges", "ill-formatted line %q", in.Text())
		}
		vals := make([]float64, 4)
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(strings.ReplaceAll(strings.ToUpper(f[j]), "D", "E"), 64); err != nil {
				return nil, nil, emle.Errorf(emle.MalformedRequest, "ReadPointCharges", "line %q: %w", in.Text(), err)
			}
		}
		q = append(q, vals[0])
		rows = append(rows, vals[1:])
	}
	if len(q) != n {
		return nil, nil, emle.Errorf(emle.MalformedRequest, "ReadPointCharges", "%d charges declared but %d found", n, len(q))
	}
	if n == 0 {
		return q, nil, nil
	}
	R, err := v3.FromRows(rows)
	if err != nil {
		return nil, nil, emle.Errorf(emle.MalformedRequest, "ReadPointCharges", "%w", err)
	}
	return q, R, nil
}

func ReadPointChargesFile(name string) ([]float64, *v3.Matrix, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, emle.Errorf(emle.MalformedRequest, "ReadPointChargesFile", "%w", err)
	}
	defer f.Close()
	return ReadPointCharges(f)
}

// WritePointCharges writes charges q at positions R (A) in the ORCA format.
func WritePointCharges(w io.Writer, q []float64, R *v3.Matrix) error {
	if len(q) != R.NVecs() {
		return emle.Errorf(emle.MalformedRequest, "WritePointCharges", "%d charges but %d positions", len(q), R.NVecs())
	}
	b := bufio.NewWriter(w)
	fmt.Fprintf(b, "%d\n", len(q))
	for i, v := range q {
		c := R.Vec(i)
		fmt.Fprintf(b, "%10.6f %14.8f %14.8f %14.8f\n", v, c[0], c[1], c[2])
	}
	return b.Flush()
}

// WritePCGrad writes the gradient on the point charges, in Hartree/Bohr: their
// number, then one line per charge.
func WritePCGrad(w io.Writer, grad *v3.Matrix) error {
	b := bufio.NewWriter(w)
	n := grad.NVecs()
	fmt.Fprintf(b, "%d\n", n)
	for i := 0; i < n; i++ {
		v := grad.Vec(i)
		fmt.Fprintf(b, "%17.12f%17.12f%17.12f\n", v[0], v[1], v[2])
	}
	return b.Flush()
}

// ReadPCGrad reads what WritePCGrad writes. The gradient is nil if there
// are no charges.
func ReadPCGrad(r io.Reader) (*v3.Matrix, error) {
	in := bufio.NewScanner(r)
	if !in.Scan() {
		return nil, emle.NewError(emle.MalformedRequest, "empty pcgrad file", "ReadPCGrad")
	}
	n, err := strconv.Atoi(strings.TrimSpace(in.Text()))
	if err != nil || n < 0 {
		return nil, emle.Errorf(emle.MalformedRequest, "ReadPCGrad", "invalid count %q", in.Text())
	}
	rows := make([][]float64, 0, n)
	for len(rows) < n && in.Scan() {
		f := fi(in.Text())
		if len(f) != 3 {
			return nil, emle.Errorf(emle.MalformedRequest, "ReadPCGrad", "line with %d fields: %q", len(f), in.Text())
		}
		row := make([]float64, 3)
		for j := range row {
			if row[j], err = strconv.ParseFloat(f[j], 64); err != nil {
				return nil, emle.Errorf(emle.MalformedRequest, "ReadPCGrad", "%w", err)
			}
		}
		rows = append(rows, row)
	}
	if len(rows) != n {
		return nil, emle.Errorf(emle.MalformedRequest, "ReadPCGrad", "%d lines declared but %d found", n, len(rows))
	}
	if n == 0 {
		return nil, nil
	}
	return v3.FromRows(rows)
}

// WriteResult writes Base.engrad and, if the input had point charges,
// Base.pcgrad. The QM gradient is the total one. If the server sent no MM
// gradient, zeros are written for every charge.
func (I *Input) WriteResult(J *protocol.Job, r *protocol.Result) error {
	grad, err := v3.NewMatrix(r.GradQM)
	if err != nil {
		return emle.Errorf(emle.MalformedRequest, "WriteResult", "QM gradient: %w", err)
	}
	x, err := J.QM()
	if err != nil {
		return emle.Decorate(err, "WriteResult")
	}
	if err := writeFile(I.Base+".engrad", func(w io.Writer) error {
		return qm.WriteEngrad(w, r.ETot, grad, J.Z, x)
	}); err != nil {
		return emle.Decorate(err, "WriteResult")
	}
	if I.PointCharges == "" {
		return nil
	}
	var gmm *v3.Matrix
	switch {
	case len(r.GradMM) > 0:
		if gmm, err = v3.NewMatrix(r.GradMM); err != nil {
			return emle.Errorf(emle.MalformedRequest, "WriteResult", "MM gradient: %w", err)
		}
		if gmm.NVecs() != J.NMM {
			return emle.Errorf(emle.MalformedRequest, "WriteResult", "%d MM gradients for %d charges", gmm.NVecs(), J.NMM)
		}
	case J.NMM > 0:
		gmm = v3.Zeros(J.NMM)
	}
	return emle.Decorate(writeFile(I.Base+".pcgrad", func(w io.Writer) error {
		return WritePCGrad(w, gmm)
	}), "WriteResult")
}

func writeFile(name string, write func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
