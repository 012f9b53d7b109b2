/*
 * history.go, part of goemle.
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

// Package history stores the QM geometry of every successful step in a
// zstd-compressed text trajectory.
//
// The decompressed file starts with a header of key=value lines, ended by a line
// "** N", N being the number of atoms per frame. Each frame has one line per atom
// with the three coordinates, in A, multiplied by 10^prec and rounded to integers,
// and ends with a line "* step".
package history

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// DefaultPrec is the number of decimals kept if the header doesn't say otherwise.
const DefaultPrec = 3

// Writer appends frames to a history file.
type Writer struct {
	f        *os.File
	h        *zstd.Encoder
	natoms   int
	filename string
	prec     int
	frames   int
}

// NewWriter creates the file name for frames of natoms atoms. header can be nil.
// A "prec" key in header sets the precision.
func NewWriter(name string, natoms int, header map[string]string) (*Writer, error) {
	if natoms <= 0 {
		return nil, emle.Errorf(emle.Configuration, "history.NewWriter", "invalid number of atoms %d", natoms)
	}
	W := &Writer{natoms: natoms, filename: name, prec: DefaultPrec}
	if p, ok := header["prec"]; ok {
		prec, err := strconv.Atoi(p)
		if err != nil || prec < 1 {
			return nil, emle.Errorf(emle.Configuration, "history.NewWriter", "invalid precision %q for %s", p, name)
		}
		W.prec = prec
	}
	var err error
	W.f, err = os.Create(name)
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "history.NewWriter", "%w", err)
	}
	W.h, err = zstd.NewWriter(W.f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		W.f.Close()
		return nil, emle.Errorf(emle.Configuration, "history.NewWriter", "%w", err)
	}
	var hdr strings.Builder
	fmt.Fprintf(&hdr, "prec=%d\n", W.prec)
	for k, v := range header {
		if k == "prec" {
			continue
		}
		fmt.Fprintf(&hdr, "%s=%s\n", k, v)
	}
	fmt.Fprintf(&hdr, "** %d\n", natoms)
	if _, err := W.h.Write([]byte(hdr.String())); err != nil {
		W.Close()
		return nil, emle.Errorf(emle.Configuration, "history.NewWriter", "%w", err)
	}
	return W, nil
}

// Len returns the number of atoms per frame.
func (W *Writer) Len() int { return W.natoms }

// Frames returns the number of frames written so far.
func (W *Writer) Frames() int { return W.frames }

// WNext writes the coordinates of step.
func (W *Writer) WNext(step int, coords *v3.Matrix) error {
	if W.h == nil {
		return emle.Errorf(emle.Unknown, "WNext", "history %s is closed", W.filename)
	}
	if coords.NVecs() != W.natoms {
		return emle.Errorf(emle.MalformedRequest, "WNext", "frame with %d atoms in history %s of %d", coords.NVecs(), W.filename, W.natoms)
	}
	var b strings.Builder
	for i := 0; i < W.natoms; i++ {
		b.WriteString(coordsEncode(coords.Vec(i), W.prec))
	}
	fmt.Fprintf(&b, "* %d\n", step)
	if _, err := W.h.Write([]byte(b.String())); err != nil {
		return emle.Errorf(emle.Unknown, "WNext", "%w", err)
	}
	W.frames++
	return nil
}

// Close flushes and closes the file. It can be called more than once.
func (W *Writer) Close() error {
	if W == nil || W.h == nil {
		return nil
	}
	err := W.h.Close()
	if err2 := W.f.Close(); err == nil {
		err = err2
	}
	W.h = nil
	return err
}

func coordsEncode(f [3]float64, prec int) string {
	p := math.Pow(10.0, float64(prec))
	var t [3]int
	for i, v := range f {
		t[i] = int(math.RoundToEven(v * p))
	}
	return fmt.Sprintf("%d %d %d\n", t[0], t[1], t[2])
}

func coordsDecode(str string, temp *[3]float64, prec int) error {
	p := math.Pow(10.0, float64(prec))
	s := strings.Fields(str)
	if len(s) != 3 {
		return fmt.Errorf("coordinates line with %d fields: %q", len(s), str)
	}
	for i, v := range s {
		f, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("can't parse coordinate %d (%s): %w", i, v, err)
		}
		temp[i] = float64(f) / p
	}
	return nil
}

// Reader reads frames from a history file.
type Reader struct {
	f      *os.File
	d      *zstd.Decoder
	h      *bufio.Reader
	natoms int
	prec   int
	name   string
}

// Open opens the history file name, returning a reader and the header.
func Open(name string) (*Reader, map[string]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	d, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	R := &Reader{f: f, d: d, h: bufio.NewReader(d), prec: DefaultPrec, name: name}
	m := make(map[string]string)
	for {
		str, err := R.h.ReadString('\n')
		if err != nil {
			R.Close()
			return nil, nil, emle.Errorf(emle.MalformedRequest, "history.Open", "can't read header of %s: %w", name, err)
		}
		str = strings.TrimSuffix(str, "\n")
		if strings.HasPrefix(str, "**") {
			nat := strings.Fields(str)
			if len(nat) < 2 {
				R.Close()
				return nil, nil, emle.Errorf(emle.MalformedRequest, "history.Open", "no atom number in %q", str)
			}
			if R.natoms, err = strconv.Atoi(nat[1]); err != nil {
				R.Close()
				return nil, nil, emle.Errorf(emle.MalformedRequest, "history.Open", "%w", err)
			}
			break
		}
		k, v, ok := strings.Cut(str, "=")
		if !ok {
			R.Close()
			return nil, nil, emle.Errorf(emle.MalformedRequest, "history.Open", "malformed header line %q", str)
		}
		m[k] = v
	}
	if p, ok := m["prec"]; ok {
		if R.prec, err = strconv.Atoi(p); err != nil {
			R.Close()
			return nil, nil, emle.Errorf(emle.MalformedRequest, "history.Open", "invalid precision %q", p)
		}
	}
	return R, m, nil
}

// Len returns the number of atoms per frame.
func (R *Reader) Len() int { return R.natoms }

// Next reads the next frame into c, which can be nil to skip the frame, and returns
// its step. At the end of the file the error is io.EOF.
func (R *Reader) Next(c *v3.Matrix) (int, error) {
	var temp [3]float64
	for i := 0; i < R.natoms; i++ {
		b, err := R.h.ReadString('\n')
		if err != nil {
			if err == io.EOF && i == 0 && b == "" {
				return 0, io.EOF
			}
			return 0, emle.Errorf(emle.MalformedRequest, "Next", "truncated frame in %s", R.name)
		}
		if err := coordsDecode(b, &temp, R.prec); err != nil {
			return 0, emle.Errorf(emle.MalformedRequest, "Next", "%s: %w", R.name, err)
		}
		if c != nil {
			c.SetVec(i, temp)
		}
	}
	s, err := R.h.ReadString('\n')
	if err != nil || !strings.HasPrefix(s, "*") {
		return 0, emle.Errorf(emle.MalformedRequest, "Next", "missing frame termination in %s", R.name)
	}
	f := strings.Fields(s)
	if len(f) < 2 {
		return 0, emle.Errorf(emle.MalformedRequest, "Next", "frame without step in %s", R.name)
	}
	step, err := strconv.Atoi(f[1])
	if err != nil {
		return 0, emle.Errorf(emle.MalformedRequest, "Next", "%s: %w", R.name, err)
	}
	return step, nil
}

// Close closes the reader.
func (R *Reader) Close() {
	if R.d != nil {
		R.d.Close()
		R.f.Close()
		R.d = nil
	}
}
