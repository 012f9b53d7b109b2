/*
 * xtb.go, part of goemle.
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
//In order to use this part of the library you need the xtb program, which must be obtained from Prof. Stefan Grimme's group.
//Please cite the the xtb references if you used the program.

package qm

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// XTBHandle runs single-point gradient calculations with xtb.
type XTBHandle struct {
	command   string
	inputname string
	method    string
	nCPU      int
	scratch   string
}

func NewXTBHandle() *XTBHandle {
	run := new(XTBHandle)
	run.SetDefaults()
	return run
}

//XTBHandle methods

// Sets the number of CPU to be used
func (O *XTBHandle) SetnCPU(cpu int) {
	O.nCPU = cpu
}

func (O *XTBHandle) Command() string {
	return O.command
}

func (O *XTBHandle) SetName(name string) {
	O.inputname = name
}

func (O *XTBHandle) SetCommand(name string) {
	O.command = name
}

// SetMethod sets the Hamiltonian: gfn0, gfn1, gfn2 or gfnff. Anything else gives gfn2.
func (O *XTBHandle) SetMethod(m string) {
	m = strings.ToLower(m)
	if !slices.Contains([]string{"gfn0", "gfn1", "gfn2", "gfnff"}, m) {
		m = "gfn2"
	}
	O.method = m
}

func (O *XTBHandle) SetDefaults() {
	O.command = "xtb"
	O.inputname = "emle"
	O.method = "gfn2"
	O.nCPU = max(runtime.NumCPU()/2, 1)
}

func (O *XTBHandle) Name() string { return XTB }

// BuildInput writes the geometry to dir and returns the command-line arguments for xtb.
func (O *XTBHandle) BuildInput(dir string, S *System) ([]string, error) {
	err := emle.XYZFileWrite(filepath.Join(dir, O.inputname+".xyz"), S.Z, S.Coords, "written by goemle")
	if err != nil {
		return nil, err
	}
	args := []string{O.inputname + ".xyz", "--grad", "--chrg", strconv.Itoa(S.Charge), "--uhf", strconv.Itoa(S.Multi - 1)}
	if O.method == "gfnff" {
		args = append(args, "--gfnff")
	} else {
		args = append(args, "--gfn", strings.TrimPrefix(O.method, "gfn"))
	}
	if O.nCPU > 1 {
		args = append(args, "-P", strconv.Itoa(O.nCPU))
	}
	return args, nil
}

// Run runs xtb in dir with the given arguments, and waits for it.
func (O *XTBHandle) Run(ctx context.Context, dir string, args []string) error {
	if err := run(ctx, dir, O.inputname+".out", O.command, args...); err != nil {
		return err
	}
	if !O.normalTermination(dir) {
		return fmt.Errorf("xtb calculation didn't end normally")
	}
	return nil
}

// This checks that an xtb calculation has terminated normally
func (O *XTBHandle) normalTermination(dir string) bool {
	out := filepath.Join(dir, O.inputname+".out")
	return searchBackwards("normal termination of x", out) != "" && searchBackwards("abnormal termination of x", out) == ""
}

// Energy gets the energy of a previous xtb calculation in dir, in Hartree.
func (O *XTBHandle) Energy(dir string) (float64, error) {
	energyline := searchBackwards("TOTAL ENERGY", filepath.Join(dir, O.inputname+".out"))
	if energyline == "" {
		return 0, fmt.Errorf("no energy in xtb output")
	}
	split := strings.Fields(strings.Trim(energyline, " |"))
	if len(split) < 3 {
		return 0, fmt.Errorf("can't read xtb energy line %q", energyline)
	}
	return strconv.ParseFloat(split[2], 64)
}

// Compute runs a single point with gradient in a fresh scratch directory.
func (O *XTBHandle) Compute(ctx context.Context, S *System) (*Result, error) {
	if err := S.validate(); err != nil {
		return nil, err
	}
	dir, err := scratchDir(O.scratch, "xtb-")
	if err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "XTBHandle.Compute", "%w", err)
	}
	defer os.RemoveAll(dir)
	args, err := O.BuildInput(dir, S)
	if err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "XTBHandle.Compute", "building input: %w", err)
	}
	if err := O.Run(ctx, dir, args); err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "XTBHandle.Compute", "%w", err)
	}
	E, G, err := readTurbomoleGradient(filepath.Join(dir, "gradient"), len(S.Z))
	if err != nil {
		//newer versions write an ORCA-style file.
		var err2 error
		E, G, err2 = ReadEngradFile(filepath.Join(dir, O.inputname+".engrad"))
		if err2 != nil {
			return nil, emle.Errorf(emle.BackendCompute, "XTBHandle.Compute", "reading gradient: %w", err)
		}
	}
	if G.NVecs() != len(S.Z) {
		return nil, emle.Errorf(emle.BackendCompute, "XTBHandle.Compute", "%d gradients for %d atoms", G.NVecs(), len(S.Z))
	}
	return &Result{Energy: E, Gradient: G}, nil
}

// readTurbomoleGradient reads the last cycle of a Turbomole-style gradient file.
// The energy is taken from the cycle line.
func readTurbomoleGradient(name string, natoms int) (float64, *v3.Matrix, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, strings.TrimSpace(s.Text()))
	}
	if err := s.Err(); err != nil {
		return 0, nil, err
	}
	last := -1
	for i, l := range lines {
		if strings.HasPrefix(l, "cycle") {
			last = i
		}
	}
	if last < 0 || len(lines) < last+1+2*natoms {
		return 0, nil, fmt.Errorf("truncated gradient file %s", name)
	}
	var E float64
	f1 := strings.Fields(lines[last])
	for i, v := range f1 {
		if v == "=" && i > 0 && strings.HasSuffix(f1[i-1], "energy") && i+1 < len(f1) {
			E, err = strconv.ParseFloat(f1[i+1], 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad energy in gradient file: %w", err)
			}
			break
		}
	}
	g := make([]float64, 0, 3*natoms)
	for _, l := range lines[last+1+natoms : last+1+2*natoms] {
		p, err := parsefloats(strings.Fields(l))
		if err != nil || len(p) != 3 {
			return 0, nil, fmt.Errorf("bad gradient line %q", l)
		}
		g = append(g, p...)
	}
	G, err := v3.NewMatrix(g)
	return E, G, err
}
