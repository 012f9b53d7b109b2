/*
 * orca.go, part of goemle.
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
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	emle "github.com/rmera/goemle"
)

// OrcaHandle runs EnGrad single points with ORCA.
// Note that the default method and basis are NOT considered part of the API.
type OrcaHandle struct {
	defmethod string
	defbasis  string
	method    string
	basis     string
	command   string
	inputname string
	nCPU      int
	scratch   string
}

// NewOrcaHandle returns a handle for the ORCA executable command, which must be given
// as an absolute path or be found in the PATH, and must not be this program: when
// the client shim is installed under the name "orca" a bare "orca" may resolve to it.
func NewOrcaHandle(command, method, basis string, ncpu int, scratch string) (*OrcaHandle, error) {
	O := new(OrcaHandle)
	O.SetDefaults()
	if command != "" {
		O.command = command
	}
	O.method, O.basis = method, basis
	if ncpu > 0 {
		O.nCPU = ncpu
	}
	O.scratch = scratch
	path, err := exec.LookPath(O.command)
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "NewOrcaHandle", "ORCA executable: %w", err)
	}
	if isSelf(path) {
		return nil, emle.Errorf(emle.Configuration, "NewOrcaHandle", "ORCA executable %s is this program, set orca-command to the real ORCA binary", path)
	}
	O.command = path
	return O, nil
}

func isSelf(path string) bool {
	self, err := os.Executable()
	if err != nil {
		return false
	}
	a, err1 := filepath.EvalSymlinks(self)
	b, err2 := filepath.EvalSymlinks(path)
	return err1 == nil && err2 == nil && a == b
}

func (O *OrcaHandle) SetName(name string) {
	O.inputname = name
}

func (O *OrcaHandle) SetCommand(name string) {
	O.command = name
}

// Sets defaults for ORCA calculation. Default is a single-point at
// revPBE/def2-SVP, and all the available CPU with a max of 8. The ORCA
// command is set to $ORCA_PATH/orca, or to orca if ORCA_PATH is not defined.
func (O *OrcaHandle) SetDefaults() {
	O.defmethod = "revPBE"
	O.defbasis = "def2-SVP"
	O.inputname = "emle_orca"
	O.command = os.ExpandEnv("${ORCA_PATH}/orca")
	if O.command == "/orca" {
		O.command = "orca"
	}
	O.nCPU = min(8, max(1, runtime.NumCPU()))
}

func (O *OrcaHandle) Name() string { return ORCA }

// BuildInput writes the ORCA input and geometry for S to dir.
func (O *OrcaHandle) BuildInput(dir string, S *System) error {
	method, basis := O.method, O.basis
	if method == "" {
		method = O.defmethod
	}
	if basis == "" {
		basis = O.defbasis
	}
	xyz := O.inputname + ".xyz"
	if err := emle.XYZFileWrite(filepath.Join(dir, xyz), S.Z, S.Coords, "written by goemle"); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "! EnGrad %s %s\n", method, basis)
	if S.Multi != 1 {
		b.WriteString("! UKS\n")
	}
	if O.nCPU > 1 {
		fmt.Fprintf(&b, "%%pal nprocs %d end\n", O.nCPU)
	}
	fmt.Fprintf(&b, "*xyzfile %d %d %s\n", S.Charge, S.Multi, xyz)
	return os.WriteFile(filepath.Join(dir, O.inputname+".inp"), []byte(b.String()), 0o644)
}

// Run runs ORCA on the input previously built in dir, and waits for it.
func (O *OrcaHandle) Run(ctx context.Context, dir string) error {
	if err := run(ctx, dir, O.inputname+".out", O.command, O.inputname+".inp"); err != nil {
		return err
	}
	if !O.orcaNormalTermination(dir) {
		return fmt.Errorf("probable problem in ORCA calculation")
	}
	return nil
}

// Energy gets the final single point energy of a previous ORCA calculation in dir, in Hartree.
func (O *OrcaHandle) Energy(dir string) (float64, error) {
	line := searchBackwards("FINAL SINGLE POINT ENERGY", filepath.Join(dir, O.inputname+".out"))
	if line == "" {
		return 0, fmt.Errorf("output does not contain energy")
	}
	f := strings.Fields(line)
	return strconv.ParseFloat(f[len(f)-1], 64)
}

// This checks that an ORCA calculation has terminated normally
func (O *OrcaHandle) orcaNormalTermination(dir string) bool {
	return searchBackwards("**ORCA TERMINATED NORMALLY**", filepath.Join(dir, O.inputname+".out")) != ""
}

// Compute runs an EnGrad single point in a fresh scratch directory.
func (O *OrcaHandle) Compute(ctx context.Context, S *System) (*Result, error) {
	if err := S.validate(); err != nil {
		return nil, err
	}
	dir, err := scratchDir(O.scratch, "orca-")
	if err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "OrcaHandle.Compute", "%w", err)
	}
	defer os.RemoveAll(dir)
	if err := O.BuildInput(dir, S); err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "OrcaHandle.Compute", "building input: %w", err)
	}
	if err := O.Run(ctx, dir); err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "OrcaHandle.Compute", "%w", err)
	}
	E, G, err := ReadEngradFile(filepath.Join(dir, O.inputname+".engrad"))
	if err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "OrcaHandle.Compute", "%w", err)
	}
	if G.NVecs() != len(S.Z) {
		return nil, emle.Errorf(emle.BackendCompute, "OrcaHandle.Compute", "%d gradients for %d atoms", G.NVecs(), len(S.Z))
	}
	return &Result{Energy: E, Gradient: G}, nil
}
