/*
 * qm.go, part of goemle.
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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// System is the QM region of a job. Coordinates are in A.
type System struct {
	Z      []int
	Coords *v3.Matrix
	Charge int
	Multi  int
}

func (S *System) validate() error {
	if len(S.Z) == 0 || S.Coords.NVecs() != len(S.Z) {
		return emle.Errorf(emle.MalformedRequest, "System.validate", "%d atomic numbers but %d coordinates", len(S.Z), S.Coords.NVecs())
	}
	if S.Multi < 1 {
		S.Multi = 1
	}
	return nil
}

// Result is the in-vacuo energy, in Hartree, and gradient, in Hartree/Bohr.
type Result struct {
	Energy   float64
	Gradient *v3.Matrix
}

// Backend computes in-vacuo energies and gradients. Backends that hold
// resources (processes, files) also implement io.Closer.
type Backend interface {
	Name() string
	Compute(ctx context.Context, S *System) (*Result, error)
}

// Names of the available backends.
const (
	ORCA       = "orca"
	XTB        = "xtb"
	MLP        = "mlp"
	ForceField = "ff"
)

// Config holds the settings of every backend. Only the ones
// for the selected backend are used.
type Config struct {
	OrcaCommand string
	OrcaMethod  string
	OrcaBasis   string
	XTBCommand  string
	XTBMethod   string
	NCPU        int
	//MLPCommand is the model runner, MLPModels the model files.
	//More than one model gives an ensemble.
	MLPCommand []string
	MLPModels  []string
	Device     string
	FFTopology string
	//Scratch is where the per-job directories for the external programs are created.
	Scratch string
}

// New builds the backend called name. Any problem is a configuration error.
func New(ctx context.Context, name string, C *Config) (Backend, error) {
	switch strings.ToLower(name) {
	case ORCA:
		return NewOrcaHandle(C.OrcaCommand, C.OrcaMethod, C.OrcaBasis, C.NCPU, C.Scratch)
	case XTB:
		x := NewXTBHandle()
		if C.XTBCommand != "" {
			x.SetCommand(C.XTBCommand)
		}
		if C.XTBMethod != "" {
			x.SetMethod(C.XTBMethod)
		}
		if C.NCPU > 0 {
			x.SetnCPU(C.NCPU)
		}
		x.scratch = C.Scratch
		if _, err := exec.LookPath(x.command); err != nil {
			return nil, emle.Errorf(emle.Configuration, "qm.New", "xtb command: %w", err)
		}
		return x, nil
	case MLP:
		if len(C.MLPModels) == 0 {
			return nil, emle.NewError(emle.Configuration, "the mlp backend needs at least one model", "qm.New")
		}
		var bs []Backend
		for _, m := range C.MLPModels {
			p, err := NewMLPotential(ctx, C.MLPCommand, m, C.Device)
			if err != nil {
				closeAll(bs)
				return nil, err
			}
			bs = append(bs, p)
		}
		if len(bs) == 1 {
			return bs[0], nil
		}
		return NewEnsemble(bs...)
	case ForceField:
		return NewFFBackend(C.FFTopology)
	}
	return nil, emle.Errorf(emle.Configuration, "qm.New", "unknown backend %q", name)
}

// Close closes B if it holds any resources.
func Close(B Backend) error {
	if c, ok := B.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeAll(bs []Backend) {
	for _, b := range bs {
		Close(b)
	}
}

// run executes command with args in dir, sending the standard output to outname
// (relative to dir). The standard error is included in the error, if any.
func run(ctx context.Context, dir, outname, command string, args ...string) error {
	out, err := os.Create(dir + string(os.PathSeparator) + outname)
	if err != nil {
		return err
	}
	defer out.Close()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w. Stderr: %s", command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// searchBackwards searches a file from the end for a line containing str,
// and returns that line, or an empty string.
func searchBackwards(str, filename string) string {
	data, err := os.ReadFile(filename)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], str) {
			return lines[i]
		}
	}
	return ""
}

// scratchDir creates a directory for one job.
func scratchDir(base, prefix string) (string, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(base, prefix)
}
