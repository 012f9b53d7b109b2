/*
 * mlp.go, part of goemle.
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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/chemjson"
)

// How long a model runner has to load its model and say it is ready.
var StartupTimeout = 5 * time.Minute

// DefaultRunner is the model runner command used if none is given.
var DefaultRunner = []string{"emle-mlp-runner"}

// MLPotential evaluates an ML potential through a persistent runner process,
// so the model is loaded only once. Jobs are sent to the runner one at a time.
type MLPotential struct {
	model  string
	device string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	stderr *syncBuffer
	broken error
}

// syncBuffer collects the standard error of the runner, which is
// written by the exec package while jobs may be reading it.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (B *syncBuffer) Write(p []byte) (int, error) {
	B.mu.Lock()
	defer B.mu.Unlock()
	return B.b.Write(p)
}

func (B *syncBuffer) String() string {
	B.mu.Lock()
	defer B.mu.Unlock()
	return B.b.String()
}

// NewMLPotential starts the runner command for the given model file and device,
// and waits until the runner reports that the model is loaded.
func NewMLPotential(ctx context.Context, command []string, model, device string) (*MLPotential, error) {
	if len(command) == 0 {
		command = DefaultRunner
	}
	if device == "" {
		device = "cpu"
	}
	args := append(append([]string{}, command[1:]...), "--model", model, "--device", device)
	M := &MLPotential{model: model, device: device, stderr: new(syncBuffer), lines: make(chan []byte)}
	M.cmd = exec.Command(command[0], args...)
	M.cmd.Stderr = M.stderr
	var err error
	if M.stdin, err = M.cmd.StdinPipe(); err != nil {
		return nil, emle.Errorf(emle.Configuration, "NewMLPotential", "%w", err)
	}
	stdout, err := M.cmd.StdoutPipe()
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "NewMLPotential", "%w", err)
	}
	if err := M.cmd.Start(); err != nil {
		return nil, emle.Errorf(emle.Configuration, "NewMLPotential", "starting model runner %s: %w", command[0], err)
	}
	go M.read(stdout)
	var r chemjson.Ready
	select {
	case line, ok := <-M.lines:
		if !ok {
			M.cmd.Wait()
			err = fmt.Errorf("runner exited before loading the model. Stderr: %s", M.stderrTail())
		} else if err = json.Unmarshal(line, &r); err == nil && !r.Ready {
			err = fmt.Errorf("runner couldn't load the model: %s", r.Error)
		}
	case <-time.After(StartupTimeout):
		err = fmt.Errorf("runner not ready after %v", StartupTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		M.kill()
		return nil, emle.Errorf(emle.Configuration, "NewMLPotential", "model %s: %w", model, err)
	}
	return M, nil
}

func (M *MLPotential) read(stdout io.Reader) {
	s := bufio.NewScanner(stdout)
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for s.Scan() {
		line := append([]byte(nil), s.Bytes()...)
		M.lines <- line
	}
	close(M.lines)
}

func (M *MLPotential) stderrTail() string {
	s := strings.TrimSpace(M.stderr.String())
	if len(s) > 500 {
		s = s[len(s)-500:]
	}
	return s
}

func (M *MLPotential) Name() string {
	return fmt.Sprintf("%s(%s)", MLP, filepath.Base(M.model))
}

// Compute sends S to the runner and waits for the answer. If ctx is cancelled
// while waiting, the runner is killed, as its next answer would be stale.
func (M *MLPotential) Compute(ctx context.Context, S *System) (*Result, error) {
	if err := S.validate(); err != nil {
		return nil, err
	}
	M.mu.Lock()
	defer M.mu.Unlock()
	if M.broken != nil {
		return nil, emle.Errorf(emle.BackendCompute, "MLPotential.Compute", "model runner unavailable: %w", M.broken)
	}
	if err := chemjson.Send(M.stdin, chemjson.NewRequest(S.Z, S.Coords, S.Charge)); err != nil {
		M.broken = err
		return nil, emle.Errorf(emle.BackendCompute, "MLPotential.Compute", "%w", err)
	}
	var line []byte
	var ok bool
	select {
	case line, ok = <-M.lines:
		if !ok {
			M.cmd.Wait()
			M.broken = fmt.Errorf("runner exited. Stderr: %s", M.stderrTail())
			return nil, emle.Errorf(emle.BackendCompute, "MLPotential.Compute", "%w", M.broken)
		}
	case <-ctx.Done():
		M.broken = ctx.Err()
		M.kill()
		return nil, emle.Errorf(emle.BackendCompute, "MLPotential.Compute", "%w", ctx.Err())
	}
	var R chemjson.Response
	if err := json.Unmarshal(line, &R); err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "MLPotential.Compute", "bad runner response: %w", err)
	}
	G, err := R.GradientMatrix(len(S.Z))
	if err != nil {
		return nil, emle.Errorf(emle.BackendCompute, "MLPotential.Compute", "%w", err)
	}
	return &Result{Energy: R.Energy, Gradient: G}, nil
}

func (M *MLPotential) kill() {
	if M.cmd.Process != nil {
		M.cmd.Process.Kill()
	}
	M.cmd.Wait()
	go func() {
		for range M.lines {
		}
	}()
}

// Close stops the runner. It closes its standard input and gives it
// a few seconds to leave before killing it.
func (M *MLPotential) Close() error {
	M.mu.Lock()
	defer M.mu.Unlock()
	if M.broken == nil {
		M.broken = fmt.Errorf("closed")
	}
	M.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- M.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		M.cmd.Process.Kill()
		<-done
	}
	//let the reader goroutine finish.
	for range M.lines {
	}
	return nil
}
