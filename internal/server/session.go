/*
 * session.go, part of goemle.
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

package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/embed"
	"github.com/rmera/goemle/internal/history"
	"github.com/rmera/goemle/internal/logging"
	"github.com/rmera/goemle/internal/protocol"
	"github.com/rmera/goemle/lambda"
	"github.com/rmera/goemle/qm"
	v3 "github.com/rmera/goemle/v3"
)

// Options are the optional parts of a Session.
type Options struct {
	//Corrector is nil if no embedding correction is applied.
	Corrector embed.Corrector
	//Reference is the pure-MM energy of the QM region, RefEmbedding the
	//fixed-charge embedding added to it. Both are needed if Scheduler is enabled.
	Reference    qm.Backend
	RefEmbedding embed.Corrector
	Scheduler    *lambda.Scheduler
	Cadence      int
	EnergyLog    io.Writer
	History      string
	Metrics      *Metrics
	Logger       *zap.Logger
}

// Session is the state of a server: the step counter, the lambda schedule and
// what is needed to process a job. It is not safe for concurrent use, the
// server drives it from a single goroutine.
type Session struct {
	backend      qm.Backend
	corrector    embed.Corrector
	reference    qm.Backend
	refEmbedding embed.Corrector
	sched        *lambda.Scheduler
	cadence      int
	elog         io.Writer
	//lambdaColumns is fixed at start: with an MM reference, lambda can be
	//switched on at any time.
	lambdaColumns bool
	histName      string
	hist          *history.Writer
	metrics       *Metrics
	log           *zap.Logger
	step          int
}

// NewSession returns a session computing in-vacuo energies with B.
func NewSession(B qm.Backend, O Options) (*Session, error) {
	if B == nil {
		return nil, emle.NewError(emle.Configuration, "no backend", "NewSession")
	}
	S := &Session{
		backend:      B,
		corrector:    O.Corrector,
		reference:    O.Reference,
		refEmbedding: O.RefEmbedding,
		sched:        O.Scheduler,
		cadence:      O.Cadence,
		elog:         O.EnergyLog,
		histName:     O.History,
		metrics:      O.Metrics,
		log:          O.Logger,
	}
	if S.sched == nil {
		S.sched = lambda.NewDisabled()
	}
	if S.sched.Enabled() && S.reference == nil {
		return nil, emle.NewError(emle.Configuration, "lambda interpolation needs an MM reference", "NewSession")
	}
	S.lambdaColumns = S.reference != nil
	if S.cadence < 1 {
		S.cadence = 1
	}
	if S.metrics == nil {
		S.metrics = NewMetrics()
	}
	if S.log == nil {
		S.log = zap.NewNop()
	}
	if S.elog != nil {
		if err := S.logHeader(); err != nil {
			return nil, emle.Errorf(emle.Configuration, "NewSession", "energy log: %w", err)
		}
	}
	S.metrics.Lambda.Set(S.sched.Lambda())
	return S, nil
}

// Step returns the index the next successful job will get.
func (S *Session) Step() int { return S.step }

// Lambda returns the current lambda and whether interpolation is active.
func (S *Session) Lambda() (float64, bool) { return S.sched.Lambda(), S.sched.Enabled() }

// Method returns the name of the embedding method.
func (S *Session) Method() string {
	if S.corrector == nil {
		return string(embed.None)
	}
	return string(S.corrector.Method())
}

// Status describes the session.
func (S *Session) Status() *protocol.Status {
	return &protocol.Status{
		PID:     os.Getpid(),
		Step:    S.step,
		Lambda:  S.sched.Lambda(),
		State:   S.sched.State().String(),
		Backend: S.backend.Name(),
		Method:  S.Method(),
	}
}

// SetLambda fixes lambda at l from now on.
func (S *Session) SetLambda(l float64) error {
	if S.reference == nil {
		return emle.NewError(emle.MalformedRequest, "can't set lambda: the server has no MM reference", "SetLambda")
	}
	if err := S.sched.Set(l); err != nil {
		return err
	}
	S.metrics.Lambda.Set(l)
	S.log.Info("lambda set", zap.Float64("lambda", l))
	return nil
}

// Process runs one job. On error nothing in the session changes.
func (S *Session) Process(ctx context.Context, J *protocol.Job) (*protocol.Result, error) {
	t := time.Now()
	ret, err := S.process(ctx, J)
	if err != nil {
		S.metrics.Jobs.WithLabelValues(string(emle.KindOf(err))).Inc()
		S.log.Error("job failed", append([]zap.Field{zap.String("job", J.ID), zap.Int("step", S.step)}, logging.Error(err)...)...)
		return nil, err
	}
	S.metrics.Jobs.WithLabelValues("ok").Inc()
	S.metrics.Duration.Observe(time.Since(t).Seconds())
	S.metrics.Step.Set(float64(S.step))
	S.metrics.Lambda.Set(S.sched.Lambda())
	S.log.Info("job done", zap.String("job", J.ID), zap.Int("step", ret.Step), zap.Float64("e_tot", ret.ETot), zap.Duration("took", time.Since(t)))
	return ret, nil
}

func (S *Session) process(ctx context.Context, J *protocol.Job) (*protocol.Result, error) {
	x, err := J.QM()
	if err != nil {
		return nil, err
	}
	mm, err := J.MM()
	if err != nil {
		return nil, err
	}
	if S.corrector != nil {
		if err := S.corrector.Check(J.Z); err != nil {
			return nil, err
		}
	}
	logDue := S.elog != nil && S.step%S.cadence == 0
	withRef := S.sched.Enabled() || (S.lambdaColumns && logDue)
	if withRef && S.refEmbedding != nil {
		if err := S.refEmbedding.Check(J.Z); err != nil {
			return nil, err
		}
	}
	sys := &qm.System{Z: J.Z, Coords: x, Charge: J.Charge, Multi: J.Multi}
	vac, err := S.backend.Compute(ctx, sys)
	if err != nil {
		return nil, emle.AsKind(err, emle.BackendCompute, "Process")
	}
	if vac.Gradient.NVecs() != len(J.Z) {
		return nil, emle.Errorf(emle.BackendCompute, "Process", "%s returned %d gradient vectors for %d atoms", S.backend.Name(), vac.Gradient.NVecs(), len(J.Z))
	}
	in := &embed.Input{Z: J.Z, QM: x, Charge: float64(J.Charge), MMCharges: J.MMCharges, MM: mm}
	//E(lambda=1)
	E1, gq1, gm1, err := S.correct(ctx, S.corrector, in, vac.Energy, vac.Gradient)
	if err != nil {
		return nil, err
	}
	ret := &protocol.Result{ID: J.ID, Step: S.step, EVac: vac.Energy, ETot: E1, GradVac: vac.Gradient.Raw()}
	//without interpolation the energy is the lambda=1 one.
	l := 1.0
	var E0 float64
	var gq0, gm0 *v3.Matrix
	if withRef {
		ref, err := S.reference.Compute(ctx, sys)
		if err != nil {
			return nil, emle.AsKind(err, emle.BackendCompute, "Process")
		}
		E0, gq0, gm0, err = S.correct(ctx, S.refEmbedding, in, ref.Energy, ref.Gradient)
		if err != nil {
			return nil, err
		}
	}
	if S.sched.Enabled() {
		l = S.sched.Lambda()
		ret.ETot = (1-l)*E0 + l*E1
		gq1 = blend(l, gq0, gq1)
		gm1 = blend(l, gm0, gm1)
		ret.Lambda = &l
	}
	ret.GradQM = gq1.Raw()
	if S.corrector != nil || S.sched.Enabled() {
		ret.GradMM = gm1.Raw()
	}
	if logDue {
		if S.lambdaColumns {
			_, err = fmt.Fprintf(S.elog, "%9d %8.5f %22.12f %22.12f %22.12f\n", S.step, l, ret.ETot, E0, E1)
		} else {
			_, err = fmt.Fprintf(S.elog, "%9d %22.12f %22.12f\n", S.step, ret.EVac, ret.ETot)
		}
		if err != nil {
			S.log.Warn("can't write the energy log", logging.Error(err)...)
		}
	}
	S.record(J.Z, x)
	S.sched.Advance()
	S.step++
	return ret, nil
}

// correct adds the correction computed by C, if not nil, to the energy E and
// gradient G, returning the total energy and the gradients on the QM and MM atoms.
// The MM gradient is nil if C is nil, G is not modified.
func (S *Session) correct(ctx context.Context, C embed.Corrector, in *embed.Input, E float64, G *v3.Matrix) (float64, *v3.Matrix, *v3.Matrix, error) {
	var gmm *v3.Matrix
	if in.MM.NVecs() > 0 {
		gmm = v3.Zeros(in.MM.NVecs())
	}
	if C == nil {
		return E, G.Clone(), gmm, nil
	}
	c, err := C.Correct(ctx, in)
	if err != nil {
		return 0, nil, nil, emle.AsKind(err, emle.BackendCompute, "correct")
	}
	gq := G.Clone()
	for i := 0; i < gq.NVecs(); i++ {
		gq.AddToVec(i, c.GradQM.Vec(i))
	}
	if c.GradMM != nil {
		gmm = c.GradMM
	}
	return E + c.Energy, gq, gmm, nil
}

// blend returns (1-l)*a + l*b. Either can be nil, meaning zero.
func blend(l float64, a, b *v3.Matrix) *v3.Matrix {
	n := max(a.NVecs(), b.NVecs())
	if n == 0 {
		return nil
	}
	ret := v3.Zeros(n)
	for i := 0; i < n; i++ {
		var v [3]float64
		if a.NVecs() > 0 {
			va := a.Vec(i)
			for j := range v {
				v[j] += (1 - l) * va[j]
			}
		}
		if b.NVecs() > 0 {
			vb := b.Vec(i)
			for j := range v {
				v[j] += l * vb[j]
			}
		}
		ret.SetVec(i, v)
	}
	return ret
}

// record appends the geometry to the history, if one is kept. Failures are only logged.
func (S *Session) record(z []int, x *v3.Matrix) {
	if S.histName == "" {
		return
	}
	if S.hist == nil {
		syms := make([]string, len(z))
		for i, v := range z {
			syms[i] = emle.Z2Symbol(v)
		}
		var err error
		S.hist, err = history.NewWriter(S.histName, len(z), map[string]string{"elements": strings.Join(syms, " ")})
		if err != nil {
			S.log.Warn("can't create the history file, it won't be written", append([]zap.Field{zap.String("file", S.histName)}, logging.Error(err)...)...)
			S.histName = ""
			return
		}
	}
	if err := S.hist.WNext(S.step, x); err != nil {
		S.log.Warn("can't write to the history", logging.Error(err)...)
	}
}

func (S *Session) logHeader() error {
	var err error
	if S.lambdaColumns {
		_, err = fmt.Fprintf(S.elog, "#%8s %8s %22s %22s %22s\n", "Step", "λ", "E(λ) (Eh)", "E(λ=0) (Eh)", "E(λ=1) (Eh)")
	} else {
		_, err = fmt.Fprintf(S.elog, "#%8s %22s %22s\n", "Step", "E_vac (Eh)", "E_tot (Eh)")
	}
	return err
}

// Close releases the backends and the history. The energy log belongs to the caller.
func (S *Session) Close() error {
	err := qm.Close(S.backend)
	if S.reference != nil {
		if err2 := qm.Close(S.reference); err == nil {
			err = err2
		}
	}
	if err2 := S.hist.Close(); err == nil {
		err = err2
	}
	return err
}
