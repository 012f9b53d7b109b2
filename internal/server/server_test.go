/*
 * server_test.go, part of goemle.
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
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/embed"
	"github.com/rmera/goemle/internal/analyze"
	"github.com/rmera/goemle/internal/config"
	"github.com/rmera/goemle/internal/history"
	"github.com/rmera/goemle/internal/protocol"
	"github.com/rmera/goemle/internal/records"
	"github.com/rmera/goemle/lambda"
	"github.com/rmera/goemle/qm"
	v3 "github.com/rmera/goemle/v3"
)

// harmonic is a backend with E = offset - 0.5*sum(x^2), x in A.
type harmonic struct {
	offset float64
	fail   bool
	calls  int
}

func (H *harmonic) Name() string { return "harmonic" }

func (H *harmonic) Compute(ctx context.Context, S *qm.System) (*qm.Result, error) {
	H.calls++
	if H.fail {
		return nil, errors.New("scf did not converge")
	}
	n := S.Coords.NVecs()
	g := v3.Zeros(n)
	E := H.offset
	for i := 0; i < n; i++ {
		v := S.Coords.Vec(i)
		E -= 0.5 * (v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		g.SetVec(i, [3]float64{-v[0], -v[1], -v[2]})
	}
	return &qm.Result{Energy: E, Gradient: g}, nil
}

func water(id string) *protocol.Job {
	return &protocol.Job{
		ID:        id,
		Z:         []int{8, 1, 1},
		Coords:    []float64{0, 0, 0.1171, 0, 0.7572, -0.4683, 0, -0.7572, -0.4683},
		Multi:     1,
		MMCharges: []float64{-0.834, 0.417},
		MMCoords:  []float64{3, 0, 0, 3.5, 0.8, 0},
		NMM:       2,
	}
}

func TestPassthrough(Te *testing.T) {
	var elog bytes.Buffer
	S, err := NewSession(&harmonic{offset: -76}, Options{EnergyLog: &elog})
	require.NoError(Te, err)
	for i := 0; i < 3; i++ {
		r, err := S.Process(context.Background(), water("w"))
		require.NoError(Te, err)
		assert.Equal(Te, i, r.Step)
		assert.Equal(Te, r.EVac, r.ETot)
		assert.Equal(Te, r.GradVac, r.GradQM)
		assert.Nil(Te, r.GradMM)
		assert.Nil(Te, r.Lambda)
	}
	assert.Equal(Te, 3, S.Step())
	assert.Equal(Te, "none", S.Method())
	lines := strings.Split(strings.TrimSpace(elog.String()), "\n")
	require.Len(Te, lines, 4)
	assert.True(Te, strings.HasPrefix(lines[0], "#"))
	assert.Equal(Te, "2", strings.Fields(lines[3])[0])
}

func value(Te *testing.T, m prometheus.Metric) float64 {
	var d dto.Metric
	require.NoError(Te, m.Write(&d))
	if d.Counter != nil {
		return d.GetCounter().GetValue()
	}
	return d.GetGauge().GetValue()
}

func TestEmbedding(Te *testing.T) {
	corr, err := embed.New(embed.Mechanical, nil, nil)
	require.NoError(Te, err)
	S, err := NewSession(&harmonic{}, Options{Corrector: corr})
	require.NoError(Te, err)
	J := water("w")
	r, err := S.Process(context.Background(), J)
	require.NoError(Te, err)
	assert.NotEqual(Te, r.EVac, r.ETot)
	assert.Len(Te, r.GradQM, 9)
	assert.Len(Te, r.GradMM, 6)

	//the correction is the same as computing it directly.
	x, _ := J.QM()
	mm, _ := J.MM()
	c, err := corr.Correct(context.Background(), &embed.Input{Z: J.Z, QM: x, MMCharges: J.MMCharges, MM: mm})
	require.NoError(Te, err)
	assert.InDelta(Te, r.EVac+c.Energy, r.ETot, 1e-12)
	assert.InDeltaSlice(Te, c.GradMM.Raw(), r.GradMM, 1e-12)

	//without MM charges the MM gradient is empty but the QM gradient is still there.
	J.NMM, J.MMCharges, J.MMCoords = 0, nil, nil
	r, err = S.Process(context.Background(), J)
	require.NoError(Te, err)
	assert.Equal(Te, r.EVac, r.ETot)
	assert.Empty(Te, r.GradMM)
	assert.Equal(Te, 2, S.Step())
}

func TestFailuresDontAdvance(Te *testing.T) {
	corr, err := embed.New(embed.Electrostatic, nil, nil)
	require.NoError(Te, err)
	B := &harmonic{}
	core, logs := observer.New(zap.InfoLevel)
	M := NewMetrics()
	sched, err := lambda.NewLinear(0, 1, 4)
	require.NoError(Te, err)
	fixed, err := embed.New(embed.FixedMM, nil, []float64{-0.8, 0.4, 0.4})
	require.NoError(Te, err)
	S, err := NewSession(B, Options{Corrector: corr, Scheduler: sched, Reference: &harmonic{}, RefEmbedding: fixed, Metrics: M, Logger: zap.New(core)})
	require.NoError(Te, err)

	bad := water("arity")
	bad.NMM = 3
	_, err = S.Process(context.Background(), bad)
	assert.ErrorIs(Te, err, emle.ErrMalformedRequest)

	iron := water("iron")
	iron.Z[0] = 26
	_, err = S.Process(context.Background(), iron)
	assert.ErrorIs(Te, err, emle.ErrUnsupportedElement)
	assert.Equal(Te, 0, B.calls)

	B.fail = true
	_, err = S.Process(context.Background(), water("scf"))
	assert.ErrorIs(Te, err, emle.ErrBackendCompute)

	assert.Equal(Te, 0, S.Step())
	l, on := S.Lambda()
	assert.True(Te, on)
	assert.Equal(Te, 0.0, l)
	assert.Equal(Te, 3, logs.FilterMessage("job failed").Len())
	assert.Equal(Te, 1.0, value(Te, M.Jobs.WithLabelValues(string(emle.BackendCompute))))

	B.fail = false
	_, err = S.Process(context.Background(), water("ok"))
	require.NoError(Te, err)
	assert.Equal(Te, 1, S.Step())
	l, _ = S.Lambda()
	assert.Equal(Te, 0.25, l)
	assert.Equal(Te, 1.0, value(Te, M.Jobs.WithLabelValues("ok")))
	assert.Equal(Te, 1.0, value(Te, M.Step))
}

func TestInterpolation(Te *testing.T) {
	qmB, ref := &harmonic{offset: -10}, &harmonic{offset: -2}
	sched, err := lambda.NewLinear(0, 1, 2)
	require.NoError(Te, err)
	fixed, err := embed.New(embed.FixedMM, nil, []float64{-0.8, 0.4, 0.4})
	require.NoError(Te, err)
	var elog bytes.Buffer
	S, err := NewSession(qmB, Options{Scheduler: sched, Reference: ref, RefEmbedding: fixed, Cadence: 2, EnergyLog: &elog})
	require.NoError(Te, err)

	J := water("w")
	x, _ := J.QM()
	mm, _ := J.MM()
	c, err := fixed.Correct(context.Background(), &embed.Input{Z: J.Z, QM: x, MMCharges: J.MMCharges, MM: mm})
	require.NoError(Te, err)
	vac, _ := qmB.Compute(context.Background(), &qm.System{Z: J.Z, Coords: x})
	E1 := vac.Energy
	E0 := vac.Energy + 8 + c.Energy

	for i, l := range []float64{0, 0.5, 1, 1} {
		r, err := S.Process(context.Background(), water("w"))
		require.NoError(Te, err)
		require.NotNil(Te, r.Lambda)
		assert.Equal(Te, l, *r.Lambda, i)
		assert.InDelta(Te, (1-l)*E0+l*E1, r.ETot, 1e-10, i)
		require.Len(Te, r.GradMM, 6)
		//no embedding on the QM side, so the MM gradient only comes from the reference.
		for k, g := range c.GradMM.Raw() {
			assert.InDelta(Te, (1-l)*g, r.GradMM[k], 1e-12)
		}
	}
	st := S.Status()
	assert.Equal(Te, "complete", st.State)
	assert.Equal(Te, 4, st.Step)

	lines := strings.Split(strings.TrimSpace(elog.String()), "\n")
	require.Len(Te, lines, 3)
	assert.Contains(Te, lines[0], "E(λ=0)")
	assert.Equal(Te, []string{"0", "2"}, []string{strings.Fields(lines[1])[0], strings.Fields(lines[2])[0]})
	assert.Equal(Te, "1.00000", strings.Fields(lines[2])[1])
}

func TestSetLambda(Te *testing.T) {
	S, err := NewSession(&harmonic{}, Options{})
	require.NoError(Te, err)
	assert.ErrorIs(Te, S.SetLambda(0.5), emle.ErrMalformedRequest)

	fixed, _ := embed.New(embed.FixedMM, nil, []float64{-0.8, 0.4, 0.4})
	S, err = NewSession(&harmonic{}, Options{Reference: &harmonic{}, RefEmbedding: fixed})
	require.NoError(Te, err)
	assert.ErrorIs(Te, S.SetLambda(1.5), emle.ErrMalformedRequest)
	require.NoError(Te, S.SetLambda(0.3))
	st := S.Status()
	assert.Equal(Te, "fixed", st.State)
	assert.Equal(Te, 0.3, st.Lambda)
	r, err := S.Process(context.Background(), water("w"))
	require.NoError(Te, err)
	assert.Equal(Te, 0.3, *r.Lambda)
	l, _ := S.Lambda()
	assert.Equal(Te, 0.3, l)

	_, err = NewSession(&harmonic{}, Options{Scheduler: mustFixed(Te, 0.5)})
	assert.ErrorIs(Te, err, emle.ErrConfiguration)
}

func mustFixed(Te *testing.T, l float64) *lambda.Scheduler {
	s, err := lambda.NewFixed(l)
	require.NoError(Te, err)
	return s
}

func TestHistory(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "qm.stf")
	S, err := NewSession(&harmonic{}, Options{History: name})
	require.NoError(Te, err)
	for i := 0; i < 2; i++ {
		_, err := S.Process(context.Background(), water("w"))
		require.NoError(Te, err)
	}
	require.NoError(Te, S.Close())
	R, hdr, err := history.Open(name)
	require.NoError(Te, err)
	defer R.Close()
	assert.Equal(Te, "O H H", hdr["elements"])
	c := v3.Zeros(3)
	for i := 0; i < 2; i++ {
		step, err := R.Next(c)
		require.NoError(Te, err)
		assert.Equal(Te, i, step)
	}
	assert.InDelta(Te, 0.7572, c.Vec(1)[1], 1e-3)
}

// Switching lambda on during a run keeps every line of the log in the header's format.
func TestLambdaSwitchedOnMidRun(Te *testing.T) {
	fixed, err := embed.New(embed.FixedMM, nil, []float64{-0.8, 0.4, 0.4})
	require.NoError(Te, err)
	var elog bytes.Buffer
	S, err := NewSession(&harmonic{offset: -10}, Options{Reference: &harmonic{offset: -2}, RefEmbedding: fixed, EnergyLog: &elog})
	require.NoError(Te, err)
	r, err := S.Process(context.Background(), water("w"))
	require.NoError(Te, err)
	assert.Nil(Te, r.Lambda)
	require.NoError(Te, S.SetLambda(0.5))
	r, err = S.Process(context.Background(), water("w"))
	require.NoError(Te, err)
	require.NotNil(Te, r.Lambda)

	R, err := analyze.Read(&elog)
	require.NoError(Te, err)
	assert.True(Te, R.Interpolated)
	assert.Equal(Te, []int{0, 1}, R.Steps)
	require.Len(Te, R.Windows, 2)
	assert.Equal(Te, 0.5, R.Windows[0].Lambda)
	assert.Equal(Te, 1.0, R.Windows[1].Lambda)
}

// The same geometry at the same lambda gives the same result every time.
func TestDeterministic(Te *testing.T) {
	corr, err := embed.New(embed.Electrostatic, nil, nil)
	require.NoError(Te, err)
	fixed, err := embed.New(embed.FixedMM, nil, []float64{-0.8, 0.4, 0.4})
	require.NoError(Te, err)
	S, err := NewSession(&harmonic{offset: -76}, Options{Corrector: corr, Scheduler: mustFixed(Te, 0.3), Reference: &harmonic{offset: -70}, RefEmbedding: fixed})
	require.NoError(Te, err)
	a, err := S.Process(context.Background(), water("w"))
	require.NoError(Te, err)
	b, err := S.Process(context.Background(), water("w"))
	require.NoError(Te, err)
	assert.Equal(Te, 1, b.Step)
	a.Step, b.Step = 0, 0
	assert.True(Te, reflect.DeepEqual(a, b))
	assert.Equal(Te, 0.3, *b.Lambda)
}

func TestCadence(Te *testing.T) {
	var elog bytes.Buffer
	S, err := NewSession(&harmonic{}, Options{Cadence: 5, EnergyLog: &elog})
	require.NoError(Te, err)
	for i := 0; i < 11; i++ {
		_, err := S.Process(context.Background(), water("w"))
		require.NoError(Te, err)
	}
	R, err := analyze.Read(&elog)
	require.NoError(Te, err)
	assert.False(Te, R.Interpolated)
	assert.Equal(Te, []int{0, 5, 10}, R.Steps)
}

func dial(Te *testing.T, addr string) *protocol.EmleClient {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(Te, err)
	Te.Cleanup(func() { conn.Close() })
	return protocol.NewEmleClient(conn)
}

// rpcErr returns the error of a call as the client sees it.
func rpcErr[T any](f func(opts ...grpc.CallOption) (T, error)) (T, error) {
	var md metadata.MD
	r, err := f(grpc.Trailer(&md))
	return r, protocol.FromRPC(err, md)
}

func TestServe(Te *testing.T) {
	dir := Te.TempDir()
	fixed, _ := embed.New(embed.FixedMM, nil, []float64{-0.8, 0.4, 0.4})
	S, err := NewSession(&harmonic{}, Options{Reference: &harmonic{}, RefEmbedding: fixed})
	require.NoError(Te, err)
	srv, err := Listen("127.0.0.1:0", S, dir, nil)
	require.NoError(Te, err)
	port, ok := records.Live(dir)
	require.True(Te, ok)
	assert.Equal(Te, srv.Addr().(*net.TCPAddr).Port, port)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()
	addr := srv.Addr().String()
	c := dial(Te, addr)
	ctx := context.Background()

	st, err := c.Status(ctx, &protocol.Empty{})
	require.NoError(Te, err)
	assert.Equal(Te, os.Getpid(), st.PID)
	assert.Equal(Te, "disabled", st.State)

	r, err := c.Submit(ctx, water("1"))
	require.NoError(Te, err)
	assert.Equal(Te, 0, r.Step)

	bad := water("2")
	bad.Coords = bad.Coords[:3]
	_, err = rpcErr(func(opts ...grpc.CallOption) (*protocol.Result, error) { return c.Submit(ctx, bad, opts...) })
	assert.ErrorIs(Te, err, emle.ErrMalformedRequest)

	st, err = c.SetLambda(ctx, &protocol.LambdaRequest{Lambda: 0.7})
	require.NoError(Te, err)
	assert.Equal(Te, "fixed", st.State)

	//garbage instead of a call doesn't bother the server.
	raw, err := net.Dial("tcp", addr)
	require.NoError(Te, err)
	_, err = raw.Write([]byte{0, 0, 0, 2, 'n', 'o'})
	require.NoError(Te, err)
	raw.Close()

	r, err = c.Submit(ctx, water("3"))
	require.NoError(Te, err)
	assert.Equal(Te, 1, r.Step)
	assert.Equal(Te, 0.7, *r.Lambda)

	st, err = c.Shutdown(ctx, &protocol.Empty{})
	require.NoError(Te, err)
	assert.Equal(Te, 2, st.Step)
	select {
	case err := <-done:
		require.NoError(Te, err)
	case <-time.After(10 * time.Second):
		Te.Fatal("server did not stop")
	}
	_, err = os.Stat(filepath.Join(dir, records.PIDFile))
	assert.ErrorIs(Te, err, os.ErrNotExist)
	_, err = net.Dial("tcp", addr)
	assert.Error(Te, err)
}

// Calls arriving together are processed one at a time, each job getting its own step.
func TestSerialSteps(Te *testing.T) {
	S, err := NewSession(&harmonic{}, Options{})
	require.NoError(Te, err)
	srv, err := Listen("127.0.0.1:0", S, "", nil)
	require.NoError(Te, err)
	go srv.Serve(context.Background())
	Te.Cleanup(func() { srv.Close() })
	c := dial(Te, srv.Addr().String())

	const n = 8
	steps := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Submit(context.Background(), water("w"))
			if assert.NoError(Te, err) {
				steps <- r.Step
			}
		}()
	}
	wg.Wait()
	close(steps)
	var got []int
	for s := range steps {
		got = append(got, s)
	}
	sort.Ints(got)
	assert.Equal(Te, []int{0, 1, 2, 3, 4, 5, 6, 7}, got)
}

func TestServeCancel(Te *testing.T) {
	S, err := NewSession(&harmonic{}, Options{})
	require.NoError(Te, err)
	srv, err := Listen("127.0.0.1:0", S, "", nil)
	require.NoError(Te, err)
	require.NoError(Te, srv.ServeMetrics("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(Te, err)
	case <-time.After(10 * time.Second):
		Te.Fatal("server did not stop")
	}
	//the port is free again
	srv, err = Listen(srv.Addr().String(), S, "", nil)
	require.NoError(Te, err)
	srv.Close()
}

func TestBusyPort(Te *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(Te, err)
	defer l.Close()
	S, err := NewSession(&harmonic{}, Options{})
	require.NoError(Te, err)
	_, err = Listen(l.Addr().String(), S, Te.TempDir(), nil)
	assert.ErrorIs(Te, err, emle.ErrConfiguration)
}

// A second launch on a taken port leaves the files of the running server alone.
func TestLosingLaunchIsHarmless(Te *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(Te, err)
	defer l.Close()
	dir := Te.TempDir()
	name := filepath.Join(dir, "emle_log.txt")
	content := "#header\n        0 -1.0 -1.0\n        1 -1.0 -1.0\n"
	require.NoError(Te, os.WriteFile(name, []byte(content), 0o644))
	require.NoError(Te, records.Write(dir, os.Getpid(), l.Addr().(*net.TCPAddr).Port))

	C, err := config.Load(nil)
	require.NoError(Te, err)
	C.Host = "127.0.0.1"
	C.Port = l.Addr().(*net.TCPAddr).Port
	C.EnergyLog = name
	C.RecordsDir = dir
	_, err = New(context.Background(), C, nil)
	assert.ErrorIs(Te, err, emle.ErrConfiguration)

	data, err := os.ReadFile(name)
	require.NoError(Te, err)
	assert.Equal(Te, content, string(data))
	port, ok := records.Live(dir)
	assert.True(Te, ok)
	assert.Equal(Te, C.Port, port)
}

func TestEnergyLogAppends(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "emle_log.txt")
	require.NoError(Te, os.WriteFile(name, []byte("old\n"), 0o644))
	f, err := OpenEnergyLog(name)
	require.NoError(Te, err)
	S, err := NewSession(&harmonic{}, Options{EnergyLog: f})
	require.NoError(Te, err)
	_, err = S.Process(context.Background(), water("w"))
	require.NoError(Te, err)
	require.NoError(Te, f.Close())
	data, err := os.ReadFile(name)
	require.NoError(Te, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(Te, lines, 3)
	assert.Equal(Te, "old", lines[0])
	assert.True(Te, strings.HasPrefix(lines[1], "#"))

	_, err = OpenEnergyLog(filepath.Join(Te.TempDir(), "missing", "log"))
	assert.ErrorIs(Te, err, emle.ErrConfiguration)
}
