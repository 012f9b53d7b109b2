/*
 * protocol_test.go, part of goemle.
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

package protocol

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	emle "github.com/rmera/goemle"
)

// echo answers jobs with their own data and fails on request.
type echo struct {
	err    error
	lambda float64
}

func (E *echo) Submit(ctx context.Context, J *Job) (*Result, error) {
	if E.err != nil {
		return nil, E.err
	}
	return &Result{ID: J.ID, Step: len(J.Z), GradQM: J.Coords, GradMM: J.MMCoords}, nil
}

func (E *echo) SetLambda(ctx context.Context, L *LambdaRequest) (*Status, error) {
	E.lambda = L.Lambda
	return &Status{Lambda: L.Lambda, State: "fixed"}, nil
}

func (E *echo) Status(ctx context.Context, _ *Empty) (*Status, error) {
	return &Status{Lambda: E.lambda, Backend: "echo"}, nil
}

func (E *echo) Shutdown(ctx context.Context, _ *Empty) (*Status, error) {
	return nil, errors.New("not now")
}

func dialEcho(Te *testing.T, E *echo) *EmleClient {
	ln := bufconn.Listen(1 << 20)
	s := grpc.NewServer(ServerOptions()...)
	RegisterEmleServer(s, E)
	go s.Serve(ln)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return ln.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(Te, err)
	Te.Cleanup(func() {
		conn.Close()
		s.Stop()
	})
	return NewEmleClient(conn)
}

func TestService(Te *testing.T) {
	E := &echo{}
	c := dialEcho(Te, E)
	ctx := context.Background()
	job := &Job{ID: "a", Z: []int{8, 1, 1}, Coords: []float64{0, 0, 0, 1, 0, 0, 0, 1, 0}, Multi: 1, MMCharges: []float64{0.5}, MMCoords: []float64{1, 2, 3}, NMM: 1}
	r, err := c.Submit(ctx, job)
	require.NoError(Te, err)
	assert.Equal(Te, "a", r.ID)
	assert.Equal(Te, 3, r.Step)
	assert.Equal(Te, job.Coords, r.GradQM)
	assert.Equal(Te, job.MMCoords, r.GradMM)
	assert.Nil(Te, r.Lambda)

	st, err := c.SetLambda(ctx, &LambdaRequest{Lambda: 0.25})
	require.NoError(Te, err)
	assert.Equal(Te, "fixed", st.State)
	st, err = c.Status(ctx, &Empty{})
	require.NoError(Te, err)
	assert.Equal(Te, 0.25, st.Lambda)
	assert.Equal(Te, "echo", st.Backend)
}

func TestErrorsKeepTheirKind(Te *testing.T) {
	E := &echo{err: emle.Errorf(emle.UnsupportedElement, "Check", "no parameters for %s", "Fe")}
	c := dialEcho(Te, E)
	ctx := context.Background()
	var md metadata.MD
	_, err := c.Submit(ctx, &Job{}, grpc.Trailer(&md))
	assert.Equal(Te, codes.InvalidArgument, status.Code(err))
	got := FromRPC(err, md)
	assert.ErrorIs(Te, got, emle.ErrUnsupportedElement)
	assert.Equal(Te, "UnsupportedElementError: no parameters for Fe", got.Error())

	md = nil
	_, err = c.Shutdown(ctx, &Empty{}, grpc.Trailer(&md))
	got = FromRPC(err, md)
	assert.Equal(Te, emle.Unknown, emle.KindOf(got))
	assert.Contains(Te, got.Error(), "not now")

	assert.NoError(Te, FromRPC(nil, nil))
	assert.ErrorIs(Te, FromRPC(status.Error(codes.Unavailable, "connection refused"), nil), emle.ErrServerUnreachable)
	assert.ErrorIs(Te, FromRPC(status.Error(codes.Unimplemented, "unknown method"), nil), emle.ErrMalformedRequest)
}

func TestJobArity(Te *testing.T) {
	J := &Job{Z: []int{8, 1}, Coords: make([]float64, 9), NMM: 0}
	_, err := J.QM()
	assert.ErrorIs(Te, err, emle.ErrMalformedRequest)
	J.Coords = J.Coords[:6]
	qm, err := J.QM()
	require.NoError(Te, err)
	assert.Equal(Te, 2, qm.NVecs())
	mm, err := J.MM()
	require.NoError(Te, err)
	assert.Nil(Te, mm)

	J.NMM = 2
	J.MMCharges = []float64{0.1, 0.2}
	J.MMCoords = make([]float64, 3)
	_, err = J.MM()
	assert.ErrorIs(Te, err, emle.ErrMalformedRequest)
	J.MMCoords = make([]float64, 6)
	mm, err = J.MM()
	require.NoError(Te, err)
	assert.Equal(Te, 2, mm.NVecs())
}
