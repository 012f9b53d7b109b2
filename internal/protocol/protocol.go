/*
 * protocol.go, part of goemle.
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

// Package protocol defines the service between the client shim and the server:
// a gRPC service whose messages are encoded as JSON. An error from the server
// reaches the client with its kind.
package protocol

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

// MaxMessage is the largest message accepted, in bytes.
const MaxMessage = 256 << 20

// KindKey is the trailer key carrying the kind of a failed call.
const KindKey = "emle-kind"

// Kind is the type of a control request.
type Kind string

const (
	KindSetLambda Kind = "set_lambda"
	KindShutdown  Kind = "shutdown"
	KindStatus    Kind = "status"
)

// Job is a QM/MM job. Coordinates are flattened, in A.
type Job struct {
	ID        string    `json:"id"`
	Z         []int     `json:"z"`
	Coords    []float64 `json:"coords"`
	Charge    int       `json:"charge"`
	Multi     int       `json:"multi"`
	MMCharges []float64 `json:"mm_charges"`
	MMCoords  []float64 `json:"mm_coords"`
	//NMM is the number of MM charges the driver declared.
	NMM int `json:"n_mm"`
}

// QM returns the QM coordinates as a matrix.
func (J *Job) QM() (*v3.Matrix, error) {
	if len(J.Coords) != 3*len(J.Z) || len(J.Z) == 0 {
		return nil, emle.Errorf(emle.MalformedRequest, "Job.QM", "%d coordinate values for %d QM atoms", len(J.Coords), len(J.Z))
	}
	return v3.NewMatrix(J.Coords)
}

// MM returns the MM coordinates as a matrix, or nil if there are no MM charges.
func (J *Job) MM() (*v3.Matrix, error) {
	if len(J.MMCharges) != J.NMM || len(J.MMCoords) != 3*J.NMM {
		return nil, emle.Errorf(emle.MalformedRequest, "Job.MM", "%d MM charges declared, %d charges and %d coordinate values given", J.NMM, len(J.MMCharges), len(J.MMCoords))
	}
	if J.NMM == 0 {
		return nil, nil
	}
	return v3.NewMatrix(J.MMCoords)
}

// Result is the outcome of a successful job. Energies are in Hartree,
// gradients in Hartree/Bohr.
type Result struct {
	ID   string  `json:"id"`
	Step int     `json:"step"`
	EVac float64 `json:"e_vac"`
	ETot float64 `json:"e_tot"`
	//GradVac is the in-vacuo gradient of the QM atoms.
	GradVac []float64 `json:"grad_vac"`
	//GradQM and GradMM are the total gradients on the QM and MM atoms.
	GradQM []float64 `json:"grad_qm"`
	GradMM []float64 `json:"grad_mm,omitempty"`
	//Lambda is nil if there is no interpolation.
	Lambda *float64 `json:"lambda,omitempty"`
}

// LambdaRequest asks the server to fix lambda.
type LambdaRequest struct {
	Lambda float64 `json:"lambda"`
}

// Empty is the request of the calls that take no arguments.
type Empty struct{}

// Status describes the server.
type Status struct {
	PID     int     `json:"pid"`
	Step    int     `json:"step"`
	Lambda  float64 `json:"lambda"`
	State   string  `json:"state"`
	Backend string  `json:"backend"`
	Method  string  `json:"method"`
}

func codeOf(k emle.Kind) codes.Code {
	switch k {
	case emle.Configuration:
		return codes.FailedPrecondition
	case emle.MalformedRequest, emle.UnsupportedElement:
		return codes.InvalidArgument
	case emle.BackendCompute:
		return codes.Internal
	case emle.ServerUnreachable:
		return codes.Unavailable
	}
	return codes.Unknown
}

// ErrorInterceptor turns the errors returned by the handlers into gRPC
// statuses, and sends their kind in the trailer.
func ErrorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	var E *emle.Error
	if !errors.As(err, &E) {
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		grpc.SetTrailer(ctx, metadata.Pairs(KindKey, string(emle.Unknown)))
		return nil, status.Error(codes.Unknown, err.Error())
	}
	grpc.SetTrailer(ctx, metadata.Pairs(KindKey, string(E.Kind())))
	return nil, status.Error(codeOf(E.Kind()), E.Message())
}

// FromRPC rebuilds the error of a call from its status and trailer md. Calls
// that never reached the server are ServerUnreachable errors.
func FromRPC(err error, md metadata.MD) error {
	if err == nil {
		return nil
	}
	st := status.Convert(err)
	if k := md.Get(KindKey); len(k) > 0 {
		return emle.NewError(emle.Kind(k[0]), st.Message(), "server")
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return emle.Errorf(emle.ServerUnreachable, "server", "%s", st.Message())
	case codes.Unimplemented:
		return emle.Errorf(emle.MalformedRequest, "server", "%s", st.Message())
	}
	return emle.NewError(emle.Unknown, st.Message(), "server")
}
