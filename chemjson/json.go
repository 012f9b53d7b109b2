/*
 * json.go, part of goemle.
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

package chemjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	v3 "github.com/rmera/goemle/v3"
)

// Ready is the first message of a runner, once its model is loaded.
type Ready struct {
	Ready  bool   `json:"ready"`
	Model  string `json:"model,omitempty"`
	Device string `json:"device,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Request asks for the energy and gradient of one geometry.
type Request struct {
	Z      []int     `json:"z"`
	Coords []float64 `json:"coords"`
	Charge int       `json:"charge"`
}

// Response is the answer to a Request. If Error is not empty, the
// other fields are meaningless.
type Response struct {
	Energy   float64   `json:"energy"`
	Gradient []float64 `json:"gradient"`
	Error    string    `json:"error,omitempty"`
}

// NewRequest builds a request for the atoms z with the given coordinates.
func NewRequest(z []int, coords *v3.Matrix, charge int) *Request {
	return &Request{Z: z, Coords: coords.Raw(), Charge: charge}
}

// GradientMatrix returns the gradient of the response, checking that it has natoms vectors.
func (R *Response) GradientMatrix(natoms int) (*v3.Matrix, error) {
	if R.Error != "" {
		return nil, fmt.Errorf("runner error: %s", R.Error)
	}
	if len(R.Gradient) != 3*natoms {
		return nil, fmt.Errorf("runner returned %d gradient components for %d atoms", len(R.Gradient), natoms)
	}
	return v3.NewMatrix(R.Gradient)
}

// Send writes v as a single line of JSON.
func Send(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("chemjson.Send: %w", err)
	}
	return nil
}

// Receive reads one line from stream and decodes it into v.
func Receive(stream *bufio.Reader, v any) error {
	line, err := stream.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return err
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("chemjson.Receive: %w", err)
	}
	return nil
}
