/*
 * params.go, part of goemle.
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

package embed

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	emle "github.com/rmera/goemle"
)

//go:embed default.yaml
var defaultModel []byte

// ElementParams are the parameters of one species.
type ElementParams struct {
	S     float64 `yaml:"s"`      //valence width, Bohr
	Chi   float64 `yaml:"chi"`    //electronegativity
	QCore float64 `yaml:"q_core"` //core charge
	K     float64 `yaml:"k"`      //polarizability volume scaling
}

// Params is an embedding model, as read from a YAML file.
type Params struct {
	Name string `yaml:"name"`
	//Backend is the in-vacuo backend the model was trained against, if known.
	Backend  string                   `yaml:"backend"`
	AQEq     float64                  `yaml:"a_qeq"`
	AThole   float64                  `yaml:"a_thole"`
	Elements map[string]ElementParams `yaml:"elements"`

	byZ map[int]ElementParams
}

// DefaultParams returns the built-in model.
func DefaultParams() *Params {
	P, err := parseParams(defaultModel, "default")
	if err != nil {
		panic(err.Error()) //the embedded file is part of the build.
	}
	return P
}

// LoadParams reads a model from the YAML file name. An empty
// name gives the built-in model.
func LoadParams(name string) (*Params, error) {
	if name == "" {
		return DefaultParams(), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "LoadParams", "can't read embedding model: %w", err)
	}
	P, err := parseParams(data, name)
	if err != nil {
		return nil, emle.AsKind(err, emle.Configuration, "LoadParams")
	}
	return P, nil
}

func parseParams(data []byte, name string) (*Params, error) {
	P := new(Params)
	if err := yaml.Unmarshal(data, P); err != nil {
		return nil, emle.Errorf(emle.Configuration, "parseParams", "embedding model %s: %w", name, err)
	}
	if P.AQEq <= 0 || P.AThole <= 0 {
		return nil, emle.Errorf(emle.Configuration, "parseParams", "embedding model %s: a_qeq and a_thole must be positive", name)
	}
	P.byZ = make(map[int]ElementParams, len(P.Elements))
	for sym, e := range P.Elements {
		z, err := emle.Symbol2Z(sym)
		if err != nil {
			return nil, emle.Errorf(emle.Configuration, "parseParams", "embedding model %s: %w", name, err)
		}
		if e.S <= 0 {
			return nil, emle.Errorf(emle.Configuration, "parseParams", "embedding model %s: non-positive width for %s", name, sym)
		}
		P.byZ[z] = e
	}
	for _, z := range emle.Supported {
		if _, ok := P.byZ[z]; !ok {
			return nil, emle.Errorf(emle.Configuration, "parseParams", "embedding model %s lacks parameters for %s", name, emle.Z2Symbol(z))
		}
	}
	if P.Name == "" {
		P.Name = name
	}
	return P, nil
}

// Compatible reports whether the model is known to have been trained against
// backend. known is false when the model doesn't declare a backend, in which
// case compatibility can't be verified.
func (P *Params) Compatible(backend string) (ok, known bool) {
	if P.Backend == "" {
		return false, false
	}
	return strings.EqualFold(P.Backend, backend), true
}

// atomParams holds the parameters for each atom of a given molecule.
type atomParams struct {
	s, chi, qcore, k []float64
}

func (P *Params) forAtoms(z []int) (*atomParams, error) {
	a := &atomParams{
		s:     make([]float64, len(z)),
		chi:   make([]float64, len(z)),
		qcore: make([]float64, len(z)),
		k:     make([]float64, len(z)),
	}
	for i, v := range z {
		e, ok := P.byZ[v]
		if !ok || !emle.IsSupported(v) {
			return nil, emle.Errorf(emle.UnsupportedElement, "forAtoms", "no embedding parameters for atom %d (%s)", i, emle.Z2Symbol(v))
		}
		a.s[i], a.chi[i], a.qcore[i], a.k[i] = e.S, e.Chi, e.QCore, e.K
	}
	return a, nil
}

func (P *Params) String() string {
	return fmt.Sprintf("%s (a_qeq=%g, a_thole=%g, %d elements)", P.Name, P.AQEq, P.AThole, len(P.byZ))
}
