/*
 * groio.go, part of goemle.
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

package top

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Atom is an entry of the [ atoms ] section.
type Atom struct {
	ID      int //1-based, as in the file
	Type    string
	ResID   int
	ResName string
	Name    string
	Charge  float64
	Mass    float64
}

// AtomType is an entry of the [ atomtypes ] section. V and W are C6 and C12 for
// combination rule 1, sigma and epsilon otherwise.
type AtomType struct {
	Name   string
	Mass   float64
	Charge float64
	Ptype  string
	V      float64
	W      float64
}

// Term is a bonded interaction. IDs are 0-based.
// Eq is in nm or degrees, K in Gromacs units.
type Term struct {
	FuncType uint
	IDs      []int
	Eq       float64
	K        float64
	Mult     int       //multiplicity for periodic dihedrals
	UB       []float64 //r13 and kUB for Urey-Bradley angles
	RB       []float64 //C0 to C5 for Ryckaert-Bellemans dihedrals
	LJ       []float64 //explicit V and W for a pair, if given.
}

// FF is the force field of one molecule.
type FF struct {
	NbFunc   int
	CombRule int
	GenPairs bool
	FudgeLJ  float64
	FudgeQQ  float64
	NrExcl   int
	Name     string

	Atoms      []*Atom
	ATypes     map[string]*AtomType
	Bonds      []*Term
	Pairs      []*Term
	Angles     []*Term
	Dihedrals  []*Term
	Exclusions [][]int //0-based, first element is the atom the rest are excluded from.

	//Dir is where #include'd files are searched for, if not absolute.
	Dir           string
	currentHeader string
	molecules     int
}

// NewFF returns an empty force field with the Gromacs defaults.
func NewFF() *FF {
	return &FF{NbFunc: 1, CombRule: 2, GenPairs: true, FudgeLJ: 1, FudgeQQ: 1, NrExcl: 3, ATypes: make(map[string]*AtomType)}
}

type cond struct {
	reading []bool
}

// a function to read conditional parts of gromacs topologies
// depending on the defined flags that should be in 'defines'
func (c *cond) read(line string, defines []string) bool {
	f := fi(line)
	switch {
	case strings.HasPrefix(line, "#ifdef"), strings.HasPrefix(line, "#ifndef"):
		in := len(f) > 1 && slices.Contains(defines, f[1])
		if strings.HasPrefix(line, "#ifndef") {
			in = !in
		}
		c.reading = append(c.reading, in)
		return false
	case strings.HasPrefix(line, "#else"):
		if l := len(c.reading); l > 0 {
			c.reading[l-1] = !c.reading[l-1]
		}
		return false
	case strings.HasPrefix(line, "#endif"):
		if l := len(c.reading); l > 0 {
			c.reading = c.reading[:l-1]
		}
		return false
	}
	for _, v := range c.reading {
		if !v {
			return false
		}
	}
	return true
}

// ReadFile reads the Gromacs topology (top or itp) in the file name.
func ReadFile(name string, defines ...string) (*FF, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	F := NewFF()
	F.Dir = filepath.Dir(name)
	if err := F.Fill(bufio.NewReader(f), true, defines...); err != nil {
		return nil, fmt.Errorf("topology %s: %w", name, err)
	}
	if len(F.Atoms) == 0 {
		return nil, fmt.Errorf("topology %s: no atoms read", name)
	}
	return F, nil
}

// Fill will fill the receiver with data from the given StringReader which must be
// in Gromacs itp/top format. If followIncludes is true, #include statements
// will trigger opening and reading the included file(s).
func (F *FF) Fill(r StringReader, followIncludes bool, defines ...string) error {
	var err error
	var s string
	read := new(cond)
	h := newTopHeader()
	for s, err = r.ReadString('\n'); err == nil || s != ""; s, err = r.ReadString('\n') {
		s = cleanString(s)
		if s == "" {
			if err != nil {
				break
			}
			continue
		}
		if !read.read(s, defines) {
			continue
		}
		if strings.HasPrefix(s, "#define") {
			if f := fi(s); len(f) == 2 {
				defines = append(defines, f[1])
			}
			continue
		}
		if strings.HasPrefix(s, "#include") {
			if !followIncludes {
				continue
			}
			f := fi(s)
			fname := strings.Trim(f[len(f)-1], "\"'<>")
			if !filepath.IsAbs(fname) {
				fname = filepath.Join(F.Dir, fname)
			}
			if err := F.include(fname, defines); err != nil {
				return err
			}
			continue
		}
		if h.Is(s) {
			F.currentHeader = h.Which(s)
			if F.currentHeader == "moleculetype" {
				F.molecules++
			}
			continue
		}
		if F.molecules > 1 {
			return fmt.Errorf("only one moleculetype per topology is supported")
		}
		var T *Term
		var att *AtomType
		var at *Atom
		switch F.currentHeader {
		case "defaults":
			err = F.defaultsFromGro(s)
		case "atomtypes":
			att, err = AtomTypeFromGro(s)
			if err == nil {
				F.ATypes[att.Name] = att
			}
		case "moleculetype":
			f := fi(s)
			F.Name = f[0]
			if len(f) > 1 {
				F.NrExcl, err = strconv.Atoi(f[1])
			}
		case "atoms":
			at, err = AtomFromGro(s)
			if err == nil {
				if at.ID != len(F.Atoms)+1 {
					err = fmt.Errorf("atoms must be numbered consecutively from 1, found %d", at.ID)
				}
				F.Atoms = append(F.Atoms, at)
			}
		case "bonds", "pairs", "angles", "dihedrals":
			T, err = TermFromGro(s, F.currentHeader)
			if err == nil {
				switch F.currentHeader {
				case "bonds":
					F.Bonds = append(F.Bonds, T)
				case "pairs":
					F.Pairs = append(F.Pairs, T)
				case "angles":
					F.Angles = append(F.Angles, T)
				case "dihedrals":
					F.Dihedrals = append(F.Dihedrals, T)
				}
			}
		case "exclusions":
			err = F.exclusionsFromGro(s)
		case "constraints":
			err = fmt.Errorf("constraints are not supported in a QM-region topology")
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("couldn't read header %s. Line: %s. Error: %w", F.currentHeader, s, err)
		}
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return err
}

func (F *FF) include(fname string, defines []string) error {
	file, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("failed to include file %s: %w", fname, err)
	}
	defer file.Close()
	dir := F.Dir
	F.Dir = filepath.Dir(fname)
	defer func() { F.Dir = dir }()
	if err := F.Fill(bufio.NewReader(file), true, defines...); err != nil {
		return fmt.Errorf("failed to include file %s: %w", fname, err)
	}
	return nil
}

func (F *FF) defaultsFromGro(s string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s", r)
		}
	}()
	f := fi(s)
	F.NbFunc, err = strconv.Atoi(f[0])
	qerr(err)
	F.CombRule, err = strconv.Atoi(f[1])
	qerr(err)
	if F.NbFunc != 1 {
		return fmt.Errorf("only Lennard-Jones nonbonded functions are supported, got %d", F.NbFunc)
	}
	if len(f) > 2 {
		F.GenPairs = strings.HasPrefix(strings.ToLower(f[2]), "y")
	}
	if len(f) > 3 {
		F.FudgeLJ, err = strconv.ParseFloat(f[3], 64)
		qerr(err)
	}
	if len(f) > 4 {
		F.FudgeQQ, err = strconv.ParseFloat(f[4], 64)
		qerr(err)
	}
	return nil
}

func (F *FF) exclusionsFromGro(s string) error {
	ex, err := parseints(fi(s)...)
	if err != nil {
		return err
	}
	for i := range ex {
		ex[i]--
	}
	F.Exclusions = append(F.Exclusions, ex)
	return nil
}

// Charges returns the charges of the atoms, in order.
func (F *FF) Charges() []float64 {
	ret := make([]float64, len(F.Atoms))
	for i, v := range F.Atoms {
		ret[i] = v.Charge
	}
	return ret
}

// AtomFromGro reads a line of the [ atoms ] section.
func AtomFromGro(s string) (at *Atom, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s", r)
		}
	}()
	l := fi(cleanString(s))
	at = new(Atom)
	at.ID, err = strconv.Atoi(l[0])
	qerr(err)
	at.Type = l[1]
	at.ResID, err = strconv.Atoi(l[2])
	qerr(err)
	at.ResName = l[3]
	at.Name = l[4]
	at.Charge, err = strconv.ParseFloat(l[6], 64)
	qerr(err)
	if len(l) > 7 {
		at.Mass, err = strconv.ParseFloat(l[7], 64)
		qerr(err)
	}
	return at, nil
}

// Returns a term containing the information in the GromacsTop-formatted string s,
// given that the string is part of the header header.
// Parameters must be given explicitly, the bondtypes-like sections are not read.
func TermFromGro(s, header string) (T *Term, err error) {
	defer func() {
		if r := recover(); r != nil {
			T = nil
			err = fmt.Errorf("%s", r)
		}
	}()
	T = new(Term)
	l := fi(cleanString(s))
	ats := map[string]int{"bonds": 2, "pairs": 2, "angles": 3, "dihedrals": 4}[header]
	if ats == 0 {
		return nil, fmt.Errorf("unknown term header %s", header)
	}
	T.IDs, err = parseints(l[:ats]...)
	qerr(err)
	for i := range T.IDs {
		T.IDs[i]--
	}
	var ft int
	ft, err = strconv.Atoi(l[ats])
	qerr(err)
	T.FuncType = uint(ft)
	p, err := parsefloats(l[ats+1:]...)
	qerr(err)
	if header == "pairs" {
		if len(p) >= 2 {
			T.LJ = p[:2]
		}
		return T, nil
	}
	want := map[string]map[uint]int{
		"bonds":     {1: 2},
		"angles":    {1: 2, 5: 4},
		"dihedrals": {1: 3, 2: 2, 3: 6, 4: 3, 9: 3},
	}[header]
	n, ok := want[T.FuncType]
	if !ok {
		return nil, fmt.Errorf("unsupported function type %d for %s", T.FuncType, header)
	}
	if len(p) < n {
		return nil, fmt.Errorf("%s function %d needs %d explicit parameters, got %d", header, T.FuncType, n, len(p))
	}
	switch {
	case header == "dihedrals" && T.FuncType == 3:
		T.RB = p[:6]
	case header == "dihedrals" && T.FuncType != 2:
		T.Eq, T.K = p[0], p[1]
		T.Mult = int(p[2])
	default:
		T.Eq, T.K = p[0], p[1]
		if header == "angles" && T.FuncType == 5 {
			T.UB = p[2:4]
		}
	}
	return T, nil
}

// AtomTypeFromGro reads a string with the appropriate gromacs topology format
// to return a pointer to AtomType. The bonded type and atomic number
// columns are optional, so the particle type column is used as anchor.
func AtomTypeFromGro(s string) (ret *AtomType, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("couldn't read atom type from string. Error: %s String:%s", r, s)
		}
	}()
	f := fi(cleanString(s))
	p := -1
	for i := 3; i < len(f); i++ {
		if slices.Contains([]string{"A", "D", "S", "V"}, f[i]) {
			p = i
			break
		}
	}
	if p < 0 || len(f) < p+3 {
		return nil, fmt.Errorf("can't find the particle type in atom type line %q", s)
	}
	ret = new(AtomType)
	ret.Name = f[0]
	ret.Mass, err = strconv.ParseFloat(f[p-2], 64)
	qerr(err)
	ret.Charge, err = strconv.ParseFloat(f[p-1], 64)
	qerr(err)
	ret.Ptype = f[p]
	ret.V, err = strconv.ParseFloat(f[p+1], 64)
	qerr(err)
	ret.W, err = strconv.ParseFloat(f[p+2], 64)
	qerr(err)
	return ret, nil
}
