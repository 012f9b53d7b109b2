/*
 * elements.go, part of goemle.
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

package emle

import (
	"fmt"
	"strconv"
	"strings"
)

// The first 54 elements, indexed by atomic number. Element 0 is a dummy.
var symbols = [...]string{"X",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn", "Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn", "Sb", "Te", "I", "Xe",
}

// A map for assigning mass to elements.
// Note that just common "bio-elements" are present
var symbolMass = map[string]float64{
	"H":  1.008,
	"C":  12.011,
	"N":  14.007,
	"O":  15.999,
	"F":  18.998,
	"Na": 22.99,
	"Mg": 24.305,
	"P":  30.974,
	"S":  32.06,
	"Cl": 35.45,
	"K":  39.098,
	"Ca": 40.078,
	"Fe": 55.845,
	"Cu": 63.546,
	"Zn": 65.38,
	"Br": 79.904,
	"I":  126.90,
}

// Supported is the set of elements the embedding models are parametrized for.
var Supported = []int{1, 6, 7, 8, 16}

// Symbol2Z returns the atomic number for an element symbol. The symbol is not
// case sensitive. Plain integers are also accepted, as some programs
// write atomic numbers instead of symbols.
func Symbol2Z(symbol string) (int, error) {
	s := strings.TrimSpace(symbol)
	if z, err := strconv.Atoi(s); err == nil {
		if z <= 0 || z >= len(symbols) {
			return 0, fmt.Errorf("atomic number %d out of range", z)
		}
		return z, nil
	}
	if s == "" {
		return 0, fmt.Errorf("empty element symbol")
	}
	s = strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	for z, v := range symbols {
		if z > 0 && v == s {
			return z, nil
		}
	}
	return 0, fmt.Errorf("unknown element symbol %q", symbol)
}

// Z2Symbol returns the symbol for the element with atomic number z,
// or "X" if z is out of range.
func Z2Symbol(z int) string {
	if z <= 0 || z >= len(symbols) {
		return "X"
	}
	return symbols[z]
}

// Mass returns the standard atomic mass for z, and false if the element is not in the table.
func Mass(z int) (float64, bool) {
	m, ok := symbolMass[Z2Symbol(z)]
	return m, ok
}

// IsSupported returns true if z is one of the elements in Supported.
func IsSupported(z int) bool {
	for _, v := range Supported {
		if v == z {
			return true
		}
	}
	return false
}

// CheckSupported returns an UnsupportedElementError naming the first
// element in zs that is not in Supported, or nil if all are supported.
func CheckSupported(zs []int) error {
	for i, z := range zs {
		if !IsSupported(z) {
			return Errorf(UnsupportedElement, "CheckSupported", "atom %d is %s (Z=%d); supported elements are H, C, N, O and S", i, Z2Symbol(z), z)
		}
	}
	return nil
}
