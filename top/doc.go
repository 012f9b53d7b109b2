/*
 * doc.go, part of goemle
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

/*
Package top reads the Gromacs topology of a QM region and evaluates its
force-field energy. It is what the pure-MM reference of an interpolated
run is computed from.

Only a single moleculetype is read. Supported terms are harmonic bonds,
harmonic and Urey-Bradley angles, periodic, harmonic-improper and
Ryckaert-Bellemans dihedrals, 1-4 pairs, Lennard-Jones and Coulomb.
Virtual sites and CMAP are not supported.
*/
package top
