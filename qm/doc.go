/*
 * doc.go, part of goemle.
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

//Package qm computes in-vacuo energies and gradients of a QM region
//with different programs, behind a single Backend interface, so the
//choice of program is as separated as possible from the rest of the
//calculation.
//
//ORCA and xtb are run once per job in a scratch directory. ML potentials
//are kept loaded in a runner process for the life of the server. The
//force field backend is evaluated natively from a Gromacs topology.

package qm
