/*
 * doc.go, part of goemle.
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

/*
Package emle holds the pieces shared by all of goemle: the error type
and its kinds, element data, unit conversions and XYZ file IO.

goemle is a long-lived server that answers the QM calls an MD driver
(sander) believes it is making to ORCA. Each call is turned into a job
and sent to the server, which computes in-vacuo energy and gradient with
one of several backends (package qm), adds an electrostatic embedding
correction (package embed), and optionally blends the result with a
pure-MM reference using an alchemical lambda (package lambda).

Energies are in Hartree, gradients in Hartree/Bohr and coordinates in
Angstrom unless noted otherwise.
*/
package emle
