/*
 * conversion.go, part of goemle.
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

//This provides useful conversion factors and other constants

//Conversions
const (
	H2Kcal  = 627.509 //Hartree 2 Kcal/mol
	Kcal2H  = 1 / 627.509
	H2KJ    = 2625.4996394799 //Hartree 2 kJ/mol
	KJ2H    = 1 / 2625.4996394799
	A2Bohr  = 1.8897261258369282
	Bohr2A  = 1 / 1.8897261258369282
	Nm2A    = 10.0
	A2Nm    = 0.1
	Deg2Rad = 0.017453292519943295
)

// Coulomb constant in kJ mol^-1 nm e^-2, as used by Gromacs force fields.
const CoulombKJ = 138.935458
