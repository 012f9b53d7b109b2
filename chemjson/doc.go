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

// Package chemjson implements the messages exchanged between goemle and
// an external model runner: a program that keeps an ML potential loaded and
// evaluates it on request.
//
// The messages are JSON objects, one per line, through the standard input and
// output of the runner. Once the model is loaded the runner prints a Ready
// message. Then, for each Request it reads, it prints a Response. Coordinates are
// in A, energies in Hartree and gradients in Hartree/Bohr.
package chemjson
