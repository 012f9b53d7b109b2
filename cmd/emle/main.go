/*
 * main.go, part of goemle.
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

// Command emle runs the embedding server and the programs that talk to it.
// Installed (or linked) with the name "orca", it behaves as "emle orca", so
// an MM driver that expects ORCA can run it unchanged.
package main

import (
	"os"
	"path/filepath"
)

func main() {
	if name := filepath.Base(os.Args[0]); name == "orca" || name == "orca.exe" {
		rootCmd.SetArgs(append([]string{"orca"}, os.Args[1:]...))
	}
	os.Exit(Execute())
}
