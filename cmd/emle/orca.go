/*
 * orca.go, part of goemle.
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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmera/goemle/internal/client"
	"github.com/rmera/goemle/internal/logging"
)

var orcaCmd = &cobra.Command{
	Use:   "orca <input>",
	Short: "Compute an ORCA input through the server, writing the .engrad and .pcgrad files",
	Long: `Reads an ORCA input as written by the MM driver, together with its geometry
and point-charge files, sends the job to the server and writes the results
where ORCA would. A server is started if none is running and spawning is enabled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runORCA,
}

func init() {
	rootCmd.AddCommand(orcaCmd)
}

func runORCA(cmd *cobra.Command, args []string) error {
	C, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(C)
	if err != nil {
		return err
	}
	defer log.Sync()
	spawn := append([]string{"server"}, forwarded(cmd.Flags())...)
	cl := client.New(C, log, spawn...)
	defer cl.Close()
	r, err := cl.RunORCA(context.Background(), args[0])
	if err != nil {
		log.Error("job failed", logging.Error(err)...)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "FINAL SINGLE POINT ENERGY %20.12f\n", r.ETot)
	return nil
}
