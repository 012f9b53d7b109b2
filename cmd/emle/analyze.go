/*
 * analyze.go, part of goemle.
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
	"github.com/spf13/cobra"

	"github.com/rmera/goemle/internal/analyze"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <energy-log>",
	Short: "Summarize an energy log",
	Long: `Prints count, extremes, mean and standard deviation of each column of an
energy log. For interpolated runs it also prints the mean dE/dlambda at each
lambda and its integral over lambda.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		R, err := analyze.ReadFile(args[0])
		if err != nil {
			return err
		}
		return R.Write(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
