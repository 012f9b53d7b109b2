/*
 * root.go, part of goemle.
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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/internal/config"
	"github.com/rmera/goemle/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "emle",
	Short:         "QM/MM embedding server",
	Long:          "emle keeps the QM backend and the embedding model loaded between the steps of an MM simulation.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.Flags(rootCmd.PersistentFlags())
}

// Execute runs the command line and returns the exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "emle: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Flags())
}

// newLogger logs to stderr, as stdout belongs to the MM driver in the orca shim.
func newLogger(C *config.Config) (*zap.Logger, error) {
	log, err := logging.New(os.Stderr, C.LogLevel, C.LogJSON)
	if err != nil {
		return nil, emle.AsKind(err, emle.Configuration, "newLogger")
	}
	return log, nil
}

// forwarded returns the flags set on the command line, in a form that the
// server command accepts, so a spawned server gets the same options.
func forwarded(fs *pflag.FlagSet) []string {
	var args []string
	fs.Visit(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, v := range sv.GetSlice() {
				args = append(args, "--"+f.Name+"="+v)
			}
			return
		}
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args
}
