/*
 * control.go, part of goemle.
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
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/internal/client"
	"github.com/rmera/goemle/internal/config"
	"github.com/rmera/goemle/internal/protocol"
	"github.com/rmera/goemle/internal/records"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

var setLambdaCmd = &cobra.Command{
	Use:   "set-lambda <lambda>",
	Short: "Fix the interpolation parameter of the running server",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetLambda,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of the running server",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(stopCmd, setLambdaCmd, statusCmd)
}

func control(cmd *cobra.Command, kind protocol.Kind, lambda float64) (*protocol.Status, *config.Config, *zap.Logger, error) {
	C, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(C)
	if err != nil {
		return nil, nil, nil, err
	}
	cl := client.New(C, log)
	defer cl.Close()
	st, err := cl.Control(context.Background(), kind, lambda)
	return st, C, log, err
}

func printStatus(cmd *cobra.Command, st *protocol.Status) {
	if st == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pid %d step %d lambda %.5f (%s) backend %s method %s\n",
		st.PID, st.Step, st.Lambda, st.State, st.Backend, st.Method)
}

// runStop asks the server to shut down. If it does not answer but its
// records show it alive, it gets a SIGTERM instead.
func runStop(cmd *cobra.Command, args []string) error {
	st, C, log, err := control(cmd, protocol.KindShutdown, 0)
	if err == nil {
		printStatus(cmd, st)
		return nil
	}
	if !errors.Is(err, emle.ErrServerUnreachable) {
		return err
	}
	pid, _, rerr := records.Read(C.RecordsDir)
	if rerr != nil || !records.Alive(pid) {
		return err
	}
	log.Warn("server not answering, sending SIGTERM", zap.Int("pid", pid))
	p, ferr := os.FindProcess(pid)
	if ferr != nil {
		return err
	}
	if serr := p.Signal(syscall.SIGTERM); serr != nil {
		return emle.Errorf(emle.ServerUnreachable, "runStop", "signal %d: %v", pid, serr)
	}
	return nil
}

func runSetLambda(cmd *cobra.Command, args []string) error {
	l, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return emle.Errorf(emle.MalformedRequest, "set-lambda", "%q is not a number", args[0])
	}
	st, _, _, err := control(cmd, protocol.KindSetLambda, l)
	if err != nil {
		return err
	}
	printStatus(cmd, st)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, _, _, err := control(cmd, protocol.KindStatus, 0)
	if err != nil {
		return err
	}
	printStatus(cmd, st)
	return nil
}
