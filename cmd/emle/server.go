/*
 * server.go, part of goemle.
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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rmera/goemle/internal/logging"
	"github.com/rmera/goemle/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the job server in the foreground",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	C, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(C)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := server.New(ctx, C, log)
	if err != nil {
		log.Error("can't start the server", logging.Error(err)...)
		return err
	}
	defer srv.Close()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("server stopped", logging.Error(err)...)
			return err
		}
		log.Info("server stopped")
	case sig := <-shutdown:
		log.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := <-serverErrors; err != nil {
			log.Warn("server stopped with an error", logging.Error(err)...)
		}
	}
	return nil
}
