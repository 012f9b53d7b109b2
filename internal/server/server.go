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

// Package server implements the job server: a gRPC endpoint whose calls are
// processed one at a time, in the order they arrive.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/internal/protocol"
	"github.com/rmera/goemle/internal/records"
)

// StopTimeout bounds the time given to pending calls when the server stops.
var StopTimeout = 5 * time.Second

// Server owns the endpoint and the session. Its calls are handed to the
// goroutine running Serve, the only one touching the session.
type Server struct {
	S          *Session
	ln         net.Listener
	grpc       *grpc.Server
	log        *zap.Logger
	recordsDir string
	metrics    *http.Server
	work       chan func()
	quit       chan struct{}
	quitOnce   sync.Once
	closers    []func() error
	closeOnce  sync.Once
	closeErr   error
}

// Bind reserves the endpoint at addr. A failure is a configuration error.
func Bind(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "server.Bind", "%w", err)
	}
	return ln, nil
}

// Listen binds addr, for a server driving S. See NewServer.
func Listen(addr string, S *Session, recordsDir string, log *zap.Logger) (*Server, error) {
	ln, err := Bind(addr)
	if err != nil {
		return nil, err
	}
	return NewServer(ln, S, recordsDir, log)
}

// NewServer returns a server for S on the bound listener ln. If recordsDir
// is not empty the pid and port records are written there.
func NewServer(ln net.Listener, S *Session, recordsDir string, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		S:          S,
		ln:         ln,
		grpc:       grpc.NewServer(protocol.ServerOptions()...),
		log:        log,
		recordsDir: recordsDir,
		work:       make(chan func()),
		quit:       make(chan struct{}),
	}
	protocol.RegisterEmleServer(srv.grpc, srv)
	if recordsDir != "" {
		port := ln.Addr().(*net.TCPAddr).Port
		if err := records.Write(recordsDir, os.Getpid(), port); err != nil {
			ln.Close()
			return nil, emle.Errorf(emle.Configuration, "server.NewServer", "%w", err)
		}
	}
	log.Info("listening", zap.String("address", ln.Addr().String()), zap.String("backend", S.backend.Name()), zap.String("method", S.Method()))
	return srv, nil
}

// Addr returns the address of the endpoint.
func (srv *Server) Addr() net.Addr { return srv.ln.Addr() }

// ServeMetrics exposes the session metrics over HTTP, on addr, under /metrics.
func (srv *Server) ServeMetrics(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return emle.Errorf(emle.Configuration, "ServeMetrics", "%w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", srv.S.metrics.Handler())
	srv.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.metrics.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
	srv.log.Info("serving metrics", zap.String("address", l.Addr().String()))
	return nil
}

// Serve processes calls until a shutdown call arrives or ctx is cancelled.
func (srv *Server) Serve(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.grpc.Serve(srv.ln) }()
	for {
		select {
		case <-ctx.Done():
			srv.log.Info("stopping", zap.String("reason", ctx.Err().Error()))
			return srv.Close()
		case err := <-serveErr:
			srv.Close()
			if err == nil || errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		case <-srv.quit:
			srv.log.Info("shutdown requested")
			return srv.Close()
		case f := <-srv.work:
			f()
		}
	}
}

// do runs f in the Serve goroutine and returns its error.
func (srv *Server) do(ctx context.Context, f func() error) error {
	done := make(chan error, 1)
	select {
	case srv.work <- func() { done <- f() }:
	case <-srv.quit:
		return status.Error(codes.Unavailable, "the server is shutting down")
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	}
	return <-done
}

func (srv *Server) Submit(ctx context.Context, J *protocol.Job) (*protocol.Result, error) {
	var res *protocol.Result
	err := srv.do(ctx, func() error {
		var err error
		res, err = srv.S.Process(ctx, J)
		return err
	})
	return res, err
}

func (srv *Server) SetLambda(ctx context.Context, L *protocol.LambdaRequest) (*protocol.Status, error) {
	var st *protocol.Status
	err := srv.do(ctx, func() error {
		if err := srv.S.SetLambda(L.Lambda); err != nil {
			return err
		}
		st = srv.S.Status()
		return nil
	})
	return st, err
}

func (srv *Server) Status(ctx context.Context, _ *protocol.Empty) (*protocol.Status, error) {
	var st *protocol.Status
	err := srv.do(ctx, func() error {
		st = srv.S.Status()
		return nil
	})
	return st, err
}

// Shutdown answers with the final status and makes Serve return.
func (srv *Server) Shutdown(ctx context.Context, _ *protocol.Empty) (*protocol.Status, error) {
	var st *protocol.Status
	err := srv.do(ctx, func() error {
		st = srv.S.Status()
		srv.stop()
		return nil
	})
	return st, err
}

func (srv *Server) stop() {
	srv.quitOnce.Do(func() { close(srv.quit) })
}

// OnClose registers f to run when the server closes, after the session.
func (srv *Server) OnClose(f func() error) {
	srv.closers = append(srv.closers, f)
}

// Close stops the endpoint, giving pending calls StopTimeout to finish, closes
// the session and removes the records. Only the first call does anything.
func (srv *Server) Close() error {
	srv.closeOnce.Do(func() {
		srv.stop()
		stopped := make(chan struct{})
		go func() {
			srv.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(StopTimeout):
			srv.grpc.Stop()
		}
		var errs []error
		if err := srv.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		if srv.metrics != nil {
			errs = append(errs, srv.metrics.Close())
		}
		errs = append(errs, srv.S.Close())
		for _, f := range srv.closers {
			errs = append(errs, f())
		}
		if srv.recordsDir != "" {
			errs = append(errs, records.Remove(srv.recordsDir))
		}
		srv.closeErr = errors.Join(errs...)
	})
	return srv.closeErr
}
