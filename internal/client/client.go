/*
 * client.go, part of goemle.
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

// Package client sends requests to the job server, starting one if none is running.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/internal/config"
	"github.com/rmera/goemle/internal/orcafile"
	"github.com/rmera/goemle/internal/protocol"
	"github.com/rmera/goemle/internal/records"
)

const (
	// ServerLog is the file, in the records directory, where a spawned server writes its output.
	ServerLog = "emle_server.log"
	// StaleAfter is the number of refused connections after which a live-looking
	// record is taken to belong to a reused pid.
	StaleAfter = 2
)

// Spawner starts a server in the background.
type Spawner func() error

// Client talks to one server.
type Client struct {
	Host       string
	Port       int
	Retries    int
	Delay      time.Duration
	RecordsDir string
	//Spawner is nil if the client must not start servers.
	Spawner Spawner
	//DialTimeout bounds each connection attempt.
	DialTimeout time.Duration

	log          *zap.Logger
	spawned      bool
	liveFailures int
	conn         *grpc.ClientConn
	rpc          *protocol.EmleClient
}

// New returns a client for the server described in C. The client keeps
// its connection until Close. If C allows spawning,
// servers are started by running this executable with args.
func New(C *config.Config, log *zap.Logger, args ...string) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cl := &Client{
		Host:        C.Host,
		Port:        C.Port,
		Retries:     C.Retries,
		Delay:       C.RetryDelay,
		RecordsDir:  C.RecordsDir,
		DialTimeout: 5 * time.Second,
		log:         log,
	}
	if C.Spawn {
		cl.Spawner = ExecSpawner(C.RecordsDir, args...)
	}
	return cl
}

// ExecSpawner returns a Spawner running the current executable with args,
// detached, with its output in ServerLog inside dir.
func ExecSpawner(dir string, args ...string) Spawner {
	return func() error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		out, err := os.OpenFile(filepath.Join(dir, ServerLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("create server log: %w", err)
		}
		defer out.Close()
		cmd := exec.Command(exe, args...)
		cmd.Stdout = out
		cmd.Stderr = out
		cmd.Env = os.Environ()
		cmd.SysProcAttr = detached()
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return cmd.Process.Release()
	}
}

type dialError struct{ error }

func (e dialError) Unwrap() error { return e.error }

// address returns where the server should be. A live record takes
// precedence over the configured port.
func (cl *Client) address() string {
	port := cl.Port
	if cl.RecordsDir != "" {
		if p, ok := records.Live(cl.RecordsDir); ok {
			port = p
		}
	}
	return net.JoinHostPort(cl.Host, strconv.Itoa(port))
}

// connect makes sure the client has a ready connection, trying once.
func (cl *Client) connect(ctx context.Context) error {
	if cl.conn != nil && cl.conn.GetState() == connectivity.Ready {
		return nil
	}
	cl.drop()
	addr := cl.address()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return emle.Errorf(emle.Configuration, "connect", "%w", err)
	}
	if err := waitReady(ctx, conn, cl.DialTimeout); err != nil {
		conn.Close()
		cl.refused(addr)
		return dialError{fmt.Errorf("%s: %w", addr, err)}
	}
	cl.conn, cl.rpc = conn, protocol.NewEmleClient(conn)
	return nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn.Connect()
	for {
		s := conn.GetState()
		switch s {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("connection %s", s)
		}
		if !conn.WaitForStateChange(ctx, s) {
			return ctx.Err()
		}
	}
}

// refused spawns a server, once per client, after a connection failed.
// A server that is recorded as live is given StaleAfter chances to answer
// before its records are removed.
func (cl *Client) refused(addr string) {
	if cl.Spawner == nil || cl.spawned {
		return
	}
	if _, live := records.Live(cl.RecordsDir); live {
		cl.liveFailures++
		if cl.liveFailures < StaleAfter {
			return
		}
		cl.log.Warn("the recorded server does not answer, removing its records", zap.String("address", addr), zap.String("dir", cl.RecordsDir))
		if err := records.Remove(cl.RecordsDir); err != nil {
			cl.log.Warn("can't remove the records", zap.Error(err))
		}
	}
	cl.spawned = true
	cl.log.Info("no server running, starting one", zap.String("address", cl.address()))
	if err := cl.Spawner(); err != nil {
		cl.log.Warn("can't start a server", zap.Error(err))
	}
}

func (cl *Client) drop() {
	if cl.conn != nil {
		cl.conn.Close()
		cl.conn, cl.rpc = nil, nil
	}
}

// call connects and runs f once. Only the connection is retried; an error
// reported by the server is returned with its original kind.
func (cl *Client) call(ctx context.Context, f func(rpc *protocol.EmleClient, opts ...grpc.CallOption) error) error {
	attempts := cl.Retries
	if attempts < 1 {
		attempts = 1
	}
	err := retry.Do(
		func() error { return cl.connect(ctx) },
		retry.Attempts(uint(attempts)),
		retry.Delay(cl.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var de dialError
			return errors.As(err, &de)
		}),
		retry.OnRetry(func(n uint, err error) {
			cl.log.Debug("connection failed", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		if emle.KindOf(err) == emle.Configuration {
			return err
		}
		return emle.Errorf(emle.ServerUnreachable, "Client.call", "no server at %s after %d attempts: %v", cl.address(), attempts, err)
	}
	var md metadata.MD
	err = f(cl.rpc, grpc.Trailer(&md))
	if status.Code(err) == codes.Unavailable {
		cl.drop()
	}
	return protocol.FromRPC(err, md)
}

// Submit runs job J and returns its result.
func (cl *Client) Submit(ctx context.Context, J *protocol.Job) (*protocol.Result, error) {
	if J.ID == "" {
		J.ID = uuid.NewString()
	}
	var r *protocol.Result
	err := cl.call(ctx, func(rpc *protocol.EmleClient, opts ...grpc.CallOption) error {
		var err error
		r, err = rpc.Submit(ctx, J, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RunORCA does what ORCA would do for the input file name: it reads the
// request, has the server compute it, and writes the .engrad and .pcgrad files.
func (cl *Client) RunORCA(ctx context.Context, name string) (*protocol.Result, error) {
	I, err := orcafile.ReadInput(name)
	if err != nil {
		return nil, err
	}
	J, err := I.Job(uuid.NewString())
	if err != nil {
		return nil, err
	}
	cl.log.Debug("submitting", zap.String("job", J.ID), zap.Int("qm_atoms", len(J.Z)), zap.Int("mm_charges", J.NMM))
	r, err := cl.Submit(ctx, J)
	if err != nil {
		return nil, err
	}
	if err := I.WriteResult(J, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Control sends a message without a job (status, set_lambda or shutdown). Control
// messages never start a server.
func (cl *Client) Control(ctx context.Context, kind protocol.Kind, lambda float64) (*protocol.Status, error) {
	var f func(rpc *protocol.EmleClient, opts ...grpc.CallOption) (*protocol.Status, error)
	switch kind {
	case protocol.KindStatus:
		f = func(rpc *protocol.EmleClient, opts ...grpc.CallOption) (*protocol.Status, error) {
			return rpc.Status(ctx, &protocol.Empty{}, opts...)
		}
	case protocol.KindSetLambda:
		f = func(rpc *protocol.EmleClient, opts ...grpc.CallOption) (*protocol.Status, error) {
			return rpc.SetLambda(ctx, &protocol.LambdaRequest{Lambda: lambda}, opts...)
		}
	case protocol.KindShutdown:
		f = func(rpc *protocol.EmleClient, opts ...grpc.CallOption) (*protocol.Status, error) {
			return rpc.Shutdown(ctx, &protocol.Empty{}, opts...)
		}
	default:
		return nil, emle.Errorf(emle.MalformedRequest, "Control", "unknown message kind %q", kind)
	}
	sp := cl.Spawner
	cl.Spawner = nil
	defer func() { cl.Spawner = sp }()
	var st *protocol.Status
	err := cl.call(ctx, func(rpc *protocol.EmleClient, opts ...grpc.CallOption) error {
		var err error
		st, err = f(rpc, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Close releases the connection to the server, if any.
func (cl *Client) Close() error {
	cl.drop()
	return nil
}
