/*
 * service.go, part of goemle.
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

package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the full name of the service.
const ServiceName = "goemle.Emle"

// EmleServer is implemented by the job server.
type EmleServer interface {
	Submit(context.Context, *Job) (*Result, error)
	SetLambda(context.Context, *LambdaRequest) (*Status, error)
	Status(context.Context, *Empty) (*Status, error)
	Shutdown(context.Context, *Empty) (*Status, error)
}

func unary[Req, Resp any](name string, call func(EmleServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				r, err := call(srv.(EmleServer), ctx, req.(*Req))
				if err != nil {
					return nil, err
				}
				return r, nil
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}, h)
		},
	}
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EmleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", EmleServer.Submit),
		unary("SetLambda", EmleServer.SetLambda),
		unary("Status", EmleServer.Status),
		unary("Shutdown", EmleServer.Shutdown),
	},
	Metadata: "goemle/emle",
}

// RegisterEmleServer registers srv in s.
func RegisterEmleServer(s grpc.ServiceRegistrar, srv EmleServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServerOptions are the options every server of the service needs.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(MaxMessage),
		grpc.MaxSendMsgSize(MaxMessage),
		grpc.UnaryInterceptor(ErrorInterceptor),
	}
}

// CallOptions are the options every call to the service needs.
func CallOptions() []grpc.CallOption {
	return []grpc.CallOption{
		grpc.CallContentSubtype(CodecName),
		grpc.MaxCallRecvMsgSize(MaxMessage),
		grpc.MaxCallSendMsgSize(MaxMessage),
	}
}

// EmleClient calls the service through a connection.
type EmleClient struct {
	cc grpc.ClientConnInterface
}

func NewEmleClient(cc grpc.ClientConnInterface) *EmleClient {
	return &EmleClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append(CallOptions(), opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EmleClient) Submit(ctx context.Context, in *Job, opts ...grpc.CallOption) (*Result, error) {
	return invoke[Result](ctx, c.cc, "Submit", in, opts)
}

func (c *EmleClient) SetLambda(ctx context.Context, in *LambdaRequest, opts ...grpc.CallOption) (*Status, error) {
	return invoke[Status](ctx, c.cc, "SetLambda", in, opts)
}

func (c *EmleClient) Status(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Status, error) {
	return invoke[Status](ctx, c.cc, "Status", in, opts)
}

func (c *EmleClient) Shutdown(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Status, error) {
	return invoke[Status](ctx, c.cc, "Shutdown", in, opts)
}
