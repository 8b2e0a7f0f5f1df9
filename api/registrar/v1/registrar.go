// Package registrarv1 describes the registrar gRPC service. Messages are
// google.protobuf.Struct values; field names are listed with each method.
package registrarv1

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "arc.registrar.v1.Registrar"

// Access classifies who may call a method.
type Access int

const (
	// Public methods accept anonymous calls.
	Public Access = iota
	// Signed methods need an envelope; the signer is the sender.
	Signed
	// Operator methods are restricted to the node operator.
	Operator
)

// Method names.
const (
	Status          = "Status"
	AuctionSettings = "AuctionSettings"
	Entry           = "Entry"
	SealedBid       = "SealedBid"
	FIFSInfo        = "FIFSInfo"
	Available       = "Available"
	Holder          = "Holder"
	TokenBalance    = "TokenBalance"
	Allowance       = "Allowance"
	Balance         = "Balance"
	Resolve         = "Resolve"
	Events          = "Events"

	StartAuction       = "StartAuction"
	Bid                = "Bid"
	Reveal             = "Reveal"
	Finalize           = "Finalize"
	Transfer           = "Transfer"
	Migrate            = "Migrate"
	Release            = "Release"
	Invalidate         = "Invalidate"
	Register           = "Register"
	ApproveAndRegister = "ApproveAndRegister"
	SetCost            = "SetCost"
	SetBurningToken    = "SetBurningToken"
	Deposit            = "Deposit"
	HolderTransfer     = "HolderTransfer"
	Claim              = "Claim"
	HolderRelease      = "HolderRelease"
	SetManager         = "SetManager"
	Approve            = "Approve"
	TransferTokens     = "TransferTokens"
	Mint               = "Mint"

	Advance  = "Advance"
	Snapshot = "Snapshot"

	WatchEvents = "WatchEvents"
)

// Unary lists every unary method with its access class.
var Unary = map[string]Access{
	Status:          Public,
	AuctionSettings: Public,
	Entry:           Public,
	SealedBid:       Public,
	FIFSInfo:        Public,
	Available:       Public,
	Holder:          Public,
	TokenBalance:    Public,
	Allowance:       Public,
	Balance:         Public,
	Resolve:         Public,
	Events:          Public,

	StartAuction:       Signed,
	Bid:                Signed,
	Reveal:             Signed,
	Finalize:           Signed,
	Transfer:           Signed,
	Migrate:            Signed,
	Release:            Signed,
	Invalidate:         Signed,
	Register:           Signed,
	ApproveAndRegister: Signed,
	SetCost:            Signed,
	SetBurningToken:    Signed,
	Deposit:            Signed,
	HolderTransfer:     Signed,
	Claim:              Signed,
	HolderRelease:      Signed,
	SetManager:         Signed,
	Approve:            Signed,
	TransferTokens:     Signed,
	Mint:               Signed,

	Advance:  Operator,
	Snapshot: Operator,
}

// FullMethod returns "/arc.registrar.v1.Registrar/<name>".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// AccessOf returns the access class of a full method name. Unknown
// methods, including WatchEvents, are public.
func AccessOf(fullMethod string) Access {
	prefix := "/" + ServiceName + "/"
	if len(fullMethod) <= len(prefix) || fullMethod[:len(prefix)] != prefix {
		return Public
	}
	return Unary[fullMethod[len(prefix):]]
}

// UnaryHandler serves one unary method.
type UnaryHandler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// StreamHandler serves WatchEvents: req is the opening message.
type StreamHandler func(ctx context.Context, req *structpb.Struct, send func(*structpb.Struct) error) error

// ServiceDesc builds the gRPC service description for handlers. Every
// method in Unary must have a handler.
func ServiceDesc(handlers map[string]UnaryHandler, watch StreamHandler) (*grpc.ServiceDesc, error) {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Metadata:    "arc/registrar/v1/registrar.proto",
	}
	for name := range Unary {
		h, ok := handlers[name]
		if !ok {
			return nil, fmt.Errorf("registrar: no handler for %s", name)
		}
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(FullMethod(name), h),
		})
	}
	if watch != nil {
		desc.Streams = append(desc.Streams, grpc.StreamDesc{
			StreamName:    WatchEvents,
			ServerStreams: true,
			Handler: func(_ any, stream grpc.ServerStream) error {
				req := new(structpb.Struct)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return watch(stream.Context(), req, func(m *structpb.Struct) error { return stream.SendMsg(m) })
			},
		})
	}
	return desc, nil
}

func unaryHandler(fullMethod string, h UnaryHandler) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h(ctx, req.(*structpb.Struct))
		})
	}
}

// WatchDesc is the client-side stream description of WatchEvents.
var WatchDesc = &grpc.StreamDesc{StreamName: WatchEvents, ServerStreams: true}
