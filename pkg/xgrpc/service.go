package xgrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName = "vmledger.VendingService"

	VendingService_GetMachine_FullMethodName = "/" + serviceName + "/GetMachine"
	VendingService_GetTicket_FullMethodName  = "/" + serviceName + "/GetTicket"
	VendingService_GetBalance_FullMethodName = "/" + serviceName + "/GetBalance"
	VendingService_Journal_FullMethodName    = "/" + serviceName + "/Journal"
)

// VendingServiceServer is served by a vm worker.
type VendingServiceServer interface {
	GetMachine(context.Context, *MachineReq) (*MachineResp, error)
	GetTicket(context.Context, *TicketReq) (*TicketResp, error)
	GetBalance(context.Context, *BalanceReq) (*BalanceResp, error)
	Journal(*JournalReq, VendingService_JournalServer) error
}

type VendingService_JournalServer interface {
	Send(*JournalEntry) error
	grpc.ServerStream
}

type vendingServiceJournalServer struct {
	grpc.ServerStream
}

func (x *vendingServiceJournalServer) Send(m *JournalEntry) error {
	return x.ServerStream.SendMsg(m)
}

func RegisterVendingServiceServer(s grpc.ServiceRegistrar, srv VendingServiceServer) {
	s.RegisterService(&VendingService_ServiceDesc, srv)
}

func unary[Req any, Resp any](method string, call func(VendingServiceServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VendingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(VendingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _VendingService_Journal_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(JournalReq)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(VendingServiceServer).Journal(m, &vendingServiceJournalServer{stream})
}

var VendingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VendingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetMachine",
			Handler:    unary(VendingService_GetMachine_FullMethodName, VendingServiceServer.GetMachine),
		},
		{
			MethodName: "GetTicket",
			Handler:    unary(VendingService_GetTicket_FullMethodName, VendingServiceServer.GetTicket),
		},
		{
			MethodName: "GetBalance",
			Handler:    unary(VendingService_GetBalance_FullMethodName, VendingServiceServer.GetBalance),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Journal",
			Handler:       _VendingService_Journal_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "vmledger/vending",
}

type VendingServiceClient interface {
	GetMachine(ctx context.Context, in *MachineReq, opts ...grpc.CallOption) (*MachineResp, error)
	GetTicket(ctx context.Context, in *TicketReq, opts ...grpc.CallOption) (*TicketResp, error)
	GetBalance(ctx context.Context, in *BalanceReq, opts ...grpc.CallOption) (*BalanceResp, error)
	Journal(ctx context.Context, in *JournalReq, opts ...grpc.CallOption) (VendingService_JournalClient, error)
}

type vendingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewVendingServiceClient(cc grpc.ClientConnInterface) VendingServiceClient {
	return &vendingServiceClient{cc}
}

func (c *vendingServiceClient) GetMachine(ctx context.Context, in *MachineReq, opts ...grpc.CallOption) (*MachineResp, error) {
	out := new(MachineResp)
	err := c.cc.Invoke(ctx, VendingService_GetMachine_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *vendingServiceClient) GetTicket(ctx context.Context, in *TicketReq, opts ...grpc.CallOption) (*TicketResp, error) {
	out := new(TicketResp)
	err := c.cc.Invoke(ctx, VendingService_GetTicket_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *vendingServiceClient) GetBalance(ctx context.Context, in *BalanceReq, opts ...grpc.CallOption) (*BalanceResp, error) {
	out := new(BalanceResp)
	err := c.cc.Invoke(ctx, VendingService_GetBalance_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *vendingServiceClient) Journal(ctx context.Context, in *JournalReq, opts ...grpc.CallOption) (VendingService_JournalClient, error) {
	stream, err := c.cc.NewStream(ctx, &VendingService_ServiceDesc.Streams[0], VendingService_Journal_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &vendingServiceJournalClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type VendingService_JournalClient interface {
	Recv() (*JournalEntry, error)
	grpc.ClientStream
}

type vendingServiceJournalClient struct {
	grpc.ClientStream
}

func (x *vendingServiceJournalClient) Recv() (*JournalEntry, error) {
	m := new(JournalEntry)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Dial connects to a VendingService at addr, plaintext, with the cbor codec
// on every call.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}
