package vm

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"vmledger/pkg/ledger"
	"vmledger/pkg/store"
	"vmledger/pkg/xgrpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VendingServiceServer answers queries from the worker's live state
type VendingServiceServer struct {
	w *Worker
}

var _ xgrpc.VendingServiceServer = (*VendingServiceServer)(nil)

func NewVendingServiceServer(w *Worker) *VendingServiceServer {
	return &VendingServiceServer{w: w}
}

func (s *VendingServiceServer) GetMachine(ctx context.Context, req *xgrpc.MachineReq) (*xgrpc.MachineResp, error) {
	var m ledger.Machine
	var err error
	s.w.View(func() { m, err = s.w.Store.Machine(req.ID) })
	if err != nil {
		return nil, storeStatus(err)
	}
	return &xgrpc.MachineResp{ID: m.ID(), State: m.State(), Machine: m}, nil
}

func (s *VendingServiceServer) GetTicket(ctx context.Context, req *xgrpc.TicketReq) (*xgrpc.TicketResp, error) {
	var t ledger.Ticket
	var err error
	s.w.View(func() { t, err = s.w.Store.Ticket(req.ID) })
	if err != nil {
		return nil, storeStatus(err)
	}
	return &xgrpc.TicketResp{Ticket: t}, nil
}

func (s *VendingServiceServer) GetBalance(ctx context.Context, req *xgrpc.BalanceReq) (*xgrpc.BalanceResp, error) {
	resp := &xgrpc.BalanceResp{Asset: req.Asset, Owner: req.Owner}
	s.w.View(func() { resp.Amount = s.w.Bank.Balance(req.Asset, req.Owner) })
	return resp, nil
}

// Journal streams journal lines after req.FromLogID, then follows new ones
// until the client goes away.
func (s *VendingServiceServer) Journal(req *xgrpc.JournalReq, stream xgrpc.VendingService_JournalServer) (err error) {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	ch := make(chan string, 1024)
	tailErr := make(chan error, 1)
	go func() {
		defer close(ch)
		tailErr <- s.w.fdb.Tailf(ctx, ch)
	}()

	logger.Infof("Journal streaming from logID:%d", req.FromLogID)

	for line := range ch {
		var head struct {
			LogID int64 `json:"logID"`
		}
		if err = json.Unmarshal([]byte(line), &head); err != nil {
			return status.Errorf(codes.DataLoss, "journal line: %s", err)
		}
		if head.LogID <= req.FromLogID {
			continue
		}
		if err = stream.Send(&xgrpc.JournalEntry{LogID: head.LogID, Line: line}); err != nil {
			return
		}
	}

	err = <-tailErr
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return
}

func storeStatus(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// ServeGrpc serves the query API on GrpcAddr until ctx is done
func (w *Worker) ServeGrpc(ctx context.Context) (err error) {
	lis, err := net.Listen("tcp", w.GrpcAddr)
	if err != nil {
		return
	}
	return w.ServeGrpcOn(ctx, lis)
}

// ServeGrpcOn serves the query API on lis until ctx is done
func (w *Worker) ServeGrpcOn(ctx context.Context, lis net.Listener) (err error) {
	grpcServer := grpc.NewServer()
	xgrpc.RegisterVendingServiceServer(grpcServer, NewVendingServiceServer(w))

	go func() {
		<-ctx.Done()
		grpcServer.Stop()
	}()

	logger.Infof("grpc server listening %s", lis.Addr())

	err = grpcServer.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		err = nil
	}
	return
}
