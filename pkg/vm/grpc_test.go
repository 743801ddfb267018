package vm_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"vmledger/pkg/filedb"
	"vmledger/pkg/ledger"
	"vmledger/pkg/store"
	"vmledger/pkg/vm"
	"vmledger/pkg/xgrpc"
	"vmledger/pkg/xnats"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dialWorker(t *testing.T, w *vm.Worker) xgrpc.VendingServiceClient {
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go w.ServeGrpcOn(ctx, lis)

	conn, err := xgrpc.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return xgrpc.NewVendingServiceClient(conn)
}

func TestGrpcQueries(t *testing.T) {
	w := newWorker(t, "")
	setup(t, w)
	c := dialWorker(t, w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mr, err := c.GetMachine(ctx, &xgrpc.MachineReq{ID: machineID})
	require.NoError(t, err)
	assert.Equal(t, machineID, mr.ID)
	assert.Equal(t, "Funded", mr.State)
	assert.Equal(t, uint64(1000), mr.Machine.SupplyStock)
	assert.Equal(t, authority, mr.Machine.Authority)

	_, err = c.GetTicket(ctx, &xgrpc.TicketReq{ID: uuid.New()})
	assert.Equal(t, codes.NotFound, status.Code(err))

	br, err := c.GetBalance(ctx, &xgrpc.BalanceReq{Asset: asset, Owner: machineID})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), br.Amount)
}

func TestGrpcJournal(t *testing.T) {
	w := newWorker(t, "")
	setup(t, w)
	c := dialWorker(t, w)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := c.Journal(ctx, &xgrpc.JournalReq{FromLogID: 2})
	require.NoError(t, err)

	for want := int64(3); want <= 4; want++ {
		e, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, want, e.LogID)

		var l vm.VMLog
		require.NoError(t, json.Unmarshal([]byte(e.Line), &l))
		assert.Equal(t, want, l.LogID)
	}

	// followed lines arrive as they are written
	require.True(t, exec(t, w, 5, fund(0)).OK)
	e, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.LogID)
}

// gatedStore parks the first PutMachine until release is closed
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    bool
}

func (g *gatedStore) PutMachine(m ledger.Machine) error {
	if !g.once {
		g.once = true
		close(g.entered)
		<-g.release
	}
	return g.Store.PutMachine(m)
}

func TestGrpcNeverSeesPartialCommit(t *testing.T) {
	w := newWorker(t, "")
	setup(t, w)
	c := dialWorker(t, w)

	gate := &gatedStore{Store: w.Store, entered: make(chan struct{}), release: make(chan struct{})}
	w.Store = gate

	buy := xnats.OpReq{ID: uuid.New(), Op: xnats.OpBuySpl, Signer: buyer, Machine: machineID, Authority: authority, Amount: 10}
	execErr := make(chan error, 1)
	go func() {
		_, err := w.Execute(5, buy)
		execErr <- err
	}()

	// balances are moved, records not yet stored
	<-gate.entered
	require.NoError(t, w.Filedb().Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	balance := make(chan uint64, 1)
	go func() {
		br, err := c.GetBalance(ctx, &xgrpc.BalanceReq{Asset: ledger.Credits, Owner: buyer})
		if err != nil {
			balance <- 0
			return
		}
		balance <- br.Amount
	}()

	select {
	case got := <-balance:
		t.Fatalf("GetBalance returned %d during a commit", got)
	case <-time.After(100 * time.Millisecond):
	}

	close(gate.release)
	assert.ErrorIs(t, <-execErr, filedb.ErrClosed)

	// the failed commit was rolled back before the reader got in
	assert.Equal(t, uint64(10000), <-balance)
}
