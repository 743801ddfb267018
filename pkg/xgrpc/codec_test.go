package xgrpc_test

import (
	"testing"

	"vmledger/pkg/ledger"
	"vmledger/pkg/xgrpc"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(xgrpc.CodecName)
	require.NotNil(t, c)
	assert.Equal(t, xgrpc.CodecName, c.Name())
}

func TestMachineRespRoundTrip(t *testing.T) {
	m := ledger.Machine{
		Authority:        ledger.DeriveAddress([]byte("authority")),
		Asset:            ledger.DeriveAddress([]byte("asset")),
		SupplyStock:      970,
		TicketAllocation: 70,
		TicketsSold:      1,
		PPA:              10,
		PPT:              5,
		Ready:            true,
	}
	in := xgrpc.MachineResp{ID: m.ID(), State: m.State(), Machine: m}

	data, err := xgrpc.Marshal(in)
	require.NoError(t, err)

	again, err := xgrpc.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	var out xgrpc.MachineResp
	require.NoError(t, xgrpc.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestTicketRespRoundTrip(t *testing.T) {
	in := xgrpc.TicketResp{Ticket: ledger.Ticket{
		ID:      uuid.New(),
		Machine: ledger.DeriveAddress([]byte("machine")),
		Buyer:   ledger.DeriveAddress([]byte("buyer")),
		Unspent: 20,
		Spent:   30,
	}}

	data, err := xgrpc.Marshal(in)
	require.NoError(t, err)

	var out xgrpc.TicketResp
	require.NoError(t, xgrpc.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
