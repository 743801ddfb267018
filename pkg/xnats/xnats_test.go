package xnats_test

import (
	"encoding/json"
	"os"
	"testing"

	"vmledger/pkg/ledger"
	"vmledger/pkg/xnats"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signer = ledger.DeriveAddress([]byte("signer"))

func TestValidate(t *testing.T) {
	machine := ledger.DeriveAddress([]byte("machine"))

	cases := []struct {
		name string
		req  xnats.OpReq
		ok   bool
	}{
		{"missing id", xnats.OpReq{Op: xnats.OpBuySpl, Signer: signer, Machine: machine}, false},
		{"unknown op", xnats.OpReq{ID: uuid.New(), Op: "sell", Signer: signer}, false},
		{"missing signer", xnats.OpReq{ID: uuid.New(), Op: xnats.OpBuySpl, Machine: machine}, false},
		{"create without params", xnats.OpReq{ID: uuid.New(), Op: xnats.OpCreateMachine, Signer: signer, Asset: machine}, false},
		{"create", xnats.OpReq{ID: uuid.New(), Op: xnats.OpCreateMachine, Signer: signer, Asset: machine, Create: &xnats.CreateParams{}}, true},
		{"fund without asset", xnats.OpReq{ID: uuid.New(), Op: xnats.OpFundMachine, Signer: signer, Machine: machine}, false},
		{"buy ticket", xnats.OpReq{ID: uuid.New(), Op: xnats.OpBuyTicket, Signer: signer, Machine: machine}, true},
		{"redeem without ticket", xnats.OpReq{ID: uuid.New(), Op: xnats.OpBuySplWithTicket, Signer: signer}, false},
		{"redeem", xnats.OpReq{ID: uuid.New(), Op: xnats.OpBuySplWithTicket, Signer: signer, Ticket: uuid.New()}, true},
		{"buy spl", xnats.OpReq{ID: uuid.New(), Op: xnats.OpBuySpl, Signer: signer, Machine: machine, Amount: 0}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.req.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, xnats.ErrBadRequest)
			}
		})
	}
}

func TestCreditUnits(t *testing.T) {
	u, err := xnats.CreditUnits(decimal.RequireFromString("0.1"), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(100000000), u)

	u, err = xnats.CreditUnits(decimal.NewFromInt(10), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), u)

	_, err = xnats.CreditUnits(decimal.RequireFromString("0.0000000001"), 9)
	assert.ErrorIs(t, err, xnats.ErrBadAmount)

	_, err = xnats.CreditUnits(decimal.NewFromInt(-1), 9)
	assert.ErrorIs(t, err, xnats.ErrBadAmount)

	_, err = xnats.CreditUnits(decimal.RequireFromString("18446744073709551616"), 0)
	assert.ErrorIs(t, err, xnats.ErrBadAmount)

	assert.Equal(t, "0.15", xnats.Credits(150000000, 9).String())
}

func TestOpReqJSON(t *testing.T) {
	req := xnats.OpReq{
		ID:     uuid.New(),
		Op:     xnats.OpCreateMachine,
		Signer: signer,
		Asset:  ledger.DeriveAddress([]byte("asset")),
		Create: &xnats.CreateParams{PPA: decimal.RequireFromString("0.5"), PPT: decimal.NewFromInt(5), TicketAllocation: 100},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"signer":"`+signer.String()+`"`)

	var back xnats.OpReq
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, req.ID, back.ID)
	assert.Equal(t, req.Signer, back.Signer)
	assert.True(t, req.Create.PPA.Equal(back.Create.PPA))
	assert.Equal(t, "VM.create_machine", xnats.Subject("VM", req.Op))
}

// TestCreateStream needs a local nats-server with jetstream, set VMLEDGER_NATS_TEST=1 to run it.
func TestCreateStream(t *testing.T) {
	if os.Getenv("VMLEDGER_NATS_TEST") == "" {
		t.Skip("VMLEDGER_NATS_TEST not set")
	}

	nc, err := nats.Connect(nats.DefaultURL)
	require.Nil(t, err)
	defer nc.Close()

	js, err := nc.JetStream()
	require.Nil(t, err)

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "VMTEST",
		Subjects: []string{xnats.Subjects("VMTEST")},
	})
	require.Nil(t, err)
	defer js.DeleteStream("VMTEST")

	_, err = js.Publish(xnats.Subject("VMTEST", xnats.OpBuySpl), []byte("{}"))
	require.Nil(t, err)
}
