package ingress_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vmledger/pkg/ingress"
	"vmledger/pkg/ledger"
	"vmledger/pkg/xnats"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJS struct {
	subjects []string
	data     [][]byte
	err      error
}

func (f *fakeJS) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.data = append(f.data, data)
	return &nats.PubAck{Stream: "VM", Sequence: uint64(len(f.data))}, nil
}

func TestSend(t *testing.T) {
	js := &fakeJS{}
	w := ingress.New("VM", "")
	w.Nats = js

	signer := ledger.DeriveAddress([]byte("buyer"))
	req := ingress.NewReq(xnats.OpBuySpl, signer)
	req.Machine = ledger.DeriveAddress([]byte("machine"))
	req.Amount = 3

	seq, err := w.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, []string{"VM.buy_spl"}, js.subjects)

	var got xnats.OpReq
	require.NoError(t, json.Unmarshal(js.data[0], &got))
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, uint64(3), got.Amount)
	assert.NotZero(t, got.Time)
}

func TestSendRejectsBadRequest(t *testing.T) {
	js := &fakeJS{}
	w := ingress.New("VM", "")
	w.Nats = js

	_, err := w.Send(context.Background(), ingress.NewReq(xnats.OpBuySpl, ledger.Address{}))
	assert.ErrorIs(t, err, xnats.ErrBadRequest)
	assert.Empty(t, js.data)
}

func TestSendPublishError(t *testing.T) {
	boom := errors.New("boom")
	w := ingress.New("VM", "")
	w.Nats = &fakeJS{err: boom}

	req := ingress.NewReq(xnats.OpBuySplWithTicket, ledger.DeriveAddress([]byte("buyer")))
	req.Ticket = req.ID
	_, err := w.Send(context.Background(), req)
	assert.ErrorIs(t, err, boom)
}
