// Package ingress stamps operation requests and publishes them to the VM stream.
package ingress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"vmledger/pkg/ledger"
	"vmledger/pkg/xetcd"
	"vmledger/pkg/xlog"
	"vmledger/pkg/xnats"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

var logger = xlog.GetLogger()

// Publisher is the part of nats.JetStreamContext ingress needs
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type Worker struct {
	Stream  string
	NatsUrl string // used when etcd has no nats address

	mu   sync.Mutex
	Nats Publisher
}

func New(stream, natsUrl string) *Worker {
	return &Worker{Stream: stream, NatsUrl: natsUrl}
}

// GetNats connects on first use, to the address registered in etcd if any.
func (w *Worker) GetNats() (js Publisher, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Nats != nil {
		return w.Nats, nil
	}

	natsUrl := w.NatsUrl
	if xetcd.Shared != nil {
		if v, gerr := xetcd.Get(xetcd.KeyNatsService()); gerr == nil {
			natsUrl = v
		}
	}

	_, js, err = xnats.Connect(natsUrl)
	if err != nil {
		return
	}
	logger.Infof("ingress nats connected %s", natsUrl)

	w.Nats = js
	return
}

// NewReq starts a request signed by signer, with a fresh id and the ingress time.
func NewReq(op xnats.Op, signer ledger.Address) xnats.OpReq {
	return xnats.OpReq{
		ID:     uuid.New(),
		Op:     op,
		Signer: signer,
		Time:   time.Now().UnixNano(),
	}
}

// Send publishes req and returns its stream sequence. The request id is
// the JetStream message id, a retried Send is stored once.
func (w *Worker) Send(ctx context.Context, req xnats.OpReq) (seq uint64, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("ingress Send %s %s failed with err:%s", req.Op, req.ID, err)
		}
	}()

	if err = req.Validate(); err != nil {
		return
	}

	js, err := w.GetNats()
	if err != nil {
		return
	}

	data, err := json.Marshal(req)
	if err != nil {
		return
	}

	ack, err := js.Publish(xnats.Subject(w.Stream, req.Op), data, nats.Context(ctx), nats.MsgId(req.ID.String()))
	if err != nil {
		return
	}

	logger.Debugf("ingress Send %s %s done with seq:%d", req.Op, req.ID, ack.Sequence)
	return ack.Sequence, nil
}
