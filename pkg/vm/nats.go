package vm

import (
	"context"

	"vmledger/pkg/xnats"

	"github.com/nats-io/nats.go"
)

// SubNats subscribes to the op stream after LatestMsgSeq and forwards
// messages to the worker goroutine.
func (w *Worker) SubNats(ctx context.Context) (err error) {
	ch2 := make(chan *nats.Msg, 256)
	sub, err := w.Nats.ChanSubscribe(xnats.Subjects(w.Stream), ch2,
		nats.StartSequence(w.LatestMsgSeq+1),
		nats.AckAll(),
		nats.ManualAck(),
	)
	if err != nil {
		return
	}
	defer sub.Unsubscribe()

	logger.Infof("SubNats %s from seq:%d", xnats.Subjects(w.Stream), w.LatestMsgSeq+1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch2:
			if !ok {
				return
			}
			select {
			case w.ch <- Msg{N: m}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
