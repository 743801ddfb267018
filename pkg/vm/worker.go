// Package vm runs the sale ledger.
//
// One goroutine executes every operation in stream order against the
// in-memory records and balances, then journals it to filedb. A writer
// copies the journal into mysql, where the next start loads from.
package vm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"vmledger/pkg/bank"
	"vmledger/pkg/cache"
	"vmledger/pkg/filedb"
	"vmledger/pkg/ledger"
	"vmledger/pkg/store"
	"vmledger/pkg/xlog"
	"vmledger/pkg/xnats"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"
)

// Worker is the sale ledger service
type Worker struct {
	Name  string // e.g. vm, also the lastkv app
	State string

	LogID        int64  // ID of the latest journal line
	LatestMsgSeq uint64 // stream sequence of the latest handled message
	SavedLogID   int64  // ID of the latest line written to mysql

	Engine *ledger.Engine
	Bank   *bank.Bank
	Store  store.Store

	// optional
	Cache    *cache.Cache
	DB       *gorm.DB
	Nats     nats.JetStreamContext
	Stream   string
	GrpcAddr string

	CreditDecimals int32
	AllowAirdrop   bool

	// held for writing while a commit changes Bank and Store, see View
	mu  sync.RWMutex
	ch  chan Msg
	fdb *filedb.Filedb
}

var logger = xlog.GetLogger()

// New opens the journal at fdbPath and picks up LogID and LatestMsgSeq from its last line.
func New(name, fdbPath string, e *ledger.Engine) (w *Worker, err error) {
	w = &Worker{
		Name:  name,
		State: "Init",

		Engine: e,
		Bank:   bank.New(),
		Store:  store.NewMemStore(),

		ch: make(chan Msg, 1024),
	}

	w.fdb, err = filedb.New(fdbPath)
	if err != nil {
		return nil, err
	}
	w.fdb.Handler = w.ParseAndWriteLogs

	txt, err := w.fdb.ReadLastLine()
	if err != nil {
		return nil, err
	}
	if txt != "" {
		var l VMLog
		err = json.Unmarshal([]byte(txt), &l)
		if err != nil {
			// a torn last line needs a look by hand
			return nil, err
		}
		w.LogID = l.LogID
		w.LatestMsgSeq = l.MsgSeq
	}

	logger.Infof("%s worker created with logID:%d, msgSeq:%d", w.Name, w.LogID, w.LatestMsgSeq)
	return
}

// View runs fn with no commit in progress, so fn sees every operation
// either fully applied or not at all.
func (w *Worker) View(fn func()) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn()
}

func (w *Worker) Filedb() *filedb.Filedb {
	return w.fdb
}

func (w *Worker) Close() error {
	return w.fdb.Close()
}

// Run starts the service
//
//	a. with mysql: start the writer, wait until it has saved the whole
//	   journal, then load records, balances and the stream position
//	b. without mysql: rebuild everything by replaying the journal
//	c. subscribe to the stream and serve grpc when configured
//	d. handle messages one by one until ctx is done
func (w *Worker) Run(ctx context.Context) (err error) {
	if w.DB != nil {
		go w.StartWriter(ctx)

		w.State = "WaitForFiledb"
		err = w.WaitForFiledb(ctx)
		if err != nil {
			return
		}

		w.State = "Loading"
		err = w.LoadAll()
		if err != nil {
			return
		}
	} else {
		w.State = "Replaying"
		err = w.ReplayFiledb()
		if err != nil {
			return
		}
	}

	w.State = "Working"

	if w.Nats != nil {
		go w.StartSubNats(ctx)
	}
	if w.GrpcAddr != "" {
		go w.StartServeGrpc(ctx)
	}

	return w.HandleMsgs(ctx)
}

// StartWriter reads the journal and writes it to mysql, restarting on failure
func (w *Worker) StartWriter(ctx context.Context) {
	round := 0
	for ctx.Err() == nil {
		round++
		logger.Infof("StartWriter round:%d started", round)
		err := w.FiledbToMySQL(ctx)
		if err != nil {
			logger.Errorf("StartWriter round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartWriter round:%d done", round)
		}
		sleep(ctx, time.Second)
	}
}

func (w *Worker) StartSubNats(ctx context.Context) {
	round := 0
	for ctx.Err() == nil {
		round++
		logger.Infof("StartSubNats round:%d started", round)
		err := w.SubNats(ctx)
		if err != nil {
			logger.Errorf("StartSubNats round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartSubNats round:%d done", round)
		}
		sleep(ctx, time.Second)
	}
}

func (w *Worker) StartServeGrpc(ctx context.Context) {
	round := 0
	for ctx.Err() == nil {
		round++
		logger.Infof("StartServeGrpc round:%d started", round)
		err := w.ServeGrpc(ctx)
		if err != nil {
			logger.Errorf("StartServeGrpc round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartServeGrpc round:%d done", round)
		}
		sleep(ctx, time.Second)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// WaitForFiledb blocks until mysql holds every journal line, savedLogID >= logID.
// The writer must be running.
func (w *Worker) WaitForFiledb(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			logger.Errorf("WaitForFiledb failed with err:%s", err)
		}
	}()

	if w.LogID == 0 {
		return nil
	}

	for {
		savedLogID, _ := w.LoadSavedLogID()
		if savedLogID >= w.LogID {
			logger.Infof("WaitForFiledb done with savedLogID:%d, logID:%d", savedLogID, w.LogID)
			return
		}
		ts := time.Second
		logger.Infof("WaitForFiledb sleep:%s with savedLogID:%d, logID:%d", ts, savedLogID, w.LogID)

		sleep(ctx, ts)
		if err = ctx.Err(); err != nil {
			return
		}
	}
}

// ReplayFiledb rebuilds records and balances from the journal alone.
func (w *Worker) ReplayFiledb() (err error) {
	n := 0
	defer func() {
		if err != nil {
			logger.Errorf("ReplayFiledb failed at line %d with err:%s", n+1, err)
		} else {
			logger.Infof("ReplayFiledb done with %d lines, logID:%d, msgSeq:%d", n, w.LogID, w.LatestMsgSeq)
		}
	}()

	return w.fdb.Scan(func(s string) (err error) {
		var l VMLog
		if err = json.Unmarshal([]byte(s), &l); err != nil {
			return
		}
		if err = w.replay(l); err != nil {
			return
		}
		n++
		return
	})
}

func (w *Worker) replay(l VMLog) (err error) {
	if l.Machine != nil {
		if err = w.Store.PutMachine(*l.Machine); err != nil {
			return
		}
	}
	if l.Ticket != nil {
		if err = w.Store.PutTicket(*l.Ticket); err != nil {
			return
		}
	}
	for _, bl := range l.BalanceLogs {
		w.Bank.Load(bl.Asset, bl.Owner, bl.New)
	}

	if l.LogID > w.LogID {
		w.LogID = l.LogID
	}
	if l.MsgSeq > w.LatestMsgSeq {
		w.LatestMsgSeq = l.MsgSeq
	}
	return
}

type ackPayload struct {
	msg *nats.Msg
	seq uint64
}

// HandleMsgs handles every Msg sent to the worker, one at a time, until
// ctx is done or a journal write fails.
func (w *Worker) HandleMsgs(ctx context.Context) (err error) {
	// subscribed with AckAll, acking the highest handled seq covers the rest
	chAck := make(chan ackPayload, 1024)
	go func() {
		var latest ackPayload
		for {
			var mp ackPayload
			select {
			case <-ctx.Done():
				return
			case mp = <-chAck:
			}
			if mp.seq > latest.seq {
				latest = mp
			}
			for i, l := 0, len(chAck); i < l; i++ {
				mp = <-chAck
				if mp.seq > latest.seq {
					latest = mp
				}
			}
			if aerr := latest.msg.Ack(); aerr != nil {
				logger.Errorf("msg(%d) ack failed with err:%s", latest.seq, aerr)
				continue
			}
			logger.Debugf("msg(%d) ack done", latest.seq)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-w.ch:
			if m.N != nil {
				err = w.HandleNatsMsg(m.N, chAck)
			} else if m.Req != nil {
				var r xnats.Receipt
				r, err = w.Execute(m.Seq, *m.Req)
				if m.Done != nil {
					m.Done <- r
				}
			}
			if err != nil {
				return
			}
		}
	}
}

func (w *Worker) HandleNatsMsg(msg *nats.Msg, chAck chan<- ackPayload) (err error) {
	md, err := msg.Metadata()
	if err != nil {
		return
	}
	seq := md.Sequence.Stream

	logger.Tracef("HandleNatsMsg msg:%s, seq:%d", msg.Subject, seq)

	if seq <= w.LatestMsgSeq {
		logger.Warningf("msg seq(%d) <= LatestMsgSeq(%d), skipped", seq, w.LatestMsgSeq)
		chAck <- ackPayload{msg: msg, seq: seq}
		return
	}

	var req xnats.OpReq
	if derr := json.Unmarshal(msg.Data, &req); derr != nil {
		_, err = w.reject(seq, req, errors.Join(xnats.ErrBadRequest, derr))
	} else {
		_, err = w.Execute(seq, req)
	}
	if err != nil {
		return
	}

	chAck <- ackPayload{msg: msg, seq: seq}
	return
}

// Submit hands req to the worker goroutine and waits for its receipt.
func (w *Worker) Submit(ctx context.Context, req xnats.OpReq) (r xnats.Receipt, err error) {
	done := make(chan xnats.Receipt, 1)
	select {
	case w.ch <- Msg{Req: &req, Done: done}:
	case <-ctx.Done():
		return r, ctx.Err()
	}
	select {
	case r = <-done:
		return r, nil
	case <-ctx.Done():
		return r, ctx.Err()
	}
}
