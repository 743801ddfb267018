package vm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vmledger/pkg/bank"
	"vmledger/pkg/ledger"
	"vmledger/pkg/store"
	"vmledger/pkg/xnats"
)

var ErrAirdropDisabled = errors.New("vm: airdrop is disabled")

// Execute runs one request to completion. A rejection, by the engine, the
// bank or validation, is journaled and reported in the receipt with a nil
// error. The error is only set when the journal could not be written, and
// then nothing of req is left in memory.
func (w *Worker) Execute(seq uint64, req xnats.OpReq) (r xnats.Receipt, err error) {
	if verr := req.Validate(); verr != nil {
		return w.reject(seq, req, verr)
	}

	o, perr := w.prepare(req)
	if perr != nil {
		return w.reject(seq, req, perr)
	}

	return w.commit(seq, req, o)
}

// prepare runs the engine on copies of the stored records
func (w *Worker) prepare(req xnats.OpReq) (o outcome, err error) {
	e := w.engineAt(req.Time)

	var (
		m  ledger.Machine
		t  ledger.Ticket
		ts []ledger.Transfer
	)

	switch req.Op {
	case xnats.OpCreateMachine:
		p := req.Create
		var ppa, ppt uint64
		if ppa, err = xnats.CreditUnits(p.PPA, w.CreditDecimals); err != nil {
			return
		}
		if ppt, err = xnats.CreditUnits(p.PPT, w.CreditDecimals); err != nil {
			return
		}
		m = e.CreateMachine(ledger.CreateMachineParams{
			Authority:        req.Signer,
			Asset:            req.Asset,
			PPA:              ppa,
			PPT:              ppt,
			TicketAllocation: p.TicketAllocation,
			PresaleStart:     p.PresaleStart,
			PresaleEnd:       p.PresaleEnd,
			PubsaleStart:     p.PubsaleStart,
			PubsaleEnd:       p.PubsaleEnd,
		})
		if _, gerr := w.Store.Machine(m.ID()); gerr == nil {
			return o, store.ErrExists
		}
		o.machine, o.machineNew = &m, true

	case xnats.OpFundMachine:
		if m, err = w.Store.Machine(req.Machine); err != nil {
			return
		}
		if m, ts, err = e.FundMachine(m, req.Signer, req.Asset, req.Amount); err != nil {
			return
		}
		o.machine, o.transfers = &m, ts

	case xnats.OpBuyTicket:
		// the request id names the ticket, a replayed request must not mint a second one
		if _, gerr := w.Store.Ticket(req.ID); gerr == nil {
			return o, store.ErrExists
		}
		if m, err = w.Store.Machine(req.Machine); err != nil {
			return
		}
		if m, t, ts, err = e.BuyTicket(m, req.Signer, req.Authority, req.Amount, req.ID); err != nil {
			return
		}
		o.machine, o.ticket, o.ticketNew, o.transfers = &m, &t, true, ts

	case xnats.OpBuySplWithTicket:
		if t, err = w.Store.Ticket(req.Ticket); err != nil {
			return
		}
		if m, err = w.Store.Machine(t.Machine); err != nil {
			return
		}
		if m, t, ts, err = e.BuySplWithTicket(m, t, req.Signer, req.Authority, req.Amount); err != nil {
			return
		}
		o.machine, o.ticket, o.transfers = &m, &t, ts

	case xnats.OpBuySpl:
		if m, err = w.Store.Machine(req.Machine); err != nil {
			return
		}
		if m, ts, err = e.BuySpl(m, req.Signer, req.Authority, req.Amount); err != nil {
			return
		}
		o.machine, o.transfers = &m, ts

	case xnats.OpAirdrop:
		if !w.AllowAirdrop {
			return o, ErrAirdropDisabled
		}
		o.mint = &ledger.Transfer{Asset: req.Asset, To: req.Signer, Amount: req.Amount}

	default:
		return o, fmt.Errorf("%w: unknown op %q", xnats.ErrBadRequest, req.Op)
	}
	return
}

// engineAt evaluates sale windows at the time ingress stamped on the request
func (w *Worker) engineAt(ts int64) *ledger.Engine {
	if ts <= 0 {
		return w.Engine
	}
	e := *w.Engine
	e.Now = func() time.Time { return time.Unix(0, ts) }
	return &e
}

func (w *Worker) commit(seq uint64, req xnats.OpReq, o outcome) (r xnats.Receipt, err error) {
	r, rejected, err := w.apply(seq, req, o)
	if err != nil {
		return
	}
	if rejected != nil {
		return w.reject(seq, req, rejected)
	}

	logger.Debugf("%s %s done with logID:%d, seq:%d, signer:%s", req.Op, req.ID, r.LogID, seq, req.Signer.Short())

	w.publish(o.machine, o.ticket, &r)
	return
}

// apply moves balances, stores records and journals the outcome under the
// commit lock. rejected is set when the bank refused the transfers.
func (w *Worker) apply(seq uint64, req xnats.OpReq, o outcome) (r xnats.Receipt, rejected error, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changes []bank.Change
	var berr error
	if o.mint != nil {
		var c bank.Change
		c, berr = w.Bank.Credit(o.mint.Asset, o.mint.To, o.mint.Amount)
		changes = []bank.Change{c}
	} else {
		changes, berr = w.Bank.Apply(o.transfers)
	}
	if berr != nil {
		return r, berr, nil
	}

	defer func() {
		if err != nil {
			w.Bank.Restore(changes)
		}
	}()

	undo, err := w.putRecords(o)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			undo()
		}
	}()

	l := VMLog{
		MsgSeq:      seq,
		ReqID:       req.ID,
		Op:          req.Op,
		Machine:     o.machine,
		Ticket:      o.ticket,
		Transfers:   o.transfers,
		BalanceLogs: balanceLogs(changes),
	}
	err = w.writeLog(&l)
	if err != nil {
		return
	}

	r = xnats.Receipt{
		ID:        req.ID,
		Op:        req.Op,
		Seq:       seq,
		LogID:     l.LogID,
		Time:      l.Ts,
		OK:        true,
		Machine:   o.machine,
		Ticket:    o.ticket,
		Transfers: o.transfers,
	}
	return
}

// reject journals a refused request so replay never runs it again
func (w *Worker) reject(seq uint64, req xnats.OpReq, cause error) (r xnats.Receipt, err error) {
	l := VMLog{
		MsgSeq: seq,
		ReqID:  req.ID,
		Op:     req.Op,
		Code:   ledger.CodeOf(cause),
		Error:  cause.Error(),
	}
	err = w.writeLog(&l)
	if err != nil {
		return
	}

	r = xnats.Receipt{
		ID:    req.ID,
		Op:    req.Op,
		Seq:   seq,
		LogID: l.LogID,
		Time:  l.Ts,
		Code:  l.Code,
		Error: l.Error,
	}

	logger.Infof("%s %s rejected with logID:%d, seq:%d, code:%d, err:%s", req.Op, req.ID, l.LogID, seq, l.Code, cause)

	w.publish(nil, nil, &r)
	return
}

// writeLog stamps l with the next log id and appends it to the journal.
func (w *Worker) writeLog(l *VMLog) (err error) {
	w.LogID++
	defer func() {
		if err != nil {
			w.LogID--
			logger.Errorf("writeLog failed with logID:%d, err:%s", w.LogID+1, err)
		}
	}()

	l.LogID = w.LogID
	l.Ts = time.Now().UnixNano()

	data, err := json.Marshal(l)
	if err != nil {
		return
	}
	err = w.fdb.WriteLine(string(data))
	if err != nil {
		return
	}

	if l.MsgSeq > w.LatestMsgSeq {
		w.LatestMsgSeq = l.MsgSeq
	}
	return
}

// putRecords stores the outcome's records. undo puts back what was there.
func (w *Worker) putRecords(o outcome) (undo func(), err error) {
	var undos []func()
	undo = func() {
		for i := len(undos) - 1; i >= 0; i-- {
			undos[i]()
		}
	}
	defer func() {
		if err != nil {
			undo()
		}
	}()

	if o.machine != nil {
		m := *o.machine
		if o.machineNew {
			if err = w.Store.CreateMachine(m); err != nil {
				return
			}
			undos = append(undos, func() { _ = w.Store.DeleteMachine(m.ID()) })
		} else {
			prev, gerr := w.Store.Machine(m.ID())
			if gerr != nil {
				return undo, gerr
			}
			if err = w.Store.PutMachine(m); err != nil {
				return
			}
			undos = append(undos, func() { _ = w.Store.PutMachine(prev) })
		}
	}

	if o.ticket != nil {
		t := *o.ticket
		if o.ticketNew {
			if err = w.Store.CreateTicket(t); err != nil {
				return
			}
			undos = append(undos, func() { _ = w.Store.DeleteTicket(t.ID) })
		} else {
			prev, gerr := w.Store.Ticket(t.ID)
			if gerr != nil {
				return undo, gerr
			}
			if err = w.Store.PutTicket(t); err != nil {
				return
			}
			undos = append(undos, func() { _ = w.Store.PutTicket(prev) })
		}
	}

	return
}

// publish updates the redis cache. Failures only cost freshness of the HTTP reads.
func (w *Worker) publish(m *ledger.Machine, t *ledger.Ticket, r *xnats.Receipt) {
	if w.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := w.Cache.Commit(ctx, m, t, r); err != nil {
		logger.Warningf("cache commit %s failed with err:%s", r.ID, err)
	}
}
