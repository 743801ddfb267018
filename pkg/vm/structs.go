package vm

import (
	"vmledger/pkg/bank"
	"vmledger/pkg/ledger"
	"vmledger/pkg/xnats"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Msg is one unit of work for the worker goroutine: a stream message, or a
// request handed over in process with a channel for its receipt.
type Msg struct {
	N *nats.Msg

	Req  *xnats.OpReq
	Seq  uint64
	Done chan<- xnats.Receipt
}

// VMLog is one journal line. Every handled request writes one, rejected
// or not, so the stream position survives a restart.
type VMLog struct {
	LogID  int64     `json:"logID"`
	Ts     int64     `json:"ts"`
	MsgSeq uint64    `json:"msgSeq"`
	ReqID  uuid.UUID `json:"reqID"`
	Op     xnats.Op  `json:"op"`

	Code  int    `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	Machine   *ledger.Machine   `json:"machine,omitempty"`
	Ticket    *ledger.Ticket    `json:"ticket,omitempty"`
	Transfers []ledger.Transfer `json:"transfers,omitempty"`

	BalanceLogs []BalanceLog `json:"balances,omitempty"`
}

func (l VMLog) Rejected() bool {
	return l.Error != ""
}

type BalanceLog struct {
	LogIndex int64          `json:"logIndex"`
	Asset    ledger.Address `json:"asset"`
	Owner    ledger.Address `json:"owner"`
	Debit    uint64         `json:"debit,omitempty"`
	Credit   uint64         `json:"credit,omitempty"`
	New      uint64         `json:"new"`
}

func balanceLogs(changes []bank.Change) []BalanceLog {
	bls := make([]BalanceLog, 0, len(changes))
	for i, c := range changes {
		bls = append(bls, BalanceLog{
			LogIndex: int64(i + 1),
			Asset:    c.Asset,
			Owner:    c.Owner,
			Debit:    c.Debit,
			Credit:   c.Credit,
			New:      c.New,
		})
	}
	return bls
}

// outcome is what a request would commit, before anything is applied
type outcome struct {
	machine    *ledger.Machine
	machineNew bool
	ticket     *ledger.Ticket
	ticketNew  bool
	transfers  []ledger.Transfer

	// airdrop mints instead of transferring
	mint *ledger.Transfer
}
