package xgrpc

import (
	"vmledger/pkg/ledger"

	"github.com/google/uuid"
)

type MachineReq struct {
	ID ledger.Address `cbor:"id"`
}

type MachineResp struct {
	ID      ledger.Address `cbor:"id"`
	State   string         `cbor:"state"`
	Machine ledger.Machine `cbor:"machine"`
}

type TicketReq struct {
	ID uuid.UUID `cbor:"id"`
}

type TicketResp struct {
	Ticket ledger.Ticket `cbor:"ticket"`
}

type BalanceReq struct {
	Asset ledger.Address `cbor:"asset"`
	Owner ledger.Address `cbor:"owner"`
}

type BalanceResp struct {
	Asset  ledger.Address `cbor:"asset"`
	Owner  ledger.Address `cbor:"owner"`
	Amount uint64         `cbor:"amount"`
}

// JournalReq asks for every journal line after FromLogID, then follows.
type JournalReq struct {
	FromLogID int64 `cbor:"from"`
}

// JournalEntry is one raw JSON journal line.
type JournalEntry struct {
	LogID int64  `cbor:"logID"`
	Line  string `cbor:"line"`
}
