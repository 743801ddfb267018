// Package xnats holds the messages carried over the VM stream, from the
// ingress edge to the worker, and the receipts coming back.
package xnats

import (
	"errors"
	"fmt"

	"vmledger/pkg/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Op string

const (
	OpCreateMachine    Op = "create_machine"
	OpFundMachine      Op = "fund_machine"
	OpBuyTicket        Op = "buy_ticket"
	OpBuySplWithTicket Op = "buy_spl_with_ticket"
	OpBuySpl           Op = "buy_spl"

	// OpAirdrop mints Amount of Asset to Signer. Workers accept it only in debug.
	OpAirdrop Op = "airdrop"
)

var Ops = []Op{OpCreateMachine, OpFundMachine, OpBuyTicket, OpBuySplWithTicket, OpBuySpl}

func (op Op) Valid() bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

// OpReq is one ledger operation, sent from ingress to the worker.
//
// Amount counts supply units. Create carries PPA and PPT in whole credits,
// the worker converts them with the configured credit decimals.
type OpReq struct {
	ID     uuid.UUID      `json:"id"`
	Op     Op             `json:"op"`
	Signer ledger.Address `json:"signer"`
	Time   int64          `json:"time"` // nanoseconds, set by ingress

	Machine   ledger.Address `json:"machine"`
	Ticket    uuid.UUID      `json:"ticket"`
	Asset     ledger.Address `json:"asset"`
	Authority ledger.Address `json:"authority"` // authority the caller expects to pay
	Amount    uint64         `json:"amount"`

	Create *CreateParams `json:"create,omitempty"`
}

type CreateParams struct {
	PPA              decimal.Decimal `json:"ppa"`
	PPT              decimal.Decimal `json:"ppt"`
	TicketAllocation uint64          `json:"ticketAllocation"`
	PresaleStart     int64           `json:"presaleStart"`
	PresaleEnd       int64           `json:"presaleEnd"`
	PubsaleStart     int64           `json:"pubsaleStart"`
	PubsaleEnd       int64           `json:"pubsaleEnd"`
}

var (
	ErrBadRequest = errors.New("xnats: bad request")
	ErrBadAmount  = errors.New("xnats: amount is not a whole number of base units")
)

// Validate checks the fields op needs are present. It does not touch ledger state.
func (r *OpReq) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrBadRequest)
	}
	if !r.Op.Valid() && r.Op != OpAirdrop {
		return fmt.Errorf("%w: unknown op %q", ErrBadRequest, r.Op)
	}
	if r.Signer.IsZero() {
		return fmt.Errorf("%w: missing signer", ErrBadRequest)
	}

	switch r.Op {
	case OpCreateMachine:
		if r.Create == nil || r.Asset.IsZero() {
			return fmt.Errorf("%w: create needs asset and params", ErrBadRequest)
		}
	case OpFundMachine:
		if r.Machine.IsZero() || r.Asset.IsZero() {
			return fmt.Errorf("%w: fund needs machine and asset", ErrBadRequest)
		}
	case OpBuyTicket, OpBuySpl:
		if r.Machine.IsZero() {
			return fmt.Errorf("%w: %s needs machine", ErrBadRequest, r.Op)
		}
	case OpBuySplWithTicket:
		if r.Ticket == uuid.Nil {
			return fmt.Errorf("%w: redeem needs ticket", ErrBadRequest)
		}
	case OpAirdrop:
		if r.Asset.IsZero() {
			return fmt.Errorf("%w: airdrop needs asset", ErrBadRequest)
		}
	}
	return nil
}

// CreditUnits converts a whole-credit amount into base units.
func CreditUnits(d decimal.Decimal, decimals int32) (uint64, error) {
	u := d.Shift(decimals)
	if u.IsNegative() || !u.Equal(u.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrBadAmount, d)
	}
	if u.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("%w: %s", ErrBadAmount, d)
	}
	return u.BigInt().Uint64(), nil
}

// Credits renders base units as whole credits.
func Credits(units uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromUint64(units).Shift(-decimals)
}

// Receipt is the outcome of one OpReq, keyed by the request id.
type Receipt struct {
	ID    uuid.UUID `json:"id"`
	Op    Op        `json:"op"`
	Seq   uint64    `json:"seq"`             // stream sequence
	LogID int64     `json:"logID,omitempty"` // journal line
	Time  int64     `json:"time"`

	OK    bool   `json:"ok"`
	Code  int    `json:"code,omitempty"` // ledger error code, 0 otherwise
	Error string `json:"error,omitempty"`

	Machine   *ledger.Machine   `json:"machine,omitempty"`
	Ticket    *ledger.Ticket    `json:"ticket,omitempty"`
	Transfers []ledger.Transfer `json:"transfers,omitempty"`
}

// Subject is where ingress publishes op on stream.
func Subject(stream string, op Op) string {
	return stream + "." + string(op)
}

// Subjects matches every op on stream.
func Subjects(stream string) string {
	return stream + ".*"
}
