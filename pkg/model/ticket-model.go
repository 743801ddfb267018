package model

import (
	"vmledger/pkg/ledger"

	"github.com/google/uuid"
)

// Ticket model, one row per issued ticket
type Ticket struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	UUID    string `json:"uuid" gorm:"column:uuid; omitempty; not null; type:char(36); uniqueindex:idx_t_uuid;"`
	Machine string `json:"machine" gorm:"omitempty; not null; type:char(64); index;"`
	Buyer   string `json:"buyer" gorm:"omitempty; not null; type:char(64); index;"`

	Unspent uint64 `json:"unspent" gorm:"omitempty; not null; default:0;"`
	Spent   uint64 `json:"spent" gorm:"omitempty; not null; default:0;"`

	LogID int64 `json:"logID" gorm:"omitempty; not null; default:0;"`

	Model
}

func TicketFromLedger(t ledger.Ticket, logID int64) Ticket {
	return Ticket{
		UUID:    t.ID.String(),
		Machine: t.Machine.String(),
		Buyer:   t.Buyer.String(),
		Unspent: t.Unspent,
		Spent:   t.Spent,
		LogID:   logID,
	}
}

func (t Ticket) Ledger() (lt ledger.Ticket, err error) {
	lt.ID, err = uuid.Parse(t.UUID)
	if err != nil {
		return
	}
	lt.Machine, err = ledger.ParseAddress(t.Machine)
	if err != nil {
		return
	}
	lt.Buyer, err = ledger.ParseAddress(t.Buyer)
	if err != nil {
		return
	}
	lt.Unspent = t.Unspent
	lt.Spent = t.Spent
	return
}
