package model

import (
	"errors"

	"vmledger/pkg/ledger"
)

var ErrKeyMismatch = errors.New("model: machine key does not match its authority and asset")

// Machine model, one row per sale machine, keyed by its derived address
type Machine struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Key       string `json:"key" gorm:"omitempty; not null; type:char(64); uniqueindex:idx_m_key;"`
	Authority string `json:"authority" gorm:"omitempty; not null; type:char(64); index;"`
	Asset     string `json:"asset" gorm:"omitempty; not null; type:char(64);"`

	SupplyStock      uint64 `json:"supplyStock" gorm:"omitempty; not null; default:0;"`
	TicketAllocation uint64 `json:"ticketAllocation" gorm:"omitempty; not null; default:0;"`
	TicketsSold      uint64 `json:"ticketsSold" gorm:"omitempty; not null; default:0;"`
	PPA              uint64 `json:"ppa" gorm:"column:ppa; omitempty; not null; default:0;"`
	PPT              uint64 `json:"ppt" gorm:"column:ppt; omitempty; not null; default:0;"`
	Ready            bool   `json:"ready" gorm:"omitempty; not null; default:0;"`

	PresaleStart int64 `json:"presaleStart" gorm:"omitempty; not null; default:0;"`
	PresaleEnd   int64 `json:"presaleEnd" gorm:"omitempty; not null; default:0;"`
	PubsaleStart int64 `json:"pubsaleStart" gorm:"omitempty; not null; default:0;"`
	PubsaleEnd   int64 `json:"pubsaleEnd" gorm:"omitempty; not null; default:0;"`

	LogID int64 `json:"logID" gorm:"omitempty; not null; default:0;"` // last log that wrote this row

	Model
}

func MachineFromLedger(m ledger.Machine, logID int64) Machine {
	return Machine{
		Key:              m.ID().String(),
		Authority:        m.Authority.String(),
		Asset:            m.Asset.String(),
		SupplyStock:      m.SupplyStock,
		TicketAllocation: m.TicketAllocation,
		TicketsSold:      m.TicketsSold,
		PPA:              m.PPA,
		PPT:              m.PPT,
		Ready:            m.Ready,
		PresaleStart:     m.PresaleStart,
		PresaleEnd:       m.PresaleEnd,
		PubsaleStart:     m.PubsaleStart,
		PubsaleEnd:       m.PubsaleEnd,
		LogID:            logID,
	}
}

// Ledger converts the row back and checks Key still derives from it.
func (m Machine) Ledger() (lm ledger.Machine, err error) {
	lm.Authority, err = ledger.ParseAddress(m.Authority)
	if err != nil {
		return
	}
	lm.Asset, err = ledger.ParseAddress(m.Asset)
	if err != nil {
		return
	}
	lm.SupplyStock = m.SupplyStock
	lm.TicketAllocation = m.TicketAllocation
	lm.TicketsSold = m.TicketsSold
	lm.PPA = m.PPA
	lm.PPT = m.PPT
	lm.Ready = m.Ready
	lm.PresaleStart = m.PresaleStart
	lm.PresaleEnd = m.PresaleEnd
	lm.PubsaleStart = m.PubsaleStart
	lm.PubsaleEnd = m.PubsaleEnd

	if lm.ID().String() != m.Key {
		return ledger.Machine{}, ErrKeyMismatch
	}
	return
}
