package bank

import (
	"vmledger/pkg/ledger"
)

// Holding is the balance of one asset owned by one address.
type Holding struct {
	Asset ledger.Address `json:"asset"`
	Owner ledger.Address `json:"owner"`
}

// Change is the result of one transfer leg on one holding
type Change struct {
	Asset  ledger.Address `json:"asset"`
	Owner  ledger.Address `json:"owner"`
	Debit  uint64         `json:"debit,omitempty"`
	Credit uint64         `json:"credit,omitempty"`
	New    uint64         `json:"new"`
}

func (c Change) Holding() Holding {
	return Holding{Asset: c.Asset, Owner: c.Owner}
}
