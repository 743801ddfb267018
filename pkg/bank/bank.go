// Package bank keeps asset balances in memory and executes ledger transfers.
package bank

import (
	"errors"
	"fmt"
	"sync"

	"vmledger/pkg/ledger"
	"vmledger/pkg/xlog"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrBadSigner           = errors.New("bank: signer may not move this holding")
	ErrOverflow            = errors.New("bank: balance overflow")
)

var logger = xlog.GetLogger()

// Bank is safe for concurrent readers, but transfers are expected to come
// from one goroutine: the worker that orders every operation.
type Bank struct {
	mu       sync.RWMutex
	holdings map[Holding]uint64
}

func New() *Bank {
	return &Bank{
		holdings: map[Holding]uint64{},
	}
}

func (b *Bank) Balance(asset, owner ledger.Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.holdings[Holding{Asset: asset, Owner: owner}]
}

// Load sets a balance as read back from storage.
func (b *Bank) Load(asset, owner ledger.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings[Holding{Asset: asset, Owner: owner}] = amount
}

// Len is the number of holdings ever touched.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.holdings)
}

// Credit mints amount into a holding, for deposits and dev airdrops.
func (b *Bank) Credit(asset, owner ledger.Address, amount uint64) (c Change, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := Holding{Asset: asset, Owner: owner}
	bal := b.holdings[h]
	if bal+amount < bal {
		return c, ErrOverflow
	}
	b.holdings[h] = bal + amount

	return Change{Asset: asset, Owner: owner, Credit: amount, New: bal + amount}, nil
}

// Apply executes every transfer or none. On success it returns one Change
// per leg side, in order.
func (b *Bank) Apply(ts []ledger.Transfer) (changes []Change, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := map[Holding]uint64{}
	touch := func(h Holding) {
		if _, ok := prev[h]; !ok {
			prev[h] = b.holdings[h]
		}
	}

	defer func() {
		if err != nil {
			for h, v := range prev {
				b.holdings[h] = v
			}
			changes = nil
			logger.Debugf("bank Apply rolled back %d holdings with err:%s", len(prev), err)
		}
	}()

	for i, t := range ts {
		if !signed(t) {
			return nil, fmt.Errorf("transfer %d of %s from %s: %w", i, t.Asset.Short(), t.From.Short(), ErrBadSigner)
		}

		from := Holding{Asset: t.Asset, Owner: t.From}
		to := Holding{Asset: t.Asset, Owner: t.To}
		touch(from)
		touch(to)

		if b.holdings[from] < t.Amount {
			return nil, fmt.Errorf("transfer %d of %s from %s: %w", i, t.Asset.Short(), t.From.Short(), ErrInsufficientBalance)
		}
		b.holdings[from] -= t.Amount
		changes = append(changes, Change{Asset: t.Asset, Owner: t.From, Debit: t.Amount, New: b.holdings[from]})

		if b.holdings[to]+t.Amount < b.holdings[to] {
			return nil, fmt.Errorf("transfer %d of %s to %s: %w", i, t.Asset.Short(), t.To.Short(), ErrOverflow)
		}
		b.holdings[to] += t.Amount
		changes = append(changes, Change{Asset: t.Asset, Owner: t.To, Credit: t.Amount, New: b.holdings[to]})
	}

	return
}

// Transfer moves amount of asset between two owners, signed by signer.
func (b *Bank) Transfer(asset, from, to ledger.Address, amount uint64, signer ledger.Address) ([]Change, error) {
	return b.Apply([]ledger.Transfer{{Asset: asset, From: from, To: to, Amount: amount, Signer: signer}})
}

// Restore puts holdings back to what they were before changes were applied.
// changes must be the exact result of the last Apply.
func (b *Bank) Restore(changes []Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		b.holdings[c.Holding()] = c.New + c.Debit - c.Credit
	}
}

// signed checks the transfer is authorized by the owner of the source
// holding, directly or through a capability that derives it.
func signed(t ledger.Transfer) bool {
	if t.Capability != nil {
		return t.Capability.Authorizes(t.From)
	}
	return !t.From.IsZero() && t.Signer == t.From
}
