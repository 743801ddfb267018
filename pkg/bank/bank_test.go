package bank_test

import (
	"errors"
	"math"
	"testing"

	"vmledger/pkg/bank"
	"vmledger/pkg/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = ledger.DeriveAddress([]byte("alice"))
	bob   = ledger.DeriveAddress([]byte("bob"))
	coin  = ledger.DeriveAddress([]byte("coin"))
)

func TestCreditAndTransfer(t *testing.T) {
	b := bank.New()
	c, err := b.Credit(ledger.Credits, alice, 100)
	require.Nil(t, err)
	assert.Equal(t, uint64(100), c.New)

	changes, err := b.Apply([]ledger.Transfer{
		{Asset: ledger.Credits, From: alice, To: bob, Amount: 30, Signer: alice},
	})
	require.Nil(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, bank.Change{Asset: ledger.Credits, Owner: alice, Debit: 30, New: 70}, changes[0])
	assert.Equal(t, bank.Change{Asset: ledger.Credits, Owner: bob, Credit: 30, New: 30}, changes[1])
	assert.Equal(t, uint64(70), b.Balance(ledger.Credits, alice))
	assert.Equal(t, uint64(30), b.Balance(ledger.Credits, bob))
}

func TestTransfer(t *testing.T) {
	b := bank.New()
	_, err := b.Credit(coin, alice, 10)
	require.Nil(t, err)

	changes, err := b.Transfer(coin, alice, bob, 4, alice)
	require.Nil(t, err)
	assert.Equal(t, []bank.Change{
		{Asset: coin, Owner: alice, Debit: 4, New: 6},
		{Asset: coin, Owner: bob, Credit: 4, New: 4},
	}, changes)

	_, err = b.Transfer(coin, alice, bob, 7, alice)
	assert.True(t, errors.Is(err, bank.ErrInsufficientBalance))

	_, err = b.Transfer(coin, alice, bob, 1, bob)
	assert.True(t, errors.Is(err, bank.ErrBadSigner))

	assert.Equal(t, uint64(6), b.Balance(coin, alice))
	assert.Equal(t, uint64(4), b.Balance(coin, bob))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	b := bank.New()
	_, err := b.Credit(ledger.Credits, alice, 100)
	require.Nil(t, err)
	_, err = b.Credit(coin, bob, 5)
	require.Nil(t, err)

	_, err = b.Apply([]ledger.Transfer{
		{Asset: ledger.Credits, From: alice, To: bob, Amount: 50, Signer: alice},
		{Asset: coin, From: bob, To: alice, Amount: 6, Signer: bob},
	})
	assert.True(t, errors.Is(err, bank.ErrInsufficientBalance))
	assert.Equal(t, uint64(100), b.Balance(ledger.Credits, alice))
	assert.Equal(t, uint64(0), b.Balance(ledger.Credits, bob))
	assert.Equal(t, uint64(5), b.Balance(coin, bob))
}

func TestApplyChecksSigner(t *testing.T) {
	b := bank.New()
	_, err := b.Credit(ledger.Credits, alice, 100)
	require.Nil(t, err)

	_, err = b.Apply([]ledger.Transfer{
		{Asset: ledger.Credits, From: alice, To: bob, Amount: 1, Signer: bob},
	})
	assert.True(t, errors.Is(err, bank.ErrBadSigner))
	assert.Equal(t, uint64(100), b.Balance(ledger.Credits, alice))
}

func TestApplyMachineCapability(t *testing.T) {
	m := ledger.Machine{Authority: alice, Asset: coin}
	vault := m.ID()

	b := bank.New()
	_, err := b.Credit(coin, vault, 10)
	require.Nil(t, err)

	// a capability of another machine does not open this vault
	other := ledger.Machine{Authority: bob, Asset: coin}
	_, err = b.Apply([]ledger.Transfer{
		{Asset: coin, From: vault, To: bob, Amount: 1, Signer: vault, Capability: other.Capability()},
	})
	assert.True(t, errors.Is(err, bank.ErrBadSigner))

	// nor does claiming the vault as signer
	_, err = b.Apply([]ledger.Transfer{
		{Asset: coin, From: vault, To: bob, Amount: 1, Signer: vault, Capability: &ledger.Capability{}},
	})
	assert.True(t, errors.Is(err, bank.ErrBadSigner))

	_, err = b.Apply([]ledger.Transfer{
		{Asset: coin, From: vault, To: bob, Amount: 4, Signer: vault, Capability: m.Capability()},
	})
	require.Nil(t, err)
	assert.Equal(t, uint64(6), b.Balance(coin, vault))
	assert.Equal(t, uint64(4), b.Balance(coin, bob))
}

func TestApplyOverflow(t *testing.T) {
	b := bank.New()
	b.Load(coin, bob, math.MaxUint64)
	_, err := b.Credit(coin, alice, 1)
	require.Nil(t, err)

	_, err = b.Apply([]ledger.Transfer{
		{Asset: coin, From: alice, To: bob, Amount: 1, Signer: alice},
	})
	assert.True(t, errors.Is(err, bank.ErrOverflow))
	assert.Equal(t, uint64(1), b.Balance(coin, alice))

	_, err = b.Credit(coin, bob, 1)
	assert.Equal(t, bank.ErrOverflow, err)
}

func TestRestore(t *testing.T) {
	b := bank.New()
	_, err := b.Credit(ledger.Credits, alice, 10)
	require.Nil(t, err)

	changes, err := b.Apply([]ledger.Transfer{
		{Asset: ledger.Credits, From: alice, To: bob, Amount: 4, Signer: alice},
		{Asset: ledger.Credits, From: bob, To: alice, Amount: 1, Signer: bob},
	})
	require.Nil(t, err)
	assert.Equal(t, uint64(7), b.Balance(ledger.Credits, alice))

	b.Restore(changes)
	assert.Equal(t, uint64(10), b.Balance(ledger.Credits, alice))
	assert.Equal(t, uint64(0), b.Balance(ledger.Credits, bob))
}

func TestSelfTransfer(t *testing.T) {
	b := bank.New()
	_, err := b.Credit(coin, alice, 3)
	require.Nil(t, err)
	changes, err := b.Apply([]ledger.Transfer{{Asset: coin, From: alice, To: alice, Amount: 3, Signer: alice}})
	require.Nil(t, err)
	assert.Equal(t, uint64(3), b.Balance(coin, alice))

	b.Restore(changes)
	assert.Equal(t, uint64(3), b.Balance(coin, alice))
}
