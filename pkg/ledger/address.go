// Package ledger is the sale machine state engine. Every operation is a pure
// function from the current records and its inputs to the new records plus
// the transfers the bank must execute in the same commit.
package ledger

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Address identifies an owner, an asset or a derived record. 32 bytes, hex in text form.
type Address [32]byte

var ErrInvalidAddress = errors.New("ledger: invalid address")

func ParseAddress(s string) (a Address, err error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 2*len(a) {
		return a, ErrInvalidAddress
	}
	_, err = hex.Decode(a[:], []byte(s))
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	return
}

// MustParseAddress panics on malformed input, for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short is the first 8 hex chars, for logs.
func (a Address) Short() string {
	return a.String()[:8]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) (err error) {
	*a, err = ParseAddress(string(b))
	return
}
