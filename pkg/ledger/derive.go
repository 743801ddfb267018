package ledger

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// addressDomainKey keys the BLAKE3 hash used for every derived address.
// ASCII of the domain name, zero padded to 32 bytes.
var addressDomainKey = [32]byte{
	'v', 'm', 'l', 'e', 'd', 'g', 'e', 'r', '.', 'a', 'd', 'd', 'r', 'e', 's', 's',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// MachineSeed is the first seed of every sale machine address.
const MachineSeed = "vending-machine"

// Credits is the payment asset every machine sells against.
var Credits = DeriveAddress([]byte("credits"))

// DeriveAddress hashes the seeds into an address. Each seed is length
// prefixed so ("ab","c") and ("a","bc") never collide.
func DeriveAddress(seeds ...[]byte) (a Address) {
	h, err := blake3.NewKeyed(addressDomainKey[:])
	if err != nil {
		panic("ledger: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var n [8]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write(s)
	}
	copy(a[:], h.Sum(nil))
	return
}

// MachineSeeds returns the seeds that derive the machine of (authority, asset).
func MachineSeeds(authority, asset Address) [][]byte {
	return [][]byte{[]byte(MachineSeed), authority[:], asset[:]}
}

// DeriveMachineID is the record key of the machine selling asset for authority.
// The same address owns the machine's supply holding.
func DeriveMachineID(authority, asset Address) Address {
	return DeriveAddress(MachineSeeds(authority, asset)...)
}

// Capability lets a derived address sign transfers out of its own holdings.
// It carries the seeds, never a key: whoever verifies it re-derives the address.
type Capability struct {
	Seeds [][]byte `json:"seeds"`
}

func (c Capability) Address() Address {
	return DeriveAddress(c.Seeds...)
}

// Authorizes reports whether c may move funds held by from.
func (c *Capability) Authorizes(from Address) bool {
	return c != nil && len(c.Seeds) > 0 && c.Address() == from
}
