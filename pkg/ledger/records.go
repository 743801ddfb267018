package ledger

import (
	"github.com/google/uuid"
)

// Machine sells one supply asset for credits on behalf of its authority.
type Machine struct {
	Authority Address `json:"authority"`
	Asset     Address `json:"asset"`

	SupplyStock      uint64 `json:"supplyStock"`
	TicketAllocation uint64 `json:"ticketAllocation"`
	TicketsSold      uint64 `json:"ticketsSold"`

	PPA uint64 `json:"ppa"` // credits per allocation slot
	PPT uint64 `json:"ppt"` // credits per supply unit

	Ready bool `json:"ready"`

	// unix seconds
	PresaleStart int64 `json:"presaleStart"`
	PresaleEnd   int64 `json:"presaleEnd"`
	PubsaleStart int64 `json:"pubsaleStart"`
	PubsaleEnd   int64 `json:"pubsaleEnd"`
}

// ID is the machine's record key and the owner of its supply holding.
func (m Machine) ID() Address {
	return DeriveMachineID(m.Authority, m.Asset)
}

// Capability authorizes transfers out of the machine's supply holding.
func (m Machine) Capability() *Capability {
	return &Capability{Seeds: MachineSeeds(m.Authority, m.Asset)}
}

// State is "Created" until the first funding, then "Funded" for good.
func (m Machine) State() string {
	if m.Ready {
		return "Funded"
	}
	return "Created"
}

// Ticket is the right to redeem up to Unspent supply units at ppt.
type Ticket struct {
	ID      uuid.UUID `json:"id"`
	Machine Address   `json:"machine"`
	Buyer   Address   `json:"buyer"`
	Unspent uint64    `json:"unspent"`
	Spent   uint64    `json:"spent"`
}

// Transfer is one asset movement the bank has to execute with the record update.
// From signs it, unless Capability is set: then the capability must derive From.
type Transfer struct {
	Asset      Address     `json:"asset"`
	From       Address     `json:"from"`
	To         Address     `json:"to"`
	Amount     uint64      `json:"amount"`
	Signer     Address     `json:"signer"`
	Capability *Capability `json:"capability,omitempty"`
}
