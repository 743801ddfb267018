package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Engine runs the five sale operations. It holds no records: callers pass
// value copies in and commit what comes back. A rejected call returns the
// zero records and an error, and the inputs stay untouched.
type Engine struct {
	// EnforceWindows gates ticket sales and redemptions on the presale
	// window and direct purchases on the pubsale window.
	EnforceWindows bool

	Now func() time.Time
}

func NewEngine(enforceWindows bool) *Engine {
	return &Engine{EnforceWindows: enforceWindows, Now: time.Now}
}

type CreateMachineParams struct {
	Authority        Address `json:"authority"`
	Asset            Address `json:"asset"`
	PPA              uint64  `json:"ppa"`
	PPT              uint64  `json:"ppt"`
	TicketAllocation uint64  `json:"ticketAllocation"`
	PresaleStart     int64   `json:"presaleStart"`
	PresaleEnd       int64   `json:"presaleEnd"`
	PubsaleStart     int64   `json:"pubsaleStart"`
	PubsaleEnd       int64   `json:"pubsaleEnd"`
}

// CreateMachine never fails. Key uniqueness is the store's business.
func (e *Engine) CreateMachine(p CreateMachineParams) Machine {
	return Machine{
		Authority:        p.Authority,
		Asset:            p.Asset,
		SupplyStock:      0,
		TicketAllocation: p.TicketAllocation,
		TicketsSold:      0,
		PPA:              p.PPA,
		PPT:              p.PPT,
		Ready:            false,
		PresaleStart:     p.PresaleStart,
		PresaleEnd:       p.PresaleEnd,
		PubsaleStart:     p.PubsaleStart,
		PubsaleEnd:       p.PubsaleEnd,
	}
}

// FundMachine moves amount of the machine's asset from the authority into
// the machine and marks it ready. amount may be 0.
func (e *Engine) FundMachine(m Machine, funder, asset Address, amount uint64) (Machine, []Transfer, error) {
	if asset != m.Asset {
		return Machine{}, nil, ErrUnauthorized
	}
	if funder != m.Authority {
		return Machine{}, nil, ErrUnauthorized
	}

	stock, err := add(m.SupplyStock, amount, "supply_stock + amount")
	if err != nil {
		return Machine{}, nil, err
	}

	m.SupplyStock = stock
	m.Ready = true

	return m, []Transfer{{
		Asset:  m.Asset,
		From:   funder,
		To:     m.ID(),
		Amount: amount,
		Signer: funder,
	}}, nil
}

// BuyTicket sells buyer the right to redeem amount units later and counts
// one issuance, whatever amount is.
func (e *Engine) BuyTicket(m Machine, buyer, authorityRef Address, amount uint64, id uuid.UUID) (Machine, Ticket, []Transfer, error) {
	if !m.Ready {
		return Machine{}, Ticket{}, nil, ErrNotReady
	}
	if m.TicketsSold >= m.TicketAllocation {
		return Machine{}, Ticket{}, nil, ErrNoTickets
	}
	if authorityRef != m.Authority {
		return Machine{}, Ticket{}, nil, ErrUnauthorized
	}
	if err := e.checkWindow(m.PresaleStart, m.PresaleEnd); err != nil {
		return Machine{}, Ticket{}, nil, err
	}

	cost, err := mul(amount, m.PPA, "amount * ppa")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}
	sold, err := add(m.TicketsSold, 1, "tickets_sold + 1")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}

	m.TicketsSold = sold
	t := Ticket{
		ID:      id,
		Machine: m.ID(),
		Buyer:   buyer,
		Unspent: amount,
		Spent:   0,
	}

	return m, t, []Transfer{{
		Asset:  Credits,
		From:   buyer,
		To:     authorityRef,
		Amount: cost,
		Signer: buyer,
	}}, nil
}

// BuySplWithTicket redeems amount units of t at ppt. The machine signs the
// supply leg with its own derived capability.
func (e *Engine) BuySplWithTicket(m Machine, t Ticket, signer, authorityRef Address, amount uint64) (Machine, Ticket, []Transfer, error) {
	remaining, err := sub(t.Unspent, t.Spent, "unspent - spent")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}
	if remaining < amount {
		return Machine{}, Ticket{}, nil, ErrNotEnoughFunds
	}
	if amount > m.TicketAllocation {
		return Machine{}, Ticket{}, nil, ErrShortSupply
	}
	if !m.Ready {
		return Machine{}, Ticket{}, nil, ErrNotReady
	}
	if t.Buyer != signer {
		return Machine{}, Ticket{}, nil, ErrUnauthorized
	}
	if m.Authority != authorityRef {
		return Machine{}, Ticket{}, nil, ErrUnauthorized
	}
	if err := e.checkWindow(m.PresaleStart, m.PresaleEnd); err != nil {
		return Machine{}, Ticket{}, nil, err
	}

	spent, err := add(t.Spent, amount, "spent + amount")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}
	unspent, err := sub(t.Unspent, amount, "unspent - amount")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}
	allocation, err := sub(m.TicketAllocation, amount, "ticket_allocation - amount")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}
	stock, err := sub(m.SupplyStock, amount, "supply_stock - amount")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}
	cost, err := mul(amount, m.PPT, "amount * ppt")
	if err != nil {
		return Machine{}, Ticket{}, nil, err
	}

	t.Spent = spent
	t.Unspent = unspent
	m.TicketAllocation = allocation
	m.SupplyStock = stock

	return m, t, e.purchase(m, signer, authorityRef, amount, cost), nil
}

// BuySpl sells amount units at ppt without a ticket. Stock reserved for
// ticket holders is never sold here.
func (e *Engine) BuySpl(m Machine, signer, authorityRef Address, amount uint64) (Machine, []Transfer, error) {
	if !m.Ready {
		return Machine{}, nil, ErrNotReady
	}
	if m.TicketAllocation == m.SupplyStock {
		return Machine{}, nil, ErrShortSupply
	}
	if amount > m.SupplyStock {
		return Machine{}, nil, ErrShortSupply
	}
	if m.Authority != authorityRef {
		return Machine{}, nil, ErrUnauthorized
	}
	// only stock beyond the ticket reservation is for sale
	if m.TicketAllocation > m.SupplyStock || amount > m.SupplyStock-m.TicketAllocation {
		return Machine{}, nil, ErrShortSupply
	}
	if err := e.checkWindow(m.PubsaleStart, m.PubsaleEnd); err != nil {
		return Machine{}, nil, err
	}

	stock, err := sub(m.SupplyStock, amount, "supply_stock - amount")
	if err != nil {
		return Machine{}, nil, err
	}
	cost, err := mul(amount, m.PPT, "amount * ppt")
	if err != nil {
		return Machine{}, nil, err
	}

	m.SupplyStock = stock

	return m, e.purchase(m, signer, authorityRef, amount, cost), nil
}

func (e *Engine) purchase(m Machine, signer, authorityRef Address, amount, cost uint64) []Transfer {
	id := m.ID()
	return []Transfer{
		{
			Asset:  Credits,
			From:   signer,
			To:     authorityRef,
			Amount: cost,
			Signer: signer,
		},
		{
			Asset:      m.Asset,
			From:       id,
			To:         signer,
			Amount:     amount,
			Signer:     id,
			Capability: m.Capability(),
		},
	}
}

func (e *Engine) checkWindow(start, end int64) error {
	if !e.EnforceWindows {
		return nil
	}
	now := e.now().Unix()
	if now < start || now > end {
		return ErrNotStarted
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
