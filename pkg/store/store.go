// Package store keeps the live machine and ticket records of a worker.
package store

import (
	"bytes"
	"errors"
	"sync"

	"vmledger/pkg/ledger"

	"github.com/google/btree"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrExists   = errors.New("store: record already exists")
)

// Store is the ledger record store. Machines are keyed by Machine.ID(),
// tickets by their uuid.
type Store interface {
	CreateMachine(m ledger.Machine) error
	Machine(id ledger.Address) (ledger.Machine, error)
	PutMachine(m ledger.Machine) error
	DeleteMachine(id ledger.Address) error

	CreateTicket(t ledger.Ticket) error
	Ticket(id uuid.UUID) (ledger.Ticket, error)
	PutTicket(t ledger.Ticket) error
	DeleteTicket(id uuid.UUID) error
	TicketsByMachine(id ledger.Address) ([]ledger.Ticket, error)
}

// ticketKey orders the ticket index by machine, then ticket id
type ticketKey struct {
	Machine ledger.Address
	ID      uuid.UUID
}

func (a ticketKey) Less(item btree.Item) bool {
	b := item.(ticketKey)
	if c := bytes.Compare(a.Machine[:], b.Machine[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// MemStore is the in-memory Store a worker runs on. Safe for concurrent use.
type MemStore struct {
	mu sync.RWMutex

	machines map[ledger.Address]ledger.Machine
	tickets  map[uuid.UUID]ledger.Ticket
	index    *btree.BTree
}

func NewMemStore() *MemStore {
	return &MemStore{
		machines: make(map[ledger.Address]ledger.Machine),
		tickets:  make(map[uuid.UUID]ledger.Ticket),
		index:    btree.New(2),
	}
}

func (s *MemStore) CreateMachine(m ledger.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := m.ID()
	if _, ok := s.machines[id]; ok {
		return ErrExists
	}
	s.machines[id] = m
	return nil
}

func (s *MemStore) Machine(id ledger.Address) (ledger.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]
	if !ok {
		return ledger.Machine{}, ErrNotFound
	}
	return m, nil
}

// PutMachine inserts or replaces m.
func (s *MemStore) PutMachine(m ledger.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.machines[m.ID()] = m
	return nil
}

func (s *MemStore) DeleteMachine(id ledger.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.machines[id]; !ok {
		return ErrNotFound
	}
	delete(s.machines, id)
	return nil
}

func (s *MemStore) CreateTicket(t ledger.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[t.ID]; ok {
		return ErrExists
	}
	s.tickets[t.ID] = t
	s.index.ReplaceOrInsert(ticketKey{Machine: t.Machine, ID: t.ID})
	return nil
}

func (s *MemStore) Ticket(id uuid.UUID) (ledger.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return ledger.Ticket{}, ErrNotFound
	}
	return t, nil
}

// PutTicket inserts or replaces t. A ticket never moves to another machine.
func (s *MemStore) PutTicket(t ledger.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickets[t.ID]; ok && old.Machine != t.Machine {
		s.index.Delete(ticketKey{Machine: old.Machine, ID: old.ID})
	}
	s.tickets[t.ID] = t
	s.index.ReplaceOrInsert(ticketKey{Machine: t.Machine, ID: t.ID})
	return nil
}

func (s *MemStore) DeleteTicket(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.tickets, id)
	s.index.Delete(ticketKey{Machine: t.Machine, ID: t.ID})
	return nil
}

// TicketsByMachine returns the machine's tickets ordered by id.
func (s *MemStore) TicketsByMachine(id ledger.Address) (ts []ledger.Ticket, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.index.AscendGreaterOrEqual(ticketKey{Machine: id}, func(item btree.Item) bool {
		k := item.(ticketKey)
		if k.Machine != id {
			return false
		}
		ts = append(ts, s.tickets[k.ID])
		return true
	})
	return
}

// Len returns the number of machines and tickets
func (s *MemStore) Len() (machines, tickets int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.machines), len(s.tickets)
}
