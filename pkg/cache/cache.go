// Package cache publishes committed machine and ticket snapshots and
// operation receipts to redis, where the HTTP edge reads them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vmledger/pkg/ledger"
	"vmledger/pkg/xnats"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrMiss = errors.New("cache: miss")

const prefix = "vm:"

func machineKey(id ledger.Address) string        { return prefix + "machine:" + id.String() }
func ticketKey(id uuid.UUID) string              { return prefix + "ticket:" + id.String() }
func machineTicketsKey(id ledger.Address) string { return prefix + "mtickets:" + id.String() }
func receiptKey(id uuid.UUID) string             { return prefix + "receipt:" + id.String() }

// Cache wraps a redis client. Records never expire, receipts live for TTL.
type Cache struct {
	rds *redis.Client
	TTL time.Duration
}

func New(rds *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rds: rds, TTL: ttl}
}

// Commit writes the records one operation produced and its receipt in one MULTI.
func (c *Cache) Commit(ctx context.Context, m *ledger.Machine, t *ledger.Ticket, r *xnats.Receipt) error {
	_, err := c.rds.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if m != nil {
			if err := setJSON(ctx, p, machineKey(m.ID()), m, 0); err != nil {
				return err
			}
		}
		if t != nil {
			if err := setJSON(ctx, p, ticketKey(t.ID), t, 0); err != nil {
				return err
			}
			p.SAdd(ctx, machineTicketsKey(t.Machine), t.ID.String())
		}
		if r != nil {
			if err := setJSON(ctx, p, receiptKey(r.ID), r, c.TTL); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (c *Cache) PutMachine(ctx context.Context, m ledger.Machine) error {
	return c.Commit(ctx, &m, nil, nil)
}

func (c *Cache) PutTicket(ctx context.Context, t ledger.Ticket) error {
	return c.Commit(ctx, nil, &t, nil)
}

func (c *Cache) PutReceipt(ctx context.Context, r xnats.Receipt) error {
	return c.Commit(ctx, nil, nil, &r)
}

func (c *Cache) Machine(ctx context.Context, id ledger.Address) (m ledger.Machine, err error) {
	err = c.getJSON(ctx, machineKey(id), &m)
	return
}

func (c *Cache) Ticket(ctx context.Context, id uuid.UUID) (t ledger.Ticket, err error) {
	err = c.getJSON(ctx, ticketKey(id), &t)
	return
}

func (c *Cache) Receipt(ctx context.Context, id uuid.UUID) (r xnats.Receipt, err error) {
	err = c.getJSON(ctx, receiptKey(id), &r)
	return
}

// TicketsByMachine returns the cached tickets of a machine in no particular order.
func (c *Cache) TicketsByMachine(ctx context.Context, id ledger.Address) (ts []ledger.Ticket, err error) {
	ids, err := c.rds.SMembers(ctx, machineTicketsKey(id)).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	keys := make([]string, 0, len(ids))
	for _, s := range ids {
		keys = append(keys, prefix+"ticket:"+s)
	}
	vals, err := c.rds.MGet(ctx, keys...).Result()
	if err != nil {
		return
	}

	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t ledger.Ticket
		if err = json.Unmarshal([]byte(s), &t); err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return
}

func setJSON(ctx context.Context, p redis.Pipeliner, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.Set(ctx, key, data, ttl)
	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := c.rds.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
