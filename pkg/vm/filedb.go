package vm

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"vmledger/pkg/bank"
	"vmledger/pkg/ledger"
	"vmledger/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Batch is what a run of journal lines leaves in mysql: the latest row of
// every record touched, and one snap per balance change.
type Batch struct {
	FirstLogID int64
	LastLogID  int64
	MsgSeq     uint64
	Rejected   int

	Machines []model.Machine
	Tickets  []model.Ticket
	Balances []model.Balance
	Snaps    []model.BalanceSnap
}

// ParseLogs folds journal lines into a Batch, skipping lines already saved.
func ParseLogs(ss []string, savedLogID int64) (b *Batch, err error) {
	b = &Batch{}

	machines := map[string]model.Machine{}
	tickets := map[string]model.Ticket{}
	balances := map[bank.Holding]model.Balance{}

	for _, s := range ss {
		var l VMLog
		if err = json.Unmarshal([]byte(s), &l); err != nil {
			logger.Errorf("ParseLogs failed with data:%s, err:%s", s, err)
			return nil, err
		}
		if l.LogID <= savedLogID {
			continue
		}

		if b.FirstLogID == 0 {
			b.FirstLogID = l.LogID
		}
		b.LastLogID = l.LogID
		if l.MsgSeq > b.MsgSeq {
			b.MsgSeq = l.MsgSeq
		}
		if l.Rejected() {
			b.Rejected++
			continue
		}

		if l.Machine != nil {
			row := model.MachineFromLedger(*l.Machine, l.LogID)
			machines[row.Key] = row
		}
		if l.Ticket != nil {
			row := model.TicketFromLedger(*l.Ticket, l.LogID)
			tickets[row.UUID] = row
		}
		for _, bl := range l.BalanceLogs {
			h := bank.Holding{Asset: bl.Asset, Owner: bl.Owner}
			balances[h] = model.Balance{Asset: bl.Asset.String(), Owner: bl.Owner.String(), Amount: bl.New}
			b.Snaps = append(b.Snaps, model.BalanceSnap{
				LogID:    l.LogID,
				LogIndex: bl.LogIndex,
				Reason:   string(l.Op),
				Asset:    bl.Asset.String(),
				Owner:    bl.Owner.String(),
				Debit:    bl.Debit,
				Credit:   bl.Credit,
				New:      bl.New,
			})
		}
	}

	// fixed row order keeps concurrent upserts from deadlocking
	for _, row := range machines {
		b.Machines = append(b.Machines, row)
	}
	sort.Slice(b.Machines, func(i, j int) bool { return b.Machines[i].Key < b.Machines[j].Key })
	for _, row := range tickets {
		b.Tickets = append(b.Tickets, row)
	}
	sort.Slice(b.Tickets, func(i, j int) bool { return b.Tickets[i].UUID < b.Tickets[j].UUID })
	for _, row := range balances {
		b.Balances = append(b.Balances, row)
	}
	sort.Slice(b.Balances, func(i, j int) bool {
		if b.Balances[i].Asset != b.Balances[j].Asset {
			return b.Balances[i].Asset < b.Balances[j].Asset
		}
		return b.Balances[i].Owner < b.Balances[j].Owner
	})

	return
}

// WriteBatch saves b and moves app's lastkv markers in one transaction.
func WriteBatch(db *gorm.DB, app string, b *Batch) error {
	return db.Transaction(func(tx *gorm.DB) (err error) {
		if len(b.Machines) > 0 {
			err = tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"supply_stock", "ticket_allocation", "tickets_sold", "ready", "log_id", "updated_at",
				}),
			}).Create(&b.Machines).Error
			if err != nil {
				return
			}
		}

		if len(b.Tickets) > 0 {
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "uuid"}},
				DoUpdates: clause.AssignmentColumns([]string{"unspent", "spent", "log_id", "updated_at"}),
			}).Create(&b.Tickets).Error
			if err != nil {
				return
			}
		}

		if len(b.Balances) > 0 {
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "asset"}, {Name: "owner"}},
				DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
			}).Create(&b.Balances).Error
			if err != nil {
				return
			}
		}

		if len(b.Snaps) > 0 {
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(b.Snaps, 500).Error
			if err != nil {
				return
			}
		}

		kvs := []model.Lastkv{{App: app, Key: model.LASTKV_K_SAVED_LOG_ID, Val: b.LastLogID}}
		if b.MsgSeq > 0 {
			kvs = append(kvs, model.Lastkv{App: app, Key: model.LASTKV_K_NATS_SEQ, Val: int64(b.MsgSeq)})
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "app"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"val", "updated_at"}),
		}).Create(&kvs).Error
	})
}

// ParseAndWriteLogs is the filedb handler of the writer
func (w *Worker) ParseAndWriteLogs(ss []string) (err error) {
	b, err := ParseLogs(ss, w.SavedLogID)
	if err != nil {
		return
	}
	if b.LastLogID <= w.SavedLogID {
		logger.Debugf("ParseAndWriteLogs skip %d lines, all <= savedLogID:%d", len(ss), w.SavedLogID)
		return
	}

	err = WriteBatch(w.DB, w.Name, b)
	if err != nil {
		logger.Errorf("ParseAndWriteLogs logs %d..%d failed with err:%s", b.FirstLogID, b.LastLogID, err)
		return
	}

	logger.Tracef("ParseAndWriteLogs saved logs %d..%d, %d machines, %d tickets, %d balances, %d rejected",
		b.FirstLogID, b.LastLogID, len(b.Machines), len(b.Tickets), len(b.Balances), b.Rejected)
	w.SavedLogID = b.LastLogID
	return
}

// FiledbToMySQL follows the journal from the start and writes what mysql
// lacks, until ctx is done or a write fails.
func (w *Worker) FiledbToMySQL(ctx context.Context) (err error) {
	w.SavedLogID, err = w.LoadSavedLogID()
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan string, 1000)
	go func() {
		defer close(ch)
		if terr := w.fdb.Tailf(ctx, ch); terr != nil && !errors.Is(terr, context.Canceled) {
			logger.Errorf("FiledbToMySQL tail failed with err:%s", terr)
		}
	}()

	return w.fdb.Drain(ch)
}

// LoadSavedLogID reads the writer's progress from mysql
func (w *Worker) LoadSavedLogID() (id int64, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("LoadSavedLogID failed with err:%s", err)
		} else {
			logger.Debugf("LoadSavedLogID done with id:%d", id)
		}
	}()

	var kv model.Lastkv
	err = w.DB.Scopes(model.ByApp(w.Name)).
		Where("`key` = ?", model.LASTKV_K_SAVED_LOG_ID).
		Limit(1).Find(&kv).Error
	id = kv.Val
	return
}

// LoadAll loads records, balances and the stream position from mysql.
// mysql must hold the whole journal, see WaitForFiledb.
func (w *Worker) LoadAll() (err error) {
	defer func() {
		if err != nil {
			logger.Errorf("LoadAll failed with err:%s", err)
		} else {
			machines, tickets := 0, 0
			if ms, ok := w.Store.(interface{ Len() (int, int) }); ok {
				machines, tickets = ms.Len()
			}
			logger.Infof("LoadAll done with %d machines, %d tickets, %d holdings, latestMsgSeq:%d",
				machines, tickets, w.Bank.Len(), w.LatestMsgSeq)
		}
	}()

	var machines []model.Machine
	err = w.DB.Order("id asc").Find(&machines).Error
	if err != nil {
		return
	}
	for _, row := range machines {
		m, lerr := row.Ledger()
		if lerr != nil {
			return lerr
		}
		if err = w.Store.PutMachine(m); err != nil {
			return
		}
	}

	var tickets []model.Ticket
	err = w.DB.Order("id asc").Find(&tickets).Error
	if err != nil {
		return
	}
	for _, row := range tickets {
		t, lerr := row.Ledger()
		if lerr != nil {
			return lerr
		}
		if err = w.Store.PutTicket(t); err != nil {
			return
		}
	}

	var balances []model.Balance
	err = w.DB.Order("id asc").Find(&balances).Error
	if err != nil {
		return
	}
	for _, row := range balances {
		h, lerr := holdingOf(row)
		if lerr != nil {
			return lerr
		}
		w.Bank.Load(h.Asset, h.Owner, row.Amount)
	}

	var kvs []model.Lastkv
	err = w.DB.Scopes(model.ByApp(w.Name)).Find(&kvs).Error
	if err != nil {
		return
	}
	for _, kv := range kvs {
		if kv.Key == model.LASTKV_K_NATS_SEQ && uint64(kv.Val) > w.LatestMsgSeq {
			w.LatestMsgSeq = uint64(kv.Val)
		}
	}
	return
}

func holdingOf(row model.Balance) (h bank.Holding, err error) {
	if h.Asset, err = ledger.ParseAddress(row.Asset); err != nil {
		return
	}
	h.Owner, err = ledger.ParseAddress(row.Owner)
	return
}
