package model_test

import (
	"os"
	"strconv"
	"testing"

	"vmledger/pkg/config"
	"vmledger/pkg/ledger"
	"vmledger/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	authority = ledger.DeriveAddress([]byte("authority"))
	asset     = ledger.DeriveAddress([]byte("asset"))
	buyer     = ledger.DeriveAddress([]byte("buyer"))
)

func TestMachineRow(t *testing.T) {
	m := ledger.Machine{
		Authority:        authority,
		Asset:            asset,
		SupplyStock:      970,
		TicketAllocation: 70,
		TicketsSold:      1,
		PPA:              10,
		PPT:              5,
		Ready:            true,
		PresaleEnd:       1700000000,
	}

	row := model.MachineFromLedger(m, 42)
	assert.Equal(t, m.ID().String(), row.Key)
	assert.Equal(t, int64(42), row.LogID)

	back, err := row.Ledger()
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestMachineRowKeyMismatch(t *testing.T) {
	row := model.MachineFromLedger(ledger.Machine{Authority: authority, Asset: asset}, 1)
	row.Asset = buyer.String()

	_, err := row.Ledger()
	assert.ErrorIs(t, err, model.ErrKeyMismatch)

	row.Authority = "zz"
	_, err = row.Ledger()
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
}

func TestTicketRow(t *testing.T) {
	tk := ledger.Ticket{
		ID:      uuid.New(),
		Machine: ledger.DeriveMachineID(authority, asset),
		Buyer:   buyer,
		Unspent: 20,
		Spent:   30,
	}

	row := model.TicketFromLedger(tk, 7)
	back, err := row.Ledger()
	require.NoError(t, err)
	assert.Equal(t, tk, back)

	row.UUID = "not-a-uuid"
	_, err = row.Ledger()
	assert.Error(t, err)
}

// TestMigrate needs a local mysql, set VMLEDGER_MYSQL_TEST=1 to run it.
func TestMigrate(t *testing.T) {
	if ok, _ := strconv.ParseBool(os.Getenv("VMLEDGER_MYSQL_TEST")); !ok {
		t.Skip("VMLEDGER_MYSQL_TEST not set")
	}

	cfg := config.Default().MySQL.Main
	cfg.User = os.Getenv("VMLEDGER_MYSQL_USER")
	cfg.Pass = os.Getenv("VMLEDGER_MYSQL_PASS")

	db, err := model.ConnectMySQL("test", cfg, true)
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))

	for _, table := range model.All() {
		assert.True(t, db.Migrator().HasTable(table))
	}
}
