package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"paytoreply/core/types"
	"paytoreply/native/escrow"
	"paytoreply/storage"
)

func testID(fill byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = fill
	}
	return id
}

func TestAccountRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	addr := testID(0x01)
	account := &types.Account{Nonce: 7, Balance: big.NewInt(123456)}
	require.NoError(t, manager.PutAccount(addr[:], account))
	require.NoError(t, manager.Commit())

	fresh := NewManager(db)
	loaded, err := fresh.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, uint64(7), loaded.Nonce)
	require.Zero(t, loaded.Balance.Cmp(big.NewInt(123456)))
}

func TestGetAccountDefaultsToZero(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	addr := testID(0x02)
	account, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, account.Nonce)
	require.Zero(t, account.Balance.Sign())
}

func TestStagedWritesVisibleBeforeCommit(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	addr := testID(0x03)
	require.NoError(t, manager.PutAccount(addr[:], &types.Account{Balance: big.NewInt(42)}))

	// The same overlay sees the staged write.
	staged, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, staged.Balance.Cmp(big.NewInt(42)))

	// The backing store does not, until Commit.
	other := NewManager(db)
	unstaged, err := other.GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, unstaged.Balance.Sign())
}

func TestDiscardDropsStagedWrites(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	addr := testID(0x04)
	require.NoError(t, manager.PutAccount(addr[:], &types.Account{Balance: big.NewInt(99)}))
	manager.Discard()
	require.NoError(t, manager.Commit())

	loaded, err := NewManager(db).GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, loaded.Balance.Sign())
}

func TestEscrowRecordRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	id := testID(0x05)
	rec := &escrow.Record{
		Sender:    testID(0x0A),
		Recipient: testID(0x0B),
		Amount:    500,
		MessageID: "abc123",
		Status:    escrow.StatusPending,
		CreatedAt: 1700000000,
	}
	require.NoError(t, manager.EscrowPut(id, rec))

	staged, ok, err := manager.EscrowGet(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.MessageID, staged.MessageID)

	require.NoError(t, manager.Commit())
	loaded, ok, err := NewManager(db).EscrowGet(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, *rec, *loaded)

	_, ok, err = manager.EscrowGet(testID(0x06))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReserveSchedule(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	want := big.NewInt((reserveOverheadBytes + escrow.EncodedRecordSize) * reservePerByte)
	require.Zero(t, manager.Reserve(escrow.EncodedRecordSize).Cmp(want))

	// The reserve never shrinks below the flat overhead.
	floor := big.NewInt(reserveOverheadBytes * reservePerByte)
	require.Zero(t, manager.Reserve(0).Cmp(floor))
	require.Zero(t, manager.Reserve(-5).Cmp(floor))
}
