package state

import (
	"errors"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"paytoreply/core/types"
	"paytoreply/native/escrow"
	"paytoreply/storage"
)

var (
	accountPrefix = []byte("account:")
	escrowPrefix  = []byte("escrow:")
)

// Storage reserve schedule: every persisted object must keep a minimum
// balance proportional to the bytes it occupies, plus a flat overhead
// for the account metadata itself. The reserve is not payable to any
// party while the object exists.
const (
	reserveOverheadBytes = 128
	reservePerByte       = 6960
)

// Manager wraps a key-value store with a staged write overlay. Reads
// fall through to the backing store; writes stay in memory until Commit
// flushes them or Discard drops them. One operation runs against one
// overlay, which gives every operation the all-or-nothing contract the
// engines rely on: a failed operation leaves every touched account
// exactly as it was.
type Manager struct {
	db    storage.Database
	dirty map[string][]byte
}

// NewManager creates a state manager operating on the provided store.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func escrowKey(id [32]byte) []byte {
	buf := make([]byte, len(escrowPrefix)+len(id))
	copy(buf, escrowPrefix)
	copy(buf[len(escrowPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if staged, ok := m.dirty[string(key)]; ok {
		return staged, nil
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) put(key, value []byte) {
	m.dirty[string(key)] = value
}

// Commit flushes every staged write to the backing store and clears the
// overlay. Keys are written in a deterministic order.
func (m *Manager) Commit() error {
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.db.Put([]byte(k), m.dirty[k]); err != nil {
			return err
		}
	}
	m.dirty = make(map[string][]byte)
	return nil
}

// Discard drops every staged write, restoring the view of the backing
// store.
func (m *Manager) Discard() {
	m.dirty = make(map[string][]byte)
}

// storedAccount is the RLP representation of an account.
type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads the account at addr, returning a zero-balance
// account when none exists yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	acc := &types.Account{Nonce: stored.Nonce, Balance: stored.Balance}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

// PutAccount stages the account at addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		account = &types.Account{Balance: big.NewInt(0)}
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: balance})
	if err != nil {
		return err
	}
	m.put(accountKey(addr), encoded)
	return nil
}

// EscrowGet loads the escrow record stored at id.
func (m *Manager) EscrowGet(id [32]byte) (*escrow.Record, bool, error) {
	data, err := m.get(escrowKey(id))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	rec, err := escrow.DecodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// EscrowPut stages the escrow record at id.
func (m *Manager) EscrowPut(id [32]byte, rec *escrow.Record) error {
	encoded, err := escrow.EncodeRecord(rec)
	if err != nil {
		return err
	}
	m.put(escrowKey(id), encoded)
	return nil
}

// Reserve returns the minimum balance an account persisting dataLen
// bytes must retain.
func (m *Manager) Reserve(dataLen int) *big.Int {
	if dataLen < 0 {
		dataLen = 0
	}
	size := new(big.Int).SetInt64(int64(reserveOverheadBytes + dataLen))
	return size.Mul(size, big.NewInt(reservePerByte))
}
