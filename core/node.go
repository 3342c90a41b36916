package core

import (
	"log/slog"
	"math/big"
	"sync"

	"paytoreply/core/events"
	"paytoreply/core/state"
	"paytoreply/core/types"
	"paytoreply/native/donation"
	"paytoreply/native/escrow"
	"paytoreply/storage"
)

// genesisMarkerKey flags a store whose genesis allocation has been
// applied. Written once, never removed.
var genesisMarkerKey = []byte("paytoreply:genesis-applied")

// NodeConfig carries the bootstrap parameters for a ledger node.
type NodeConfig struct {
	// DonationAddress is the fixed-role identity donations must target.
	// A zero value disables the restriction.
	DonationAddress [32]byte
	// GenesisAlloc seeds account balances the first time the backing
	// store is used.
	GenesisAlloc map[[32]byte]*big.Int
	Logger       *slog.Logger
}

// Node owns the storage, state overlay, engines and processor, and
// serializes operation execution. The mutex is the host-level
// serialization from the execution contract: operations never observe
// each other's partial effects.
type Node struct {
	mu sync.Mutex

	db        storage.Database
	manager   *state.Manager
	processor *StateProcessor
	recorder  *events.Recorder

	donationAddress [32]byte
}

// NewNode assembles a ledger node on top of the provided database and
// applies the genesis allocation if the store has never seen one.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manager := state.NewManager(db)
	recorder := events.NewRecorder(0)

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetEmitter(recorder)
	escrowEngine.SetLogger(logger)

	donationEngine := donation.NewEngine()
	donationEngine.SetEmitter(recorder)
	donationEngine.SetLogger(logger)

	processor := NewStateProcessor(manager, escrowEngine, donationEngine)
	processor.SetDonationAddress(cfg.DonationAddress)
	processor.SetLogger(logger)

	node := &Node{
		db:              db,
		manager:         manager,
		processor:       processor,
		recorder:        recorder,
		donationAddress: cfg.DonationAddress,
	}
	if err := node.applyGenesis(cfg.GenesisAlloc); err != nil {
		return nil, err
	}
	return node, nil
}

func (n *Node) applyGenesis(alloc map[[32]byte]*big.Int) error {
	if len(alloc) == 0 {
		return nil
	}
	applied, err := n.db.Has(genesisMarkerKey)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for addr, balance := range alloc {
		account, err := n.manager.GetAccount(addr[:])
		if err != nil {
			n.manager.Discard()
			return err
		}
		if balance != nil {
			account.Balance = new(big.Int).Set(balance)
		}
		if err := n.manager.PutAccount(addr[:], account); err != nil {
			n.manager.Discard()
			return err
		}
	}
	if err := n.manager.Commit(); err != nil {
		n.manager.Discard()
		return err
	}
	return n.db.Put(genesisMarkerKey, []byte{1})
}

// SubmitTransaction executes one signed operation to completion.
func (n *Node) SubmitTransaction(tx *types.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.processor.Apply(tx)
}

// GetAccount returns a copy of the account stored at addr.
func (n *Node) GetAccount(addr []byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.manager.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// GetEscrow returns the escrow record stored at id.
func (n *Node) GetEscrow(id [32]byte) (*escrow.Record, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manager.EscrowGet(id)
}

// Events returns the recent events retained by the node.
func (n *Node) Events() []events.Event {
	return n.recorder.Events()
}

// DonationAddress returns the fixed-role donation identity, or the zero
// value when donations are unrestricted.
func (n *Node) DonationAddress() [32]byte {
	return n.donationAddress
}
