package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"paytoreply/core/state"
	"paytoreply/core/types"
	"paytoreply/crypto"
	"paytoreply/native/donation"
	"paytoreply/native/escrow"
	"paytoreply/observability/metrics"
)

var (
	ErrInvalidNonce           = errors.New("core: invalid transaction nonce")
	ErrUnknownTransactionType = errors.New("core: unknown transaction type")
	ErrInvalidDonationAddress = errors.New("core: donation must target the configured donation address")
)

// createEscrowPayload is the JSON operation payload for TxTypeCreateEscrow.
// The amount rides in the transaction Value field.
type createEscrowPayload struct {
	Recipient []byte `json:"recipient"`
	MessageID string `json:"messageId"`
}

// settleEscrowPayload is the JSON operation payload for the approve and
// reject transitions. The sender identity is carried alongside the
// record id so the engine can cross-check it against the stored record.
type settleEscrowPayload struct {
	ID     []byte `json:"id"`
	Sender []byte `json:"sender"`
}

// StateProcessor executes one signed operation at a time against the
// staged state overlay. Each Apply either commits every touched account
// and record or discards the overlay whole; no partial effect survives
// a failed precondition.
type StateProcessor struct {
	manager         *state.Manager
	escrowEngine    *escrow.Engine
	donationEngine  *donation.Engine
	donationAddress [32]byte
	logger          *slog.Logger
}

// NewStateProcessor wires the engines to the shared state overlay.
func NewStateProcessor(manager *state.Manager, escrowEngine *escrow.Engine, donationEngine *donation.Engine) *StateProcessor {
	escrowEngine.SetState(manager)
	donationEngine.SetState(manager)
	return &StateProcessor{
		manager:        manager,
		escrowEngine:   escrowEngine,
		donationEngine: donationEngine,
		logger:         slog.Default(),
	}
}

// SetDonationAddress fixes the only identity donations may target.
func (sp *StateProcessor) SetDonationAddress(addr [32]byte) {
	sp.donationAddress = addr
}

// SetLogger overrides the processor's logger.
func (sp *StateProcessor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		sp.logger = slog.Default()
		return
	}
	sp.logger = logger
}

// Apply verifies the transaction signature and nonce, dispatches the
// operation to the owning engine and commits or discards the whole
// overlay. The recovered signer is the caller identity every
// authorization check runs against.
func (sp *StateProcessor) Apply(tx *types.Transaction) error {
	op := opLabel(tx)
	if err := sp.apply(tx); err != nil {
		sp.manager.Discard()
		metrics.Ledger().ObserveOp(op, "error")
		return err
	}
	if err := sp.manager.Commit(); err != nil {
		sp.manager.Discard()
		metrics.Ledger().ObserveOp(op, "error")
		return err
	}
	metrics.Ledger().ObserveOp(op, "ok")
	return nil
}

func (sp *StateProcessor) apply(tx *types.Transaction) error {
	if tx == nil {
		return fmt.Errorf("core: nil transaction")
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownTransactionType, tx.Type)
	}
	fromBytes, err := tx.From()
	if err != nil {
		return fmt.Errorf("core: signature recovery failed: %w", err)
	}
	var from [32]byte
	copy(from[:], fromBytes)

	caller, err := sp.manager.GetAccount(from[:])
	if err != nil {
		return err
	}
	if tx.Nonce != caller.Nonce {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidNonce, tx.Nonce, caller.Nonce)
	}
	caller.Nonce++
	if err := sp.manager.PutAccount(from[:], caller); err != nil {
		return err
	}

	switch tx.Type {
	case types.TxTypeCreateEscrow:
		return sp.applyCreateEscrow(tx, from)
	case types.TxTypeApproveEscrow:
		return sp.applySettleEscrow(tx, from, escrow.StatusApproved)
	case types.TxTypeRejectEscrow:
		return sp.applySettleEscrow(tx, from, escrow.StatusRejected)
	case types.TxTypeDonate:
		return sp.applyDonate(tx, from)
	}
	return fmt.Errorf("%w: %d", ErrUnknownTransactionType, tx.Type)
}

func (sp *StateProcessor) applyCreateEscrow(tx *types.Transaction, from [32]byte) error {
	var payload createEscrowPayload
	if err := json.Unmarshal(tx.Data, &payload); err != nil {
		return fmt.Errorf("%w: %v", escrow.ErrInvalidInput, err)
	}
	if len(payload.Recipient) != crypto.AddressLength {
		return fmt.Errorf("%w: recipient must be %d bytes", escrow.ErrInvalidInput, crypto.AddressLength)
	}
	if tx.Value == nil || tx.Value.Sign() <= 0 || !tx.Value.IsUint64() {
		return fmt.Errorf("%w: amount out of range", escrow.ErrInvalidInput)
	}
	var recipient [32]byte
	copy(recipient[:], payload.Recipient)
	_, err := sp.escrowEngine.Create(from, recipient, tx.Value.Uint64(), payload.MessageID)
	return err
}

func (sp *StateProcessor) applySettleEscrow(tx *types.Transaction, from [32]byte, status escrow.Status) error {
	var payload settleEscrowPayload
	if err := json.Unmarshal(tx.Data, &payload); err != nil {
		return fmt.Errorf("%w: %v", escrow.ErrInvalidInput, err)
	}
	if len(payload.ID) != 32 {
		return fmt.Errorf("%w: escrow id must be 32 bytes", escrow.ErrInvalidInput)
	}
	if len(payload.Sender) != crypto.AddressLength {
		return fmt.Errorf("%w: sender must be %d bytes", escrow.ErrInvalidInput, crypto.AddressLength)
	}
	var id [32]byte
	copy(id[:], payload.ID)
	var sender [32]byte
	copy(sender[:], payload.Sender)
	if status == escrow.StatusApproved {
		return sp.escrowEngine.Approve(id, sender, from)
	}
	return sp.escrowEngine.Reject(id, sender, from)
}

func (sp *StateProcessor) applyDonate(tx *types.Transaction, from [32]byte) error {
	if len(tx.To) != crypto.AddressLength {
		return fmt.Errorf("%w: donation address must be %d bytes", escrow.ErrInvalidInput, crypto.AddressLength)
	}
	var to [32]byte
	copy(to[:], tx.To)
	if sp.donationAddress != ([32]byte{}) && to != sp.donationAddress {
		return ErrInvalidDonationAddress
	}
	return sp.donationEngine.Donate(from, to, tx.Value)
}

func opLabel(tx *types.Transaction) string {
	if tx == nil {
		return "unknown"
	}
	switch tx.Type {
	case types.TxTypeCreateEscrow:
		return "create_escrow"
	case types.TxTypeApproveEscrow:
		return "approve_escrow"
	case types.TxTypeRejectEscrow:
		return "reject_escrow"
	case types.TxTypeDonate:
		return "donate"
	default:
		return "unknown"
	}
}
