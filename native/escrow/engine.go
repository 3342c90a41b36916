package escrow

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"paytoreply/core/events"
	"paytoreply/core/types"
)

var errNilState = errors.New("escrow engine: state not configured")

// engineState is the contract the engine has with the transactional
// host: account and record reads/writes staged against an exclusive
// snapshot, plus the storage reserve schedule. The host commits or
// discards everything the engine touched as one unit.
type engineState interface {
	EscrowGet(id [32]byte) (*Record, bool, error)
	EscrowPut(id [32]byte, rec *Record) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Reserve(dataLen int) *big.Int
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns the escrow lifecycle: record creation, the
// pending-to-terminal transitions and the balance movements each
// transition performs. Caller identities passed in are assumed to have
// been authenticated by the host via signature recovery; the engine
// enforces that they match the identities bound into the record.
type Engine struct {
	state   engineState
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing
// nil resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the logger used for operation audit lines.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// Create allocates the escrow record for a message payment and moves
// the amount plus the record's storage reserve from the sender into the
// record's holding account. The sender identity must be the
// authenticated caller. Either the record exists with funds fully
// deposited or nothing changes.
func (e *Engine) Create(sender, recipient [32]byte, amount uint64, messageID string) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := ValidateMessageID(messageID); err != nil {
		return nil, fmt.Errorf("%w: message id must be %d-%d bytes", ErrInvalidInput, AddressSeedLength, MaxMessageIDLength)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	id, err := DeriveAddress(messageID)
	if err != nil {
		return nil, err
	}
	if _, exists, err := e.state.EscrowGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: address %x", ErrDuplicateEscrow, id)
	}

	reserve := e.state.Reserve(EncodedRecordSize)
	deposit := new(big.Int).Add(new(big.Int).SetUint64(amount), reserve)

	senderAcc, err := e.state.GetAccount(sender[:])
	if err != nil {
		return nil, err
	}
	senderAcc = ensureAccount(senderAcc)
	if senderAcc.Balance.Cmp(deposit) < 0 {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, deposit, senderAcc.Balance)
	}
	escrowAcc, err := e.state.GetAccount(id[:])
	if err != nil {
		return nil, err
	}
	escrowAcc = ensureAccount(escrowAcc)

	senderAcc.Balance = new(big.Int).Sub(senderAcc.Balance, deposit)
	escrowAcc.Balance = new(big.Int).Add(escrowAcc.Balance, deposit)

	rec := &Record{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		MessageID: messageID,
		Status:    StatusPending,
		CreatedAt: e.now(),
	}
	if err := e.state.EscrowPut(id, rec); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(sender[:], senderAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(id[:], escrowAcc); err != nil {
		return nil, err
	}

	e.logger.Info("message payment escrow created",
		slog.Uint64("amount", amount),
		slog.String("sender", hex.EncodeToString(sender[:])),
		slog.String("recipient", hex.EncodeToString(recipient[:])),
		slog.String("messageId", messageID),
	)
	e.emit(NewCreatedEvent(id, rec))
	return rec.Clone(), nil
}

// Approve settles a pending escrow in favour of the recipient. The
// recipient identity must be the authenticated caller; the supplied
// sender identity must match the one bound at creation.
func (e *Engine) Approve(id [32]byte, sender, recipient [32]byte) error {
	return e.settle(id, sender, recipient, StatusApproved)
}

// Reject settles a pending escrow by returning the funds to the sender.
// Authorization is identical to Approve: only the recipient decides,
// but the payout destination is the sender.
func (e *Engine) Reject(id [32]byte, sender, recipient [32]byte) error {
	return e.settle(id, sender, recipient, StatusRejected)
}

func (e *Engine) settle(id [32]byte, sender, recipient [32]byte, status Status) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !status.Terminal() {
		return ErrInvalidEscrowStatus
	}
	rec, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: address %x", ErrNotFound, id)
	}
	if rec.Status != StatusPending {
		return fmt.Errorf("%w: record is %s", ErrInvalidEscrowStatus, rec.Status)
	}
	if recipient != rec.Recipient {
		return ErrInvalidRecipient
	}
	if sender != rec.Sender {
		return ErrInvalidSender
	}

	// The status flips before the payout is computed so a record can
	// never settle twice.
	rec.Status = status
	rec.ProcessedAt = e.now()
	if err := e.state.EscrowPut(id, rec); err != nil {
		return err
	}

	escrowAcc, err := e.state.GetAccount(id[:])
	if err != nil {
		return err
	}
	escrowAcc = ensureAccount(escrowAcc)
	reserve := e.state.Reserve(EncodedRecordSize)
	if escrowAcc.Balance.Cmp(reserve) < 0 {
		return fmt.Errorf("%w: balance %s, reserve %s", ErrArithmeticUnderflow, escrowAcc.Balance, reserve)
	}
	// Payout is balance-derived, never read back from the nominal
	// amount field. The reserve stays behind with the record.
	payable := new(big.Int).Sub(escrowAcc.Balance, reserve)

	destination := recipient
	if status == StatusRejected {
		destination = sender
	}
	destAcc, err := e.state.GetAccount(destination[:])
	if err != nil {
		return err
	}
	destAcc = ensureAccount(destAcc)

	escrowAcc.Balance = new(big.Int).Set(reserve)
	destAcc.Balance = new(big.Int).Add(destAcc.Balance, payable)

	if err := e.state.PutAccount(id[:], escrowAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(destination[:], destAcc); err != nil {
		return err
	}

	if status == StatusApproved {
		e.logger.Info("message payment approved",
			slog.String("amount", payable.String()),
			slog.String("recipient", hex.EncodeToString(recipient[:])),
			slog.String("messageId", rec.MessageID),
		)
		e.emit(NewApprovedEvent(id, rec))
	} else {
		e.logger.Info("message payment rejected",
			slog.String("amount", payable.String()),
			slog.String("sender", hex.EncodeToString(sender[:])),
			slog.String("messageId", rec.MessageID),
		)
		e.emit(NewRejectedEvent(id, rec))
	}
	return nil
}
