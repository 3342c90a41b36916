package donation

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"paytoreply/core/events"
	"paytoreply/core/types"
)

var (
	errNilState = errors.New("donation engine: state not configured")

	ErrInvalidAmount     = errors.New("donation: amount must be positive")
	ErrInsufficientFunds = errors.New("donation: insufficient funds")
)

// EventTypeDonationProcessed is emitted for every completed donation.
const EventTypeDonationProcessed = "donation.processed"

type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type donationEvent struct {
	evt *types.Event
}

func (e donationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e donationEvent) Event() *types.Event { return e.evt }

// Engine performs unconditional donor-to-donation-address transfers.
// No record is retained; the audit trail is the log line and the
// emitted event.
type Engine struct {
	state   engineState
	emitter events.Emitter
	logger  *slog.Logger
}

// NewEngine creates a donation engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the logger used for audit lines.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
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

// Donate debits amount from the donor and credits it to the donation
// address. The donor identity must be the authenticated caller.
func (e *Engine) Donate(donor, donationAddress [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	donorAcc, err := e.state.GetAccount(donor[:])
	if err != nil {
		return err
	}
	donorAcc = ensureAccount(donorAcc)
	if donorAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, donorAcc.Balance)
	}
	if donor == donationAddress {
		// Debit and credit land on the same account and net to zero.
		// Loading the account twice would stage the credit over the
		// debit, so the transfer is skipped outright.
		e.audit(donor, donationAddress, amount)
		return nil
	}
	destAcc, err := e.state.GetAccount(donationAddress[:])
	if err != nil {
		return err
	}
	destAcc = ensureAccount(destAcc)

	donorAcc.Balance = new(big.Int).Sub(donorAcc.Balance, amount)
	destAcc.Balance = new(big.Int).Add(destAcc.Balance, amount)

	if err := e.state.PutAccount(donor[:], donorAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(donationAddress[:], destAcc); err != nil {
		return err
	}

	e.audit(donor, donationAddress, amount)
	return nil
}

func (e *Engine) audit(donor, donationAddress [32]byte, amount *big.Int) {
	e.logger.Info("donation processed",
		slog.String("amount", amount.String()),
		slog.String("donor", hex.EncodeToString(donor[:])),
		slog.String("donationAddress", hex.EncodeToString(donationAddress[:])),
	)
	e.emit(&types.Event{Type: EventTypeDonationProcessed, Attributes: map[string]string{
		"donor":           hex.EncodeToString(donor[:]),
		"donationAddress": hex.EncodeToString(donationAddress[:]),
		"amount":          amount.String(),
	}})
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(donationEvent{evt: event})
}
