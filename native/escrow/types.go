package escrow

import (
	"errors"
	"unicode/utf8"
)

// Status represents the lifecycle states of a message payment escrow.
type Status uint8

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const (
	// MaxMessageIDLength bounds the message identifier because record
	// storage is fixed-size and pre-allocated.
	MaxMessageIDLength = 50
	// AddressSeedLength is the number of leading message id bytes used
	// for record address derivation.
	AddressSeedLength = 4
)

var (
	ErrInvalidInput        = errors.New("escrow: invalid input")
	ErrDuplicateEscrow     = errors.New("escrow: record already exists")
	ErrInsufficientFunds   = errors.New("escrow: insufficient funds")
	ErrInvalidEscrowStatus = errors.New("escrow: invalid escrow status")
	ErrInvalidRecipient    = errors.New("escrow: invalid recipient")
	ErrInvalidSender       = errors.New("escrow: invalid sender")
	ErrArithmeticUnderflow = errors.New("escrow: balance below storage reserve")
	ErrNotFound            = errors.New("escrow: record not found")
)

// Record captures the parties, nominal amount and runtime status of a
// single message payment. The record's storage address doubles as the
// account holding the escrowed funds, so the Amount field is
// informational once the deposit lands: settlement always derives the
// payable amount from the live balance minus the storage reserve.
type Record struct {
	Sender      [32]byte
	Recipient   [32]byte
	Amount      uint64
	MessageID   string
	Status      Status
	CreatedAt   int64
	ProcessedAt int64
}

// Clone returns a copy of the record so callers can safely mutate it
// without affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ValidateMessageID enforces the bounds the fixed-size record layout
// and the address derivation impose on message identifiers.
func ValidateMessageID(id string) error {
	if len(id) < AddressSeedLength {
		return ErrInvalidInput
	}
	if len(id) > MaxMessageIDLength {
		return ErrInvalidInput
	}
	if !utf8.ValidString(id) {
		return ErrInvalidInput
	}
	return nil
}

// SanitizeRecord validates the supplied record and returns a clone with
// the invariants checked. The original value is not mutated.
func SanitizeRecord(r *Record) (*Record, error) {
	if r == nil {
		return nil, ErrInvalidInput
	}
	if err := ValidateMessageID(r.MessageID); err != nil {
		return nil, err
	}
	if !r.Status.Valid() {
		return nil, ErrInvalidInput
	}
	return r.Clone(), nil
}
