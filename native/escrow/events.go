package escrow

import (
	"encoding/hex"
	"strconv"

	"paytoreply/core/types"
)

const (
	EventTypeEscrowCreated  = "escrow.created"
	EventTypeEscrowApproved = "escrow.approved"
	EventTypeEscrowRejected = "escrow.rejected"
)

// NewCreatedEvent returns the canonical event payload for a newly
// created message payment escrow.
func NewCreatedEvent(id [32]byte, r *Record) *types.Event {
	return newEscrowEvent(EventTypeEscrowCreated, id, r)
}

// NewApprovedEvent returns the canonical event payload emitted when the
// recipient accepts the payment.
func NewApprovedEvent(id [32]byte, r *Record) *types.Event {
	return newEscrowEvent(EventTypeEscrowApproved, id, r)
}

// NewRejectedEvent returns the canonical event payload emitted when the
// recipient declines the payment.
func NewRejectedEvent(id [32]byte, r *Record) *types.Event {
	return newEscrowEvent(EventTypeEscrowRejected, id, r)
}

func newEscrowEvent(eventType string, id [32]byte, r *Record) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(id[:])
	attrs["sender"] = hex.EncodeToString(r.Sender[:])
	attrs["recipient"] = hex.EncodeToString(r.Recipient[:])
	attrs["amount"] = strconv.FormatUint(r.Amount, 10)
	attrs["messageId"] = r.MessageID
	attrs["status"] = r.Status.String()
	attrs["createdAt"] = strconv.FormatInt(r.CreatedAt, 10)
	if r.ProcessedAt != 0 {
		attrs["processedAt"] = strconv.FormatInt(r.ProcessedAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
