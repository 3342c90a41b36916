package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"paytoreply/core"
	"paytoreply/core/types"
	"paytoreply/crypto"
	"paytoreply/native/donation"
	"paytoreply/native/escrow"
)

type escrowGetParams struct {
	ID        string `json:"id,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

type balanceGetParams struct {
	Address string `json:"address"`
}

type escrowJSON struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Amount      uint64 `json:"amount"`
	MessageID   string `json:"messageId"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	ProcessedAt int64  `json:"processedAt,omitempty"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type txSendResult struct {
	Status string `json:"status"`
}

func (s *Server) handleTxSend(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "exactly one transaction object expected")
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SubmitTransaction(&tx); err != nil {
		status, code, message := classifyError(err)
		writeError(w, status, req.ID, code, message, err.Error())
		return
	}
	writeResult(w, req.ID, txSendResult{Status: "applied"})
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params escrowGetParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var id [32]byte
	switch {
	case strings.TrimSpace(params.MessageID) != "":
		derived, err := escrow.DeriveAddress(params.MessageID)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		id = derived
	case strings.TrimSpace(params.ID) != "":
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(params.ID), "0x"))
		if err != nil || len(raw) != 32 {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "id must be 32 hex bytes")
			return
		}
		copy(id[:], raw)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "id or messageId required")
		return
	}

	rec, ok, err := s.node.GetEscrow(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", "no escrow at address")
		return
	}
	writeResult(w, req.ID, escrowToJSON(id, rec))
}

func (s *Server) handleBalanceGet(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params balanceGetParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(params.Address))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr.Bytes())
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
		return
	}
	writeResult(w, req.ID, balanceJSON{
		Address: addr.String(),
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleDonationAddress(w http.ResponseWriter, req *RPCRequest) {
	addr := s.node.DonationAddress()
	if addr == ([32]byte{}) {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", "no donation address configured")
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": crypto.NewAddress(crypto.PayPrefix, addr[:]).String(),
	})
}

// typedEvent is implemented by every engine event wrapper; it exposes
// the canonical payload recorded for subscribers.
type typedEvent interface {
	Event() *types.Event
}

func (s *Server) handleEventsGet(w http.ResponseWriter, req *RPCRequest) {
	recorded := s.node.Events()
	out := make([]*types.Event, 0, len(recorded))
	for _, evt := range recorded {
		typed, ok := evt.(typedEvent)
		if !ok {
			continue
		}
		out = append(out, typed.Event())
	}
	writeResult(w, req.ID, out)
}

func escrowToJSON(id [32]byte, rec *escrow.Record) escrowJSON {
	return escrowJSON{
		ID:          hex.EncodeToString(id[:]),
		Sender:      crypto.NewAddress(crypto.PayPrefix, rec.Sender[:]).String(),
		Recipient:   crypto.NewAddress(crypto.PayPrefix, rec.Recipient[:]).String(),
		Amount:      rec.Amount,
		MessageID:   rec.MessageID,
		Status:      rec.Status.String(),
		CreatedAt:   rec.CreatedAt,
		ProcessedAt: rec.ProcessedAt,
	}
}

func classifyError(err error) (int, int, string) {
	switch {
	case errors.Is(err, escrow.ErrInvalidInput), errors.Is(err, core.ErrInvalidNonce),
		errors.Is(err, core.ErrUnknownTransactionType), errors.Is(err, donation.ErrInvalidAmount):
		return http.StatusBadRequest, codeInvalidParams, "invalid_params"
	case errors.Is(err, escrow.ErrNotFound):
		return http.StatusNotFound, codeEscrowNotFound, "not_found"
	case errors.Is(err, escrow.ErrInvalidRecipient), errors.Is(err, escrow.ErrInvalidSender),
		errors.Is(err, core.ErrInvalidDonationAddress):
		return http.StatusForbidden, codeEscrowForbidden, "forbidden"
	case errors.Is(err, escrow.ErrDuplicateEscrow):
		return http.StatusConflict, codeEscrowConflict, "conflict"
	case errors.Is(err, escrow.ErrInvalidEscrowStatus):
		return http.StatusConflict, codeInvalidEscrowStatus, "invalid_status"
	case errors.Is(err, escrow.ErrInsufficientFunds), errors.Is(err, donation.ErrInsufficientFunds):
		return http.StatusConflict, codeInsufficientFunds, "insufficient_funds"
	default:
		return http.StatusInternalServerError, codeServerError, "server_error"
	}
}
