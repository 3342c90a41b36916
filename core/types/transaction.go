package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeCreateEscrow  TxType = 0x01 // Fund an escrow tied to a message
	TxTypeApproveEscrow TxType = 0x02 // Recipient releases escrowed funds to themselves
	TxTypeRejectEscrow  TxType = 0x03 // Recipient returns escrowed funds to the sender
	TxTypeDonate        TxType = 0x04 // Unconditional transfer to the donation address
)

// Valid reports whether the transaction type is one the processor knows.
func (t TxType) Valid() bool {
	switch t {
	case TxTypeCreateEscrow, TxTypeApproveEscrow, TxTypeRejectEscrow, TxTypeDonate:
		return true
	default:
		return false
	}
}

// Transaction is the signed envelope submitted for every ledger
// operation. Value carries the amount for create/donate; Data carries
// the operation payload (recipient, message id, escrow id) as JSON.
type Transaction struct {
	Type  TxType   `json:"type"`
	Nonce uint64   `json:"nonce"`
	To    []byte   `json:"to,omitempty"`
	Value *big.Int `json:"value"`
	Data  []byte   `json:"data,omitempty"`

	// Sender's signature
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

var errUnsignedTransaction = errors.New("transaction is not signed")

// Hash covers every field the signature commits to.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		Type  TxType
		Nonce uint64
		To    []byte
		Value *big.Int
		Data  []byte
	}{tx.Type, tx.Nonce, tx.To, tx.Value, tx.Data}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

// Sign attaches the sender's secp256k1 signature to the transaction.
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	return nil
}

// From recovers the 32-byte account identity of the signer. Possession
// of a valid signature is the ledger's proof of signing authority over
// that identity.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return nil, errUnsignedTransaction
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(tx.R.Bytes()):32], tx.R.Bytes())
	copy(sig[64-len(tx.S.Bytes()):64], tx.S.Bytes())
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	raw := crypto.FromECDSAPub(pubKey)
	tx.from = crypto.Keccak256(raw[1:])
	return tx.from, nil
}
