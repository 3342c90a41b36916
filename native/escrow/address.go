package escrow

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// addressNamespace is the constant tag mixed into every record address.
const addressNamespace = "msg"

// DeriveAddress computes the storage address of the escrow record for a
// message identifier: keccak256 over the namespace tag and the first
// four bytes of the id. Any client can reproduce the address without a
// separate index. Distinct identifiers sharing a four-byte prefix map
// to the same address, so creation collides for them; callers observe
// that as ErrDuplicateEscrow.
func DeriveAddress(messageID string) ([32]byte, error) {
	var addr [32]byte
	if err := ValidateMessageID(messageID); err != nil {
		return addr, err
	}
	seed := messageID[:AddressSeedLength]
	digest := ethcrypto.Keccak256([]byte(addressNamespace), []byte(seed))
	copy(addr[:], digest)
	return addr, nil
}
