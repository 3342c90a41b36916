package escrow

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// The persisted record layout is fixed-size and pre-allocated:
//
//	 8  record type tag
//	32  sender
//	32  recipient
//	 8  nominal amount (uint64)
//	 4  message id length prefix (uint32)
//	50  message id bytes, zero padded
//	 1  status
//	 8  created at (int64, seconds)
//	 8  processed at (int64, seconds; zero until terminal)
//
// Integers are little-endian. The encoded size never varies, so the
// storage reserve for a record account is a constant.
const EncodedRecordSize = 8 + 32 + 32 + 8 + 4 + MaxMessageIDLength + 1 + 8 + 8

// recordTag identifies the record type in storage. It is the first
// eight bytes of sha256("record:MessageEscrow").
var recordTag = func() [8]byte {
	digest := sha256.Sum256([]byte("record:MessageEscrow"))
	var tag [8]byte
	copy(tag[:], digest[:8])
	return tag
}()

// EncodeRecord serialises the record into its fixed storage layout.
func EncodeRecord(r *Record) ([]byte, error) {
	sanitized, err := SanitizeRecord(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, EncodedRecordSize)
	off := 0
	copy(buf[off:], recordTag[:])
	off += 8
	copy(buf[off:], sanitized.Sender[:])
	off += 32
	copy(buf[off:], sanitized.Recipient[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], sanitized.Amount)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(sanitized.MessageID)))
	off += 4
	copy(buf[off:], sanitized.MessageID)
	off += MaxMessageIDLength
	buf[off] = byte(sanitized.Status)
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(sanitized.CreatedAt))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(sanitized.ProcessedAt))
	return buf, nil
}

// DecodeRecord parses a record from its fixed storage layout.
func DecodeRecord(data []byte) (*Record, error) {
	if len(data) != EncodedRecordSize {
		return nil, fmt.Errorf("%w: record must be %d bytes, got %d", ErrInvalidInput, EncodedRecordSize, len(data))
	}
	off := 0
	var tag [8]byte
	copy(tag[:], data[off:])
	if tag != recordTag {
		return nil, fmt.Errorf("%w: unknown record tag", ErrInvalidInput)
	}
	off += 8
	rec := &Record{}
	copy(rec.Sender[:], data[off:])
	off += 32
	copy(rec.Recipient[:], data[off:])
	off += 32
	rec.Amount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	idLen := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if idLen > MaxMessageIDLength {
		return nil, fmt.Errorf("%w: message id length %d out of range", ErrInvalidInput, idLen)
	}
	rec.MessageID = string(data[off : off+int(idLen)])
	off += MaxMessageIDLength
	rec.Status = Status(data[off])
	off++
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrInvalidInput, data[off-1])
	}
	rec.CreatedAt = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	rec.ProcessedAt = int64(binary.LittleEndian.Uint64(data[off:]))
	return rec, nil
}
