package escrow

import (
	"errors"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	rec := &Record{
		Sender:      testAddr(0x11),
		Recipient:   testAddr(0x22),
		Amount:      123456789,
		MessageID:   "msg-2024-000042",
		Status:      StatusPending,
		CreatedAt:   1700000000,
		ProcessedAt: 0,
	}
	encoded, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(encoded) != EncodedRecordSize {
		t.Fatalf("encoded size = %d, want %d", len(encoded), EncodedRecordSize)
	}
	decoded, err := DecodeRecord(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *rec {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, rec)
	}
}

func TestRecordEncodingIsFixedSize(t *testing.T) {
	short := &Record{Sender: testAddr(0x01), Recipient: testAddr(0x02), MessageID: "abcd", Status: StatusApproved, ProcessedAt: 5}
	long := &Record{Sender: testAddr(0x01), Recipient: testAddr(0x02), MessageID: "01234567890123456789012345678901234567890123456789", Status: StatusRejected}

	shortEnc, err := EncodeRecord(short)
	if err != nil {
		t.Fatalf("encode short: %v", err)
	}
	longEnc, err := EncodeRecord(long)
	if err != nil {
		t.Fatalf("encode long: %v", err)
	}
	if len(shortEnc) != len(longEnc) {
		t.Fatalf("encoding is not fixed-size: %d vs %d", len(shortEnc), len(longEnc))
	}
}

func TestDecodeRejectsCorruptRecords(t *testing.T) {
	rec := &Record{Sender: testAddr(0x01), Recipient: testAddr(0x02), MessageID: "abcd", Status: StatusPending}
	encoded, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	truncated := encoded[:len(encoded)-1]
	if _, err := DecodeRecord(truncated); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("truncated record accepted: %v", err)
	}

	badTag := append([]byte(nil), encoded...)
	badTag[0] ^= 0xFF
	if _, err := DecodeRecord(badTag); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad tag accepted: %v", err)
	}

	badStatus := append([]byte(nil), encoded...)
	badStatus[8+32+32+8+4+MaxMessageIDLength] = 0x7F
	if _, err := DecodeRecord(badStatus); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad status accepted: %v", err)
	}
}

func TestDeriveAddressUsesPrefixOnly(t *testing.T) {
	a, err := DeriveAddress("abcd-one")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveAddress("abcd-two")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a != b {
		t.Fatalf("identifiers sharing a prefix must collide")
	}
	c, err := DeriveAddress("wxyz-one")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a == c {
		t.Fatalf("distinct prefixes must not collide")
	}
}

func TestDeriveAddressRejectsShortID(t *testing.T) {
	if _, err := DeriveAddress("abc"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
