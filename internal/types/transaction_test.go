package types

import (
	"crypto/ed25519"
	"testing"
)

func TestTransactionRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var sender [32]byte
	copy(sender[:], pub)

	tx, err := NewTransaction(priv, sender, 123, 456, TagNoOp, []byte("hello world"))
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}

	wire := EncodeTransaction(tx)
	decoded, n, err := DecodeTransaction(wire)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if n != len(wire) {
		t.Errorf("consumed %d of %d bytes", n, len(wire))
	}

	if decoded.Sender != tx.Sender {
		t.Errorf("sender mismatch")
	}
	if decoded.Signature != tx.Signature {
		t.Errorf("signature mismatch")
	}
	if decoded.SenderNonce != tx.SenderNonce {
		t.Errorf("nonce mismatch")
	}
	if decoded.CreatedAt != tx.CreatedAt {
		t.Errorf("created_at mismatch")
	}
	if decoded.Tag != tx.Tag {
		t.Errorf("tag mismatch")
	}
	if string(decoded.Data) != string(tx.Data) {
		t.Errorf("data mismatch")
	}
	if decoded.ID != tx.ID {
		t.Errorf("id mismatch: %x != %x", decoded.ID, tx.ID)
	}
	if !decoded.VerifySignature() {
		t.Errorf("decoded signature does not verify")
	}
}

func TestTransactionTooLarge(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	var sender [32]byte
	data := make([]byte, MaxTransactionData+1)
	if _, err := NewTransaction(priv, sender, 0, 0, TagNoOp, data); err == nil {
		t.Fatal("expected TransactionTooLarge error")
	}
}

func TestDecodeTransactionUnknownTag(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	var sender [32]byte
	copy(sender[:], pub)
	tx, err := NewTransaction(priv, sender, 1, 2, TagNoOp, nil)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	wire := EncodeTransaction(tx)
	wire[len(wire)-1-0] = wire[len(wire)-1-0] // no-op, data empty so tag is last header byte before data
	tagOffset := senderSize + signatureSize + 4 + 8 + 8
	wire[tagOffset] = 0x7F
	if _, _, err := DecodeTransaction(wire); err == nil {
		t.Fatal("expected UnknownTag error")
	}
}

func TestDecodeTransactionTruncated(t *testing.T) {
	if _, _, err := DecodeTransaction([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected EndOfStream error")
	}
}

func TestSignatureRejectedOnTamper(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	var sender [32]byte
	copy(sender[:], pub)
	tx, err := NewTransaction(priv, sender, 1, 2, TagNoOp, []byte("x"))
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	tx.Signature[0] ^= 0xFF
	if tx.VerifySignature() {
		t.Fatal("tampered signature should not verify")
	}
}
