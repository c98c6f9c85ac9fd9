// Package types defines the node's two content-addressed wire objects,
// Transaction and Block, their canonical codec, and scoped reference
// counting.
package types

import (
	"crypto/ed25519"
	"sync/atomic"

	"lukechampine.com/blake3"

	"github.com/bermi/rheia/internal/chainerr"
)

// MaxTransactionData is the maximum length of a Transaction's data field.
const MaxTransactionData = 65536

const (
	senderSize    = 32
	signatureSize = 64
	idSize        = 32
)

// Tag enumerates a Transaction's payload kind.
type Tag uint8

// TagNoOp is currently the only recognized tag.
const TagNoOp Tag = 0

// Transaction is immutable after construction and content-addressed by
// ID. Holders share it via Ref and give it up via Release; storage is
// reclaimed when the last reference is released.
type Transaction struct {
	refs int32

	Sender      [senderSize]byte
	Signature   [signatureSize]byte
	SenderNonce uint64
	CreatedAt   uint64
	Tag         Tag
	Data        []byte
	ID          [idSize]byte
}

// NewTransaction signs and content-addresses a new Transaction. The
// returned handle carries one reference.
func NewTransaction(priv ed25519.PrivateKey, sender [senderSize]byte, senderNonce, createdAt uint64, tag Tag, data []byte) (*Transaction, error) {
	if len(data) > MaxTransactionData {
		return nil, chainerr.ErrTransactionTooLarge
	}
	owned := make([]byte, len(data))
	copy(owned, data)

	tx := &Transaction{
		refs:        1,
		Sender:      sender,
		SenderNonce: senderNonce,
		CreatedAt:   createdAt,
		Tag:         tag,
		Data:        owned,
	}
	sig := ed25519.Sign(priv, tx.signaturePayload())
	copy(tx.Signature[:], sig)
	tx.ID = blake3.Sum256(tx.serialize())
	return tx, nil
}

// signaturePayload is the suffix of the canonical serialization starting
// at sender_nonce, per the wire layout: the signature does not cover the
// sender field or itself.
func (tx *Transaction) signaturePayload() []byte {
	buf := make([]byte, 0, 8+8+1+len(tx.Data))
	buf = appendU64(buf, tx.SenderNonce)
	buf = appendU64(buf, tx.CreatedAt)
	buf = append(buf, byte(tx.Tag))
	buf = append(buf, tx.Data...)
	return buf
}

// SignaturePayload exposes the exact byte range the signature covers, for
// callers (the Verifier's batch path) that need to build their own
// message/signature/public-key slices.
func (tx *Transaction) SignaturePayload() []byte {
	return tx.signaturePayload()
}

// VerifySignature reports whether tx's signature verifies under tx.Sender.
func (tx *Transaction) VerifySignature() bool {
	return ed25519.Verify(tx.Sender[:], tx.signaturePayload(), tx.Signature[:])
}

// Ref increments the reference count and returns the same handle.
func (tx *Transaction) Ref() *Transaction {
	atomic.AddInt32(&tx.refs, 1)
	return tx
}

// Release decrements the reference count, reclaiming the backing data
// buffer when it reaches zero.
func (tx *Transaction) Release() {
	if atomic.AddInt32(&tx.refs, -1) == 0 {
		tx.Data = nil
	}
}

// Size returns the length of tx's canonical wire serialization.
func (tx *Transaction) Size() int {
	return senderSize + signatureSize + 4 + 8 + 8 + 1 + len(tx.Data)
}

func appendU64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
