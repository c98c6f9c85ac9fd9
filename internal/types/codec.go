package types

import (
	"encoding/binary"

	"lukechampine.com/blake3"

	"github.com/bermi/rheia/internal/chainerr"
)

// serialize returns tx's canonical little-endian packed wire form:
// sender(32) || signature(64) || data_len:u32 || sender_nonce:u64 ||
// created_at:u64 || tag:u8 || data(data_len).
func (tx *Transaction) serialize() []byte {
	buf := make([]byte, 0, tx.Size())
	buf = append(buf, tx.Sender[:]...)
	buf = append(buf, tx.Signature[:]...)
	buf = appendU32(buf, uint32(len(tx.Data)))
	buf = appendU64(buf, tx.SenderNonce)
	buf = appendU64(buf, tx.CreatedAt)
	buf = append(buf, byte(tx.Tag))
	buf = append(buf, tx.Data...)
	return buf
}

// EncodeTransaction writes tx's canonical wire form.
func EncodeTransaction(tx *Transaction) []byte {
	return tx.serialize()
}

// DecodeTransaction parses one Transaction from the front of b, returning
// the transaction and the number of bytes consumed. The id is always
// recomputed from the parsed fields, never taken from the wire.
func DecodeTransaction(b []byte) (*Transaction, int, error) {
	const headerSize = senderSize + signatureSize + 4 + 8 + 8 + 1
	if len(b) < headerSize {
		return nil, 0, chainerr.ErrEndOfStream
	}

	var tx Transaction
	off := 0
	copy(tx.Sender[:], b[off:off+senderSize])
	off += senderSize
	copy(tx.Signature[:], b[off:off+signatureSize])
	off += signatureSize

	dataLen := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	if dataLen > MaxTransactionData {
		return nil, 0, chainerr.ErrTransactionTooLarge
	}

	tx.SenderNonce = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	tx.CreatedAt = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	tag := b[off]
	off++
	if tag != byte(TagNoOp) {
		return nil, 0, chainerr.ErrUnknownTag
	}
	tx.Tag = Tag(tag)

	if len(b)-off < int(dataLen) {
		return nil, 0, chainerr.ErrEndOfStream
	}
	tx.Data = append([]byte(nil), b[off:off+int(dataLen)]...)
	off += int(dataLen)

	tx.refs = 1
	tx.ID = blake3.Sum256(tx.serialize())
	return &tx, off, nil
}
