package types

import (
	"encoding/binary"
	"sync/atomic"

	"lukechampine.com/blake3"

	"github.com/bermi/rheia/internal/chainerr"
)

// MaxBlockTransactionIDs is the maximum number of transaction ids a Block
// may carry.
const MaxBlockTransactionIDs = 65535

// Block is immutable after construction and content-addressed by ID.
// MerkleRoot is carried in the wire format but never computed by this
// core; it is always the zero value.
type Block struct {
	refs int32

	Height         uint64
	MerkleRoot     [idSize]byte
	TransactionIDs [][idSize]byte
	ID             [idSize]byte
}

// NewBlock constructs a Block at height with the given transaction ids,
// in order. MerkleRoot is left zero. The returned handle carries one
// reference.
func NewBlock(height uint64, ids [][idSize]byte) (*Block, error) {
	if len(ids) > MaxBlockTransactionIDs {
		return nil, chainerr.ErrMessageSizeTooLarge
	}
	owned := make([][idSize]byte, len(ids))
	copy(owned, ids)

	b := &Block{
		refs:           1,
		Height:         height,
		TransactionIDs: owned,
	}
	b.ID = blake3.Sum256(b.serialize())
	return b, nil
}

// Ref increments the reference count and returns the same handle.
func (b *Block) Ref() *Block {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release decrements the reference count, reclaiming the id slice when
// it reaches zero.
func (b *Block) Release() {
	if atomic.AddInt32(&b.refs, -1) == 0 {
		b.TransactionIDs = nil
	}
}

// Size returns the length of b's canonical wire serialization.
func (b *Block) Size() int {
	return 8 + idSize + 2 + len(b.TransactionIDs)*idSize
}

// serialize returns b's canonical little-endian packed wire form:
// height:u64 || merkle_root(32) || num_ids:u16 || ids(num_ids*32).
func (b *Block) serialize() []byte {
	buf := make([]byte, 0, b.Size())
	buf = appendU64(buf, b.Height)
	buf = append(buf, b.MerkleRoot[:]...)
	buf = append(buf, byte(len(b.TransactionIDs)), byte(len(b.TransactionIDs)>>8))
	for _, id := range b.TransactionIDs {
		buf = append(buf, id[:]...)
	}
	return buf
}

// EncodeBlock writes b's canonical wire form.
func EncodeBlock(b *Block) []byte {
	return b.serialize()
}

// DecodeBlock parses one Block from b, recomputing its id from the
// parsed fields.
func DecodeBlock(b []byte) (*Block, error) {
	const headerSize = 8 + idSize + 2
	if len(b) < headerSize {
		return nil, chainerr.ErrEndOfStream
	}

	var blk Block
	off := 0
	blk.Height = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	copy(blk.MerkleRoot[:], b[off:off+idSize])
	off += idSize

	numIDs := binary.LittleEndian.Uint16(b[off : off+2])
	off += 2

	need := int(numIDs) * idSize
	if len(b)-off < need {
		return nil, chainerr.ErrEndOfStream
	}

	blk.TransactionIDs = make([][idSize]byte, numIDs)
	for i := 0; i < int(numIDs); i++ {
		copy(blk.TransactionIDs[i][:], b[off:off+idSize])
		off += idSize
	}

	blk.refs = 1
	blk.ID = blake3.Sum256(blk.serialize())
	return &blk, nil
}
