// Package keycodec encodes and decodes the composite keys stored in the
// metastore's single ordered key-value namespace. Every key begins with a
// one-byte discriminator that fixes the layout of everything that follows;
// decode(encode(k)) == k for every RowKey variant.
package keycodec

import (
	"encoding/binary"
	"fmt"

	"github.com/cubestore/metastore/internal/metaerr"
)

// Discriminator bytes. These, together with the table_id/index_id constants
// in package catalog, are a wire contract: they must never change meaning
// across versions, or existing snapshots become unreadable.
const (
	KindPrimary byte = 1
	KindSeq     byte = 2
	KindIndex   byte = 3
)

// PrimaryPrefixLen is the length in bytes of the fixed primary-row prefix
// "[1 | table_id:u32 BE | 0:u64 BE]", before the row id. Scans over a single
// table's primary rows are prefix scans on exactly this many bytes.
const PrimaryPrefixLen = 1 + 4 + 8

// RowKey is the decoded form of a physical key. Exactly one of the Kind-
// tagged field groups below is meaningful for a given Kind.
type RowKey struct {
	Kind byte

	// KindPrimary / KindSeq
	TableID uint32
	RowID   uint64 // KindPrimary and KindIndex

	// KindIndex
	IndexID uint32
	Hash    uint64
}

// PrimaryPrefix returns the fixed 13-byte prefix shared by every primary row
// of tableID, suitable for a prefix iterator over that table's rows.
func PrimaryPrefix(tableID uint32) []byte {
	buf := make([]byte, PrimaryPrefixLen)
	buf[0] = KindPrimary
	binary.BigEndian.PutUint32(buf[1:5], tableID)
	binary.BigEndian.PutUint64(buf[5:13], 0)
	return buf
}

// EncodePrimary encodes a primary-row key.
func EncodePrimary(tableID uint32, rowID uint64) []byte {
	buf := make([]byte, PrimaryPrefixLen+8)
	copy(buf, PrimaryPrefix(tableID))
	binary.BigEndian.PutUint64(buf[PrimaryPrefixLen:], rowID)
	return buf
}

// EncodeSeq encodes the sequence-counter key for tableID.
func EncodeSeq(tableID uint32) []byte {
	buf := make([]byte, 1+4)
	buf[0] = KindSeq
	binary.BigEndian.PutUint32(buf[1:], tableID)
	return buf
}

// IndexPrefix returns the fixed prefix "[3 | index_id:u32 BE | hash:u64 BE]"
// shared by every entry with the given index id and key hash, suitable for
// resolving hash collisions via a short prefix scan.
func IndexPrefix(indexID uint32, hash uint64) []byte {
	buf := make([]byte, 1+4+8)
	buf[0] = KindIndex
	binary.BigEndian.PutUint32(buf[1:5], indexID)
	binary.BigEndian.PutUint64(buf[5:13], hash)
	return buf
}

// IndexIDPrefix returns the prefix shared by every entry of a given index,
// regardless of hash, so every entry of an index can be scanned without
// recomputing hashes.
func IndexIDPrefix(indexID uint32) []byte {
	buf := make([]byte, 1+4)
	buf[0] = KindIndex
	binary.BigEndian.PutUint32(buf[1:5], indexID)
	return buf
}

// EncodeIndex encodes a secondary-index entry key.
func EncodeIndex(indexID uint32, hash uint64, rowID uint64) []byte {
	buf := make([]byte, 1+4+8+8)
	copy(buf, IndexPrefix(indexID, hash))
	binary.BigEndian.PutUint64(buf[13:], rowID)
	return buf
}

// Encode serializes a RowKey back into its physical byte representation.
func Encode(k RowKey) []byte {
	switch k.Kind {
	case KindPrimary:
		return EncodePrimary(k.TableID, k.RowID)
	case KindSeq:
		return EncodeSeq(k.TableID)
	case KindIndex:
		return EncodeIndex(k.IndexID, k.Hash, k.RowID)
	default:
		panic(fmt.Sprintf("keycodec: unknown RowKey kind %d", k.Kind))
	}
}

// Decode parses a physical key back into a RowKey. An unknown discriminator
// byte indicates storage corruption, not a recoverable user error, and is
// reported as ErrCodec.
func Decode(b []byte) (RowKey, error) {
	if len(b) == 0 {
		return RowKey{}, metaerr.Wrap("keycodec.Decode", metaerr.ErrCodec)
	}
	switch b[0] {
	case KindPrimary:
		if len(b) != PrimaryPrefixLen+8 {
			return RowKey{}, metaerr.Wrapf(metaerr.ErrCodec, "keycodec.Decode: primary key length %d", len(b))
		}
		return RowKey{
			Kind:    KindPrimary,
			TableID: binary.BigEndian.Uint32(b[1:5]),
			RowID:   binary.BigEndian.Uint64(b[13:21]),
		}, nil
	case KindSeq:
		if len(b) != 1+4 {
			return RowKey{}, metaerr.Wrapf(metaerr.ErrCodec, "keycodec.Decode: seq key length %d", len(b))
		}
		return RowKey{
			Kind:    KindSeq,
			TableID: binary.BigEndian.Uint32(b[1:5]),
		}, nil
	case KindIndex:
		if len(b) != 1+4+8+8 {
			return RowKey{}, metaerr.Wrapf(metaerr.ErrCodec, "keycodec.Decode: index key length %d", len(b))
		}
		return RowKey{
			Kind:    KindIndex,
			IndexID: binary.BigEndian.Uint32(b[1:5]),
			Hash:    binary.BigEndian.Uint64(b[5:13]),
			RowID:   binary.BigEndian.Uint64(b[13:21]),
		}, nil
	default:
		return RowKey{}, metaerr.Wrapf(metaerr.ErrCodec, "keycodec.Decode: unknown discriminator byte 0x%02x", b[0])
	}
}
