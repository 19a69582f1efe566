// Package rowcodec implements the self-describing binary serialization used
// for every domain record in the metastore (schemas, tables, indexes,
// partitions, chunks, WAL entries, jobs). Records are tag-length-value field
// lists keyed by a small stable field id, so bytes written by version N stay
// readable by version N+1 as long as only additive, nullable fields are
// introduced: an old reader simply never looks up a new field id, and a new
// reader reading old bytes gets the field's zero value when the id is absent.
package rowcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/cubestore/metastore/internal/metaerr"
)

type fieldType byte

const (
	typeUint64 fieldType = 1
	typeInt64  fieldType = 2
	typeString fieldType = 3
	typeBool   fieldType = 4
	typeBytes  fieldType = 5
)

// Writer builds one self-describing record. Field ids are caller-assigned
// and must stay stable for a given entity across versions; see the per-
// entity Encode functions in package catalog for the assignments in use.
type Writer struct {
	fields []encodedField
}

type encodedField struct {
	id  uint16
	typ fieldType
	val []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) PutUint64(id uint16, v uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	w.fields = append(w.fields, encodedField{id, typeUint64, buf})
}

func (w *Writer) PutInt64(id uint16, v int64) { w.PutUint64(id, uint64(v)) }

func (w *Writer) PutString(id uint16, v string) {
	w.fields = append(w.fields, encodedField{id, typeString, []byte(v)})
}

func (w *Writer) PutBool(id uint16, v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	w.fields = append(w.fields, encodedField{id, typeBool, []byte{b}})
}

func (w *Writer) PutBytes(id uint16, v []byte) {
	w.fields = append(w.fields, encodedField{id, typeBytes, v})
}

// PutOptionalUint64 writes the field only when present, which is how
// optional columns (min/max row tuples, parent ids, node assignments) stay
// absent-by-default on the wire instead of reserving a sentinel value.
func (w *Writer) PutOptionalUint64(id uint16, v *uint64) {
	if v != nil {
		w.PutUint64(id, *v)
	}
}

func (w *Writer) PutOptionalString(id uint16, v *string) {
	if v != nil {
		w.PutString(id, *v)
	}
}

func (w *Writer) PutOptionalBytes(id uint16, v []byte, present bool) {
	if present {
		w.PutBytes(id, v)
	}
}

// PutSubRecord embeds a fully-encoded nested record (e.g. one Column in a
// Table's column list) as an opaque length-prefixed blob under id.
func (w *Writer) PutSubRecord(id uint16, sub []byte) { w.PutBytes(id, sub) }

// PutSubRecords embeds a repeated sequence of nested records under id, each
// individually length-prefixed so the list can be walked without decoding
// every element eagerly.
func (w *Writer) PutSubRecords(id uint16, subs [][]byte) {
	var buf []byte
	var lenbuf [binary.MaxVarintLen64]byte
	for _, s := range subs {
		n := binary.PutUvarint(lenbuf[:], uint64(len(s)))
		buf = append(buf, lenbuf[:n]...)
		buf = append(buf, s...)
	}
	w.fields = append(w.fields, encodedField{id, typeBytes, buf})
}

// Bytes serializes the accumulated fields: a uvarint field count followed by
// per-field (uvarint id, type byte, uvarint length, value bytes) tuples.
func (w *Writer) Bytes() []byte {
	var out []byte
	var scratch [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scratch[:], uint64(len(w.fields)))
	out = append(out, scratch[:n]...)

	for _, f := range w.fields {
		n = binary.PutUvarint(scratch[:], uint64(f.id))
		out = append(out, scratch[:n]...)
		out = append(out, byte(f.typ))
		n = binary.PutUvarint(scratch[:], uint64(len(f.val)))
		out = append(out, scratch[:n]...)
		out = append(out, f.val...)
	}
	return out
}

// Reader parses a record produced by Writer into an id-indexed lookup table.
type Reader struct {
	fields map[uint16]encodedField
}

// NewReader parses data into a Reader. It returns ErrCodec if the bytes are
// truncated or malformed; an unrecognized field id is never an error here —
// that's the additive-evolution contract — it is simply never looked up by
// callers that predate it.
func NewReader(data []byte) (*Reader, error) {
	r := &Reader{fields: make(map[uint16]encodedField)}
	buf := data

	count, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, metaerr.Wrap("rowcodec.NewReader", metaerr.ErrCodec)
	}
	buf = buf[n:]

	for i := uint64(0); i < count; i++ {
		id, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, metaerr.Wrap("rowcodec.NewReader", metaerr.ErrCodec)
		}
		buf = buf[n:]

		if len(buf) < 1 {
			return nil, metaerr.Wrap("rowcodec.NewReader", metaerr.ErrCodec)
		}
		typ := fieldType(buf[0])
		buf = buf[1:]

		length, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, metaerr.Wrap("rowcodec.NewReader", metaerr.ErrCodec)
		}
		buf = buf[n:]

		if uint64(len(buf)) < length {
			return nil, metaerr.Wrapf(metaerr.ErrCodec, "rowcodec.NewReader: truncated field %d", id)
		}
		val := buf[:length]
		buf = buf[length:]

		r.fields[uint16(id)] = encodedField{id: uint16(id), typ: typ, val: val}
	}
	return r, nil
}

func (r *Reader) GetUint64(id uint16, def uint64) uint64 {
	f, ok := r.fields[id]
	if !ok || f.typ != typeUint64 || len(f.val) != 8 {
		return def
	}
	return binary.BigEndian.Uint64(f.val)
}

func (r *Reader) GetInt64(id uint16, def int64) int64 {
	return int64(r.GetUint64(id, uint64(def)))
}

func (r *Reader) GetString(id uint16, def string) string {
	f, ok := r.fields[id]
	if !ok || f.typ != typeString {
		return def
	}
	return string(f.val)
}

func (r *Reader) GetBool(id uint16, def bool) bool {
	f, ok := r.fields[id]
	if !ok || f.typ != typeBool || len(f.val) != 1 {
		return def
	}
	return f.val[0] != 0
}

func (r *Reader) GetBytes(id uint16) ([]byte, bool) {
	f, ok := r.fields[id]
	if !ok {
		return nil, false
	}
	return f.val, true
}

func (r *Reader) GetOptionalUint64(id uint16) *uint64 {
	f, ok := r.fields[id]
	if !ok || f.typ != typeUint64 || len(f.val) != 8 {
		return nil
	}
	v := binary.BigEndian.Uint64(f.val)
	return &v
}

func (r *Reader) GetOptionalString(id uint16) *string {
	f, ok := r.fields[id]
	if !ok || f.typ != typeString {
		return nil
	}
	s := string(f.val)
	return &s
}

// GetSubRecords splits a PutSubRecords blob back into its individual
// length-prefixed elements.
func (r *Reader) GetSubRecords(id uint16) ([][]byte, error) {
	raw, ok := r.GetBytes(id)
	if !ok {
		return nil, nil
	}
	var out [][]byte
	buf := raw
	for len(buf) > 0 {
		length, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, metaerr.Wrap("rowcodec.GetSubRecords", metaerr.ErrCodec)
		}
		buf = buf[n:]
		if uint64(len(buf)) < length {
			return nil, fmt.Errorf("rowcodec.GetSubRecords: truncated element: %w", metaerr.ErrCodec)
		}
		out = append(out, buf[:length])
		buf = buf[length:]
	}
	return out, nil
}

// Has reports whether field id was present on the wire, distinguishing "not
// set" from "set to the zero value" for optional scalar fields.
func (r *Reader) Has(id uint16) bool {
	_, ok := r.fields[id]
	return ok
}
