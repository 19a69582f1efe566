package durability

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/metaerr"
)

// encodeLog serializes a sequence of committed batches into the log-file
// blob format published at metastore-<t_ms>-logs/<min_seq>.log (spec
// §6.3): an ordered list of Put(key,val)/Delete(key) entries, framed with
// uvarint lengths so replay needs no external schema.
func encodeLog(batches []kvengine.Batch) []byte {
	var buf bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		buf.Write(scratch[:n])
	}
	putBytes := func(b []byte) {
		putUvarint(uint64(len(b)))
		buf.Write(b)
	}

	var total int
	for _, b := range batches {
		total += len(b.Mutations)
	}
	putUvarint(uint64(total))
	for _, b := range batches {
		for _, m := range b.Mutations {
			buf.WriteByte(byte(m.Op))
			putBytes(m.Key)
			if m.Op == kvengine.OpPut {
				putBytes(m.Value)
			}
		}
	}
	return buf.Bytes()
}

// decodeLog reverses encodeLog.
func decodeLog(data []byte) ([]kvengine.Mutation, error) {
	r := bytes.NewReader(data)

	readUvarint := func() (uint64, error) {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return 0, metaerr.Wrap("durability.decodeLog", metaerr.ErrCodec)
		}
		return v, nil
	}
	readBytes := func() ([]byte, error) {
		n, err := readUvarint()
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, metaerr.Wrap("durability.decodeLog", metaerr.ErrCodec)
		}
		return b, nil
	}

	count, err := readUvarint()
	if err != nil {
		return nil, err
	}
	muts := make([]kvengine.Mutation, 0, count)
	for i := uint64(0); i < count; i++ {
		opByte, err := r.ReadByte()
		if err != nil {
			return nil, metaerr.Wrap("durability.decodeLog", metaerr.ErrCodec)
		}
		key, err := readBytes()
		if err != nil {
			return nil, err
		}
		m := kvengine.Mutation{Op: kvengine.Op(opByte), Key: key}
		if m.Op == kvengine.OpPut {
			val, err := readBytes()
			if err != nil {
				return nil, err
			}
			m.Value = val
		}
		muts = append(muts, m)
	}
	return muts, nil
}
