package memkv

import (
	"bytes"
	"encoding/binary"

	"github.com/cubestore/metastore/internal/metaerr"
)

// writeFrame appends a uvarint-length-prefixed byte string to buf.
func writeFrame(buf *bytes.Buffer, b []byte) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(b)))
	buf.Write(scratch[:n])
	buf.Write(b)
}

// readFrame reads one length-prefixed byte string off the front of buf and
// returns it along with the remaining bytes.
func readFrame(buf []byte) ([]byte, []byte, error) {
	length, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, nil, metaerr.Wrap("memkv.readFrame", metaerr.ErrKvEngine)
	}
	buf = buf[n:]
	if uint64(len(buf)) < length {
		return nil, nil, metaerr.Wrap("memkv.readFrame", metaerr.ErrKvEngine)
	}
	return buf[:length], buf[length:], nil
}
