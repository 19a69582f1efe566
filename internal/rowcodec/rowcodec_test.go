package rowcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutUint64(1, 42)
	w.PutString(2, "hello")
	w.PutBool(3, true)
	w.PutBytes(4, []byte{1, 2, 3})

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	assert.EqualValues(t, 42, r.GetUint64(1, 0))
	assert.Equal(t, "hello", r.GetString(2, ""))
	assert.True(t, r.GetBool(3, false))
	b, ok := r.GetBytes(4)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestForwardCompatibility_OldReaderIgnoresNewField(t *testing.T) {
	w := NewWriter()
	w.PutUint64(1, 42)
	w.PutString(99, "future field unknown to old code")

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 42, r.GetUint64(1, 0))
}

func TestBackwardCompatibility_NewReaderDefaultsMissingField(t *testing.T) {
	w := NewWriter()
	w.PutUint64(1, 42)
	// field 5 never written by the "old" writer

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 7, r.GetUint64(5, 7))
	assert.Nil(t, r.GetOptionalUint64(5))
	assert.False(t, r.Has(5))
}

func TestOptionalFieldsRoundTrip(t *testing.T) {
	w := NewWriter()
	var present *uint64
	v := uint64(5)
	present = &v
	w.PutOptionalUint64(10, present)
	w.PutOptionalUint64(11, nil)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	require.NotNil(t, r.GetOptionalUint64(10))
	assert.EqualValues(t, 5, *r.GetOptionalUint64(10))
	assert.Nil(t, r.GetOptionalUint64(11))
}

func TestSubRecordsRoundTrip(t *testing.T) {
	sub1 := NewWriter()
	sub1.PutString(1, "col1")
	sub2 := NewWriter()
	sub2.PutString(1, "col2")

	w := NewWriter()
	w.PutSubRecords(20, [][]byte{sub1.Bytes(), sub2.Bytes()})

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	subs, err := r.GetSubRecords(20)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	r1, err := NewReader(subs[0])
	require.NoError(t, err)
	assert.Equal(t, "col1", r1.GetString(1, ""))

	r2, err := NewReader(subs[1])
	require.NoError(t, err)
	assert.Equal(t, "col2", r2.GetString(1, ""))
}

func TestTruncatedBytesIsCodecError(t *testing.T) {
	w := NewWriter()
	w.PutString(1, "x")
	b := w.Bytes()
	_, err := NewReader(b[:len(b)-1])
	require.Error(t, err)
}
