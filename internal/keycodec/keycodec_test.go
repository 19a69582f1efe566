package keycodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []RowKey{
		{Kind: KindPrimary, TableID: 0x0100, RowID: 42},
		{Kind: KindPrimary, TableID: 0x0700, RowID: 0},
		{Kind: KindSeq, TableID: 0x0200},
		{Kind: KindIndex, IndexID: 0x0301, Hash: 0xdeadbeefcafebabe, RowID: 7},
	}
	for _, c := range cases {
		got, err := Decode(Encode(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestPrimaryPrefixFixedLength(t *testing.T) {
	assert.Len(t, PrimaryPrefix(0x0100), PrimaryPrefixLen)
	assert.Equal(t, PrimaryPrefixLen, 13)
}

func TestPrimaryPrefixScanBoundary(t *testing.T) {
	a := EncodePrimary(0x0100, 1)
	b := EncodePrimary(0x0200, 1)
	assert.NotEqual(t, a[:PrimaryPrefixLen], b[:PrimaryPrefixLen])

	a1 := EncodePrimary(0x0100, 1)
	a2 := EncodePrimary(0x0100, 2)
	assert.Equal(t, a1[:PrimaryPrefixLen], a2[:PrimaryPrefixLen])
	assert.Equal(t, PrimaryPrefix(0x0100), a1[:PrimaryPrefixLen])
}

func TestDecodeUnknownDiscriminatorIsCodecError(t *testing.T) {
	_, err := Decode([]byte{0xFF, 1, 2, 3})
	require.Error(t, err)
}

func TestDecodeEmptyIsCodecError(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)
}

func TestIndexPrefixOrdering(t *testing.T) {
	// Entries for the same index+hash but different row ids must sort by
	// row id ascending, since that's how the generic table engine iterates
	// them when resolving hash collisions.
	k1 := EncodeIndex(1, 100, 1)
	k2 := EncodeIndex(1, 100, 2)
	assert.Less(t, string(k1), string(k2))
}
