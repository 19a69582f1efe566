package durability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubestore/metastore/internal/kvengine"
)

func TestEncodeDecodeLogRoundTrips(t *testing.T) {
	batches := []kvengine.Batch{
		{Seq: 1, Mutations: []kvengine.Mutation{
			{Op: kvengine.OpPut, Key: []byte("a"), Value: []byte("1")},
		}},
		{Seq: 2, Mutations: []kvengine.Mutation{
			{Op: kvengine.OpPut, Key: []byte("b"), Value: []byte("2")},
			{Op: kvengine.OpDelete, Key: []byte("a")},
		}},
	}

	blob := encodeLog(batches)
	muts, err := decodeLog(blob)
	require.NoError(t, err)
	require.Len(t, muts, 3)
	assert.Equal(t, kvengine.OpPut, muts[0].Op)
	assert.Equal(t, []byte("a"), muts[0].Key)
	assert.Equal(t, []byte("1"), muts[0].Value)
	assert.Equal(t, kvengine.OpPut, muts[1].Op)
	assert.Equal(t, []byte("b"), muts[1].Key)
	assert.Equal(t, kvengine.OpDelete, muts[2].Op)
	assert.Equal(t, []byte("a"), muts[2].Key)
	assert.Nil(t, muts[2].Value)
}

func TestDecodeLogRejectsTruncatedInput(t *testing.T) {
	_, err := decodeLog([]byte{0x05})
	require.Error(t, err)
}
