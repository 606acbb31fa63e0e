package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/types"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := JSONCodec{}

	payload, err := codec.Encode(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)

	var decoded map[string]int
	require.NoError(t, codec.Decode(payload, &decoded))
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, decoded)
}

func TestJSONCodecEncodeFailure(t *testing.T) {
	codec := JSONCodec{}

	_, err := codec.Encode(make(chan int))
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrSerializationFailed))
}

func TestBrotliCodecRoundTrip(t *testing.T) {
	codec := NewBrotliCodec(JSONCodec{})

	type doc struct {
		Body string `json:"body"`
	}

	large := doc{Body: string(make([]byte, 4096))}

	payload, err := codec.Encode(large)
	require.NoError(t, err)
	assert.Less(t, len(payload), 4096, "compressible payload should shrink")

	var decoded doc
	require.NoError(t, codec.Decode(payload, &decoded))
	assert.Equal(t, large, decoded)
}

func TestBrotliCodecDecodeGarbage(t *testing.T) {
	codec := NewBrotliCodec(JSONCodec{})

	var target map[string]string
	err := codec.Decode("definitely not brotli", &target)
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrSerializationFailed))
}

func TestNewCodec(t *testing.T) {
	codec, err := NewCodec("")
	require.NoError(t, err)
	assert.IsType(t, JSONCodec{}, codec)

	codec, err = NewCodec("brotli")
	require.NoError(t, err)
	assert.IsType(t, &BrotliCodec{}, codec)

	_, err = NewCodec("msgpack")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrCodecTypeUnknown))
}
