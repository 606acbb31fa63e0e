package cache

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/bytedance/sonic"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

// JSONCodec renders values as JSON payloads.
type JSONCodec struct{}

func (JSONCodec) Encode(value interface{}) (string, error) {
	payload, err := utils.Marshal(value)
	if err != nil {
		return "", types.Errorf(types.ErrSerializationFailed, "json encode: %v", err)
	}
	return utils.BytesToString(payload), nil
}

func (JSONCodec) Decode(payload string, target interface{}) error {
	if err := sonic.ConfigDefault.Unmarshal([]byte(payload), target); err != nil {
		return types.Errorf(types.ErrSerializationFailed, "json decode: %v", err)
	}
	return nil
}

// BrotliCodec compresses another codec's output. Worth it for large
// values on tightly bounded media; the compressed payload is what counts
// against capacity.
type BrotliCodec struct {
	inner types.Codec
	level int
}

func NewBrotliCodec(inner types.Codec) *BrotliCodec {
	return &BrotliCodec{
		inner: inner,
		level: brotli.DefaultCompression,
	}
}

func (b *BrotliCodec) Encode(value interface{}) (string, error) {
	payload, err := b.inner.Encode(value)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := brotli.NewWriterLevel(&buf, b.level)

	if _, err := writer.Write([]byte(payload)); err != nil {
		return "", types.Errorf(types.ErrSerializationFailed, "brotli compress: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", types.Errorf(types.ErrSerializationFailed, "brotli flush: %v", err)
	}

	return buf.String(), nil
}

func (b *BrotliCodec) Decode(payload string, target interface{}) error {
	reader := brotli.NewReader(strings.NewReader(payload))

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return types.Errorf(types.ErrSerializationFailed, "brotli decompress: %v", err)
	}

	return b.inner.Decode(utils.BytesToString(decompressed), target)
}

// NewCodec builds the codec named in the cache config.
func NewCodec(codecType string) (types.Codec, error) {
	switch codecType {
	case "", "json":
		return JSONCodec{}, nil
	case "brotli":
		return NewBrotliCodec(JSONCodec{}), nil
	default:
		return nil, types.Errorf(types.ErrCodecTypeUnknown, "unsupported codec type: %s", codecType)
	}
}
