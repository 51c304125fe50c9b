package encoding

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// maxDecompressedSize is the maximum amount of memory allocated by the zstd
// decoder for a single value. Batches larger than this cannot be decoded, so
// encoders reject them up front.
const maxDecompressedSize = 1 << 20

type CBORMarshalUnmarshaler interface {
	cbg.CBORMarshaler
	cbg.CBORUnmarshaler
}

// EncodeDecoder is a symmetric codec over a CBOR-serializable type.
type EncodeDecoder[T CBORMarshalUnmarshaler] interface {
	Encode(v T) ([]byte, error)
	Decode([]byte, T) error
}

// CBOR encodes values as canonical CBOR with no compression.
type CBOR[T CBORMarshalUnmarshaler] struct{}

func NewCBOR[T CBORMarshalUnmarshaler]() *CBOR[T] {
	return &CBOR[T]{}
}

func (c *CBOR[T]) Encode(m T) ([]byte, error) {
	defer func(start time.Time) {
		metrics.encodingTime.Record(context.Background(), time.Since(start).Seconds())
	}(time.Now())
	var buf bytes.Buffer
	if err := m.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *CBOR[T]) Decode(v []byte, t T) error {
	r := bytes.NewReader(v)
	return t.UnmarshalCBOR(r)
}

// ZSTD encodes values as zstd-compressed canonical CBOR. The compression is
// lossless: Decode of an Encode result reproduces the original value exactly.
type ZSTD[T CBORMarshalUnmarshaler] struct {
	cborEncoding *CBOR[T]
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

func NewZSTD[T CBORMarshalUnmarshaler]() (*ZSTD[T], error) {
	writer, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	reader, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		return nil, err
	}
	return &ZSTD[T]{
		cborEncoding: &CBOR[T]{},
		compressor:   writer,
		decompressor: reader,
	}, nil
}

func (c *ZSTD[T]) Encode(m T) ([]byte, error) {
	cborEncoded, err := c.cborEncoding.Encode(m)
	if err != nil {
		return nil, err
	}
	if len(cborEncoded) > maxDecompressedSize {
		// Error out early if the encoded value is too large to be decompressed.
		return nil, fmt.Errorf("encoded value cannot exceed maximum size: %d > %d", len(cborEncoded), maxDecompressedSize)
	}
	compressed := c.compressor.EncodeAll(cborEncoded, make([]byte, 0, len(cborEncoded)))
	if len(cborEncoded) > 0 {
		metrics.zstdCompressionRatio.Record(context.Background(), float64(len(compressed))/float64(len(cborEncoded)))
	}
	return compressed, nil
}

func (c *ZSTD[T]) Decode(v []byte, t T) error {
	cborEncoded, err := c.decompressor.DecodeAll(v, make([]byte, 0, len(v)))
	if err != nil {
		return err
	}
	return c.cborEncoding.Decode(cborEncoded, t)
}
