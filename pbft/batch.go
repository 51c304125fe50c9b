package pbft

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/internal/encoding"
	"github.com/dicemesh/go-dicebft/merkle"
)

// CompressionMethod identifies how a batch payload is encoded on the wire.
type CompressionMethod uint8

const (
	// CompressionNone stores the canonical CBOR payload as-is.
	CompressionNone CompressionMethod = iota
	// CompressionZstd wraps the canonical CBOR payload in a zstd frame.
	CompressionZstd
)

func (m CompressionMethod) String() string {
	switch m {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// Operation is a single client operation awaiting ordering.
type Operation struct {
	ID        uint64
	Client    bft.PeerID
	Data      []byte
	Timestamp int64
	Signature []byte
}

// MarshalForSigning returns the canonical byte representation of the
// operation signed by its client.
func (o *Operation) MarshalForSigning() []byte {
	var buf bytes.Buffer
	buf.WriteString(bft.DomainSeparationTag + ":OP:")
	_ = binary.Write(&buf, binary.BigEndian, o.ID)
	buf.Write(o.Client[:])
	_ = binary.Write(&buf, binary.BigEndian, o.Timestamp)
	buf.Write(o.Data)
	return buf.Bytes()
}

// OperationList is the payload of a batch before compression.
type OperationList struct {
	Operations []*Operation
}

// OperationBatch is an ordered, compressed group of operations proposed as a
// unit. Hash binds the compressed payload together with the batch timestamp,
// so a batch cannot be replayed under a different timestamp.
type OperationBatch struct {
	Sequence  uint64
	Timestamp int64
	Method    CompressionMethod
	Payload   []byte
	Hash      merkle.Digest
}

var (
	plainCodec = encoding.NewCBOR[*OperationList]()

	zstdCodecOnce sync.Once
	zstdCodec     *encoding.ZSTD[*OperationList]
	zstdCodecErr  error
)

func batchZSTD() (*encoding.ZSTD[*OperationList], error) {
	zstdCodecOnce.Do(func() {
		zstdCodec, zstdCodecErr = encoding.NewZSTD[*OperationList]()
	})
	return zstdCodec, zstdCodecErr
}

// NewBatch encodes the operations into a batch with the given sequence number
// and compression method, stamped with now.
func NewBatch(sequence uint64, ops []*Operation, method CompressionMethod, now time.Time) (*OperationBatch, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("batch must contain at least one operation")
	}
	list := &OperationList{Operations: ops}

	var payload []byte
	var err error
	switch method {
	case CompressionNone:
		payload, err = plainCodec.Encode(list)
	case CompressionZstd:
		var codec *encoding.ZSTD[*OperationList]
		codec, err = batchZSTD()
		if err == nil {
			payload, err = codec.Encode(list)
		}
	default:
		return nil, fmt.Errorf("unsupported compression method %d", method)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding batch payload: %w", err)
	}

	b := &OperationBatch{
		Sequence:  sequence,
		Timestamp: now.UnixMilli(),
		Method:    method,
		Payload:   payload,
	}
	b.Hash = b.computeHash()
	return b, nil
}

func (b *OperationBatch) computeHash() merkle.Digest {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(b.Timestamp))
	return merkle.Hash(b.Payload, ts[:])
}

// VerifyHash checks that Hash matches the payload and timestamp.
func (b *OperationBatch) VerifyHash() error {
	if b.computeHash() != b.Hash {
		return ErrBatchHashMismatch
	}
	return nil
}

// Operations decodes the batch payload back into its operations.
func (b *OperationBatch) Operations() ([]*Operation, error) {
	var list OperationList
	switch b.Method {
	case CompressionNone:
		if err := plainCodec.Decode(b.Payload, &list); err != nil {
			return nil, fmt.Errorf("decoding batch payload: %w", err)
		}
	case CompressionZstd:
		codec, err := batchZSTD()
		if err != nil {
			return nil, err
		}
		if err := codec.Decode(b.Payload, &list); err != nil {
			return nil, fmt.Errorf("decompressing batch payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported compression method %d", b.Method)
	}
	return list.Operations, nil
}

// Len reports the number of operations without retaining the decoded list.
func (b *OperationBatch) Len() (int, error) {
	ops, err := b.Operations()
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}
