package pbft

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/merkle"
)

// MessageKind enumerates the protocol message types exchanged by replicas.
type MessageKind uint8

const (
	KindPrePrepare MessageKind = iota
	KindPrepare
	KindCommit
	KindViewChange
	KindNewView
	KindCheckpoint
)

func (k MessageKind) String() string {
	switch k {
	case KindPrePrepare:
		return "PRE-PREPARE"
	case KindPrepare:
		return "PREPARE"
	case KindCommit:
		return "COMMIT"
	case KindViewChange:
		return "VIEW-CHANGE"
	case KindNewView:
		return "NEW-VIEW"
	case KindCheckpoint:
		return "CHECKPOINT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// Message is a protocol message. Batch is populated only on pre-prepares,
// which carry the proposed batch alongside its digest.
type Message struct {
	Kind      MessageKind
	View      uint64
	Sequence  uint64
	BatchHash merkle.Digest
	Sender    bft.PeerID
	Batch     *OperationBatch
	Signature []byte
}

// MarshalForSigning returns the canonical byte representation of the message
// that is signed and verified. The batch itself is excluded; it is bound via
// BatchHash.
func (m *Message) MarshalForSigning() []byte {
	var buf bytes.Buffer
	buf.WriteString(bft.DomainSeparationTag + ":PBFT:")
	buf.WriteByte(byte(m.Kind))
	_ = binary.Write(&buf, binary.BigEndian, m.View)
	_ = binary.Write(&buf, binary.BigEndian, m.Sequence)
	buf.Write(m.BatchHash[:])
	buf.Write(m.Sender[:])
	return buf.Bytes()
}

// Validate performs stateless sanity checks.
func (m *Message) Validate() error {
	if m.Kind > KindCheckpoint {
		return fmt.Errorf("message has unknown kind %d", m.Kind)
	}
	if m.Kind == KindPrePrepare && m.Batch == nil {
		return fmt.Errorf("pre-prepare carries no batch")
	}
	if m.Kind != KindPrePrepare && m.Batch != nil {
		return fmt.Errorf("%s message carries a batch", m.Kind)
	}
	if len(m.Signature) == 0 {
		return fmt.Errorf("message carries no signature")
	}
	return nil
}
