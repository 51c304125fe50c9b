package bft

// Signer signs messages on behalf of the local participant. The engine never
// manages key material itself; implementations are supplied by the identity
// layer (see the blssig package for a production implementation).
type Signer interface {
	// Sign signs the given message with the local participant's key.
	Sign(msg []byte) ([]byte, error)
}

// Verifier verifies signatures from mesh participants.
type Verifier interface {
	// Verify checks that sig is a valid signature of msg by the given peer.
	// A nil return means the signature is valid.
	Verify(peer PeerID, msg, sig []byte) error
}
