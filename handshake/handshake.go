// Package handshake provides a reference implementation of the qnp.Handshake
// collaborator: a one-round-trip Kyber768 key exchange that installs a
// session cipher and exchanges each side's initial sequence number. It is
// not part of the notification protocol's own invariants; it exists so the
// rest of the repository is runnable end to end.
package handshake

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"golang.org/x/crypto/hkdf"

	"qnp"
	"qnp/envelope"
)

const (
	msgHello  = 0x01
	msgAccept = 0x02
)

// Reference is a qnp.Handshake implementation driving one side of the
// Kyber768 exchange. Construct one with NewInitiator or NewResponder per
// connection; it is not reusable across connections.
type Reference struct {
	initiator bool
	scheme    kem.Scheme
	priv      kem.PrivateKey

	ownInitialSeq uint32
	sentHello     bool
	done          bool
}

// NewInitiator builds a Reference that opens the exchange by sending its
// Kyber768 public key as the "challenge response".
func NewInitiator() (*Reference, error) {
	seq, err := randomUint32()
	if err != nil {
		return nil, err
	}
	return &Reference{initiator: true, scheme: kyber768.Scheme(), ownInitialSeq: seq}, nil
}

// NewResponder builds a Reference that waits for a peer's hello before
// doing anything.
func NewResponder() (*Reference, error) {
	seq, err := randomUint32()
	if err != nil {
		return nil, err
	}
	return &Reference{initiator: false, scheme: kyber768.Scheme(), ownInitialSeq: seq}, nil
}

// Advance implements qnp.Handshake.
func (h *Reference) Advance(c *qnp.Connection, now time.Time, in []byte) ([]byte, error) {
	if h.done {
		return nil, nil
	}
	if h.initiator {
		return h.advanceInitiator(c, in)
	}
	return h.advanceResponder(c, in)
}

func (h *Reference) advanceInitiator(c *qnp.Connection, in []byte) ([]byte, error) {
	if !h.sentHello {
		pub, priv, err := h.scheme.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("handshake: generate key pair: %w", err)
		}
		h.priv = priv
		pubBytes, err := pub.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("handshake: marshal public key: %w", err)
		}

		if err := c.SetState(qnp.StateAwaitingConnectResponse); err != nil {
			return nil, err
		}
		h.sentHello = true

		out := make([]byte, 1+4+len(pubBytes))
		out[0] = msgHello
		binary.LittleEndian.PutUint32(out[1:5], h.ownInitialSeq)
		copy(out[5:], pubBytes)
		return out, nil
	}

	if in == nil {
		return nil, nil
	}
	if len(in) < 5 || in[0] != msgAccept {
		return nil, nil
	}
	responderSeq := binary.LittleEndian.Uint32(in[1:5])
	ciphertext := in[5:]

	shared, err := h.scheme.Decapsulate(h.priv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("handshake: decapsulate: %w", err)
	}

	cipher, err := deriveCipher(shared, h.ownInitialSeq, responderSeq)
	if err != nil {
		return nil, err
	}

	h.done = true
	c.CompleteHandshake(cipher, h.ownInitialSeq, responderSeq, nil)
	return nil, nil
}

func (h *Reference) advanceResponder(c *qnp.Connection, in []byte) ([]byte, error) {
	if in == nil || len(in) < 1 {
		_ = c.SetState(qnp.StateAwaitingChallengeResponse)
		return nil, nil
	}
	if in[0] != msgHello {
		return nil, nil
	}
	if len(in) < 5+kyber768.PublicKeySize {
		return nil, fmt.Errorf("handshake: short hello")
	}
	initiatorSeq := binary.LittleEndian.Uint32(in[1:5])
	pubBytes := in[5 : 5+kyber768.PublicKeySize]

	pub, err := h.scheme.UnmarshalBinaryPublicKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("handshake: unmarshal public key: %w", err)
	}
	ciphertext, shared, err := h.scheme.Encapsulate(pub)
	if err != nil {
		return nil, fmt.Errorf("handshake: encapsulate: %w", err)
	}

	cipher, err := deriveCipher(shared, initiatorSeq, h.ownInitialSeq)
	if err != nil {
		return nil, err
	}

	h.done = true
	c.CompleteHandshake(cipher, h.ownInitialSeq, initiatorSeq, nil)

	out := make([]byte, 1+4+len(ciphertext))
	out[0] = msgAccept
	binary.LittleEndian.PutUint32(out[1:5], h.ownInitialSeq)
	copy(out[5:], ciphertext)
	return out, nil
}

// deriveCipher folds the KEM shared secret, through HKDF-SHA256, into an
// AES-256 key plus a base IV for envelope.CTRCipher. info binds the result
// to both sides' initial sequence numbers so a captured transcript can't be
// replayed to key a different session.
func deriveCipher(shared []byte, initiatorSeq, responderSeq uint32) (envelope.Cipher, error) {
	info := make([]byte, 8)
	binary.LittleEndian.PutUint32(info[0:4], initiatorSeq)
	binary.LittleEndian.PutUint32(info[4:8], responderSeq)

	r := hkdf.New(sha256.New, shared, nil, info)
	okm := make([]byte, 32+aes.BlockSize)
	if _, err := io.ReadFull(r, okm); err != nil {
		return nil, fmt.Errorf("handshake: HKDF expand: %w", err)
	}

	var iv [aes.BlockSize]byte
	copy(iv[:], okm[32:])
	c, err := envelope.NewCTRCipher(okm[:32], iv)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("handshake: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
