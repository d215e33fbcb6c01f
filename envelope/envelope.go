package envelope

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"qnp/wire"
)

// Seal appends a truncated message signature to buf[plaintextOffset:] and
// encrypts that signature together with the payload, in place. plaintextOffset
// is the byte position where the header ends (wire.PacketHeaderByteSize for
// the notification protocol's 3-byte header).
//
// The caller must have already called c.SetupCounter for this packet.
func Seal(buf []byte, plaintextOffset int, c Cipher) ([]byte, error) {
	if plaintextOffset > len(buf) {
		return nil, fmt.Errorf("envelope: plaintext offset %d beyond buffer of length %d", plaintextOffset, len(buf))
	}
	region := buf[plaintextOffset:]
	sig := sha256.Sum256(region)
	sealed := append(buf, sig[:wire.MessageSignatureBytes]...)
	if err := c.Encrypt(sealed[plaintextOffset:]); err != nil {
		return nil, err
	}
	return sealed, nil
}

// Open decrypts buf[plaintextOffset:] in place and verifies the trailing
// signature, returning the plaintext payload (header and signature
// excluded) on success. The caller must have already called
// c.SetupCounter with the reconstructed sequence fields for this packet.
func Open(buf []byte, plaintextOffset int, c Cipher) ([]byte, error) {
	if plaintextOffset > len(buf) {
		return nil, fmt.Errorf("envelope: plaintext offset %d beyond buffer of length %d", plaintextOffset, len(buf))
	}
	region := buf[plaintextOffset:]
	if len(region) < wire.MessageSignatureBytes {
		return nil, fmt.Errorf("envelope: datagram too short for signature")
	}
	if err := c.Decrypt(region); err != nil {
		return nil, err
	}
	split := len(region) - wire.MessageSignatureBytes
	plaintext, gotSig := region[:split], region[split:]
	wantSig := sha256.Sum256(plaintext)
	if subtle.ConstantTimeCompare(gotSig, wantSig[:wire.MessageSignatureBytes]) != 1 {
		return nil, fmt.Errorf("envelope: signature mismatch")
	}
	return plaintext, nil
}
