// Package security implements the cryptographic collaborators the hush
// protocol depends on: an HMAC-SHA1 Signer over the challenge/proximity-code
// pair and a secure session-id generator.
package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"

	"github.com/alarmweave/alarmweave/pkg/alarmerr"
)

// MinKeySize is the smallest key length a Signer will accept.
const MinKeySize = 16

// SignatureSize is the fixed HMAC-SHA1 output length carried in a hush
// request.
const SignatureSize = sha1.Size

// Signer computes and verifies hush-request signatures for one key id.
//
// A Signer holds its key for the lifetime of the originating session; it is
// not safe to mutate concurrently with Sign/Verify calls from another
// goroutine, matching the rest of this engine's single-threaded model.
type Signer struct {
	keyID uint16
	key   []byte
}

// NewSigner validates key and returns a Signer bound to keyID. It fails with
// ErrInvalidArgument if len(key) < MinKeySize.
func NewSigner(keyID uint16, key []byte) (*Signer, error) {
	if len(key) < MinKeySize {
		return nil, alarmerr.ErrInvalidArgument
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	return &Signer{keyID: keyID, key: owned}, nil
}

// KeyID returns the key identifier this Signer was constructed with.
func (s *Signer) KeyID() uint16 { return s.keyID }

// Sign computes HMAC-SHA1 over challenge || proximityCode, proximityCode
// encoded little-endian as in the wire request.
func (s *Signer) Sign(challenge []byte, proximityCode uint32) [SignatureSize]byte {
	var pc [4]byte
	binary.LittleEndian.PutUint32(pc[:], proximityCode)

	mac := hmac.New(sha1.New, s.key)
	mac.Write(challenge)
	mac.Write(pc[:])

	var out [SignatureSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Verify reports whether sig is the correct signature over challenge and
// proximityCode under this Signer's key. An all-zero (unsigned) sig never
// verifies, even against a matching key — the asymmetry calls out
// explicitly.
func (s *Signer) Verify(challenge []byte, proximityCode uint32, sig [SignatureSize]byte) bool {
	if isZero(sig) {
		return false
	}
	want := s.Sign(challenge, proximityCode)
	return hmac.Equal(want[:], sig[:])
}

func isZero(sig [SignatureSize]byte) bool {
	for _, b := range sig {
		if b != 0 {
			return false
		}
	}
	return true
}

// RandomSessionID returns a cryptographically random 32-bit session
// identifier, wrapping crypto/rand the way the engine's originator sessions
// mint a fresh id on every Active-state (re)entry. It returns
// ErrRandomDataUnavailable if the system RNG fails.
func RandomSessionID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, alarmerr.ErrRandomDataUnavailable
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
