// Package wallet owns the node's signing identity: a secp256k1 key pair and
// the address derived from its public key.
package wallet

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// ProtocolVersion is prefixed to every derived address payload.
	ProtocolVersion byte = 1

	// PublicKeySize is the fixed x||y encoding of a public key.
	PublicKeySize = 64

	// PrivateKeySize is the length of an exported key blob.
	PrivateKeySize = secp256k1.PrivKeyBytesLen

	maxKeyAttempts = 3
)

var (
	ErrKeyGeneration    = errors.New("key generation failed")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidKeyBlob   = errors.New("invalid key blob")
)

// PublicKey is the uncompressed curve point without the format prefix.
type PublicKey [PublicKeySize]byte

// Bytes returns a copy of the encoded key.
func (p PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	copy(b, p[:])
	return b
}

func (p PublicKey) toECDSA() (*ecdsa.PublicKey, error) {
	var buf [PublicKeySize + 1]byte
	buf[0] = secp256k1.PubKeyFormatUncompressed
	copy(buf[1:], p[:])
	parsed, err := secp256k1.ParsePubKey(buf[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return parsed.ToECDSA(), nil
}

// ParsePublicKey accepts the 64-byte x||y encoding as well as the standard
// 33-byte compressed and 65-byte uncompressed forms.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var pub PublicKey
	raw := b
	if len(b) == PublicKeySize {
		raw = make([]byte, 0, PublicKeySize+1)
		raw = append(raw, secp256k1.PubKeyFormatUncompressed)
		raw = append(raw, b...)
	}
	parsed, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return pub, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	copy(pub[:], parsed.SerializeUncompressed()[1:])
	return pub, nil
}

// KeyPair holds the private scalar and the public point derived from it.
type KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  PublicKey
}

func newKeyPair(priv *secp256k1.PrivateKey) (KeyPair, error) {
	if priv.Key.IsZero() {
		return KeyPair{}, errors.New("private scalar is zero")
	}

	point := priv.PubKey()
	if !point.IsOnCurve() {
		return KeyPair{}, errors.New("public point is not on the curve")
	}

	var pub PublicKey
	copy(pub[:], point.SerializeUncompressed()[1:])
	if pub == (PublicKey{}) {
		return KeyPair{}, errors.New("public point is the identity")
	}

	return KeyPair{priv: priv, pub: pub}, nil
}

// Wallet is a key pair plus its cached address.
type Wallet struct {
	keys    KeyPair
	address Address
}

// Generate creates a wallet from the operating system CSPRNG.
func Generate() (*Wallet, error) {
	return GenerateFromRand(rand.Reader)
}

// GenerateFromRand creates a wallet using the supplied entropy source. A key
// that fails validation is discarded and regenerated; ErrKeyGeneration is
// returned once every attempt has failed.
func GenerateFromRand(r io.Reader) (*Wallet, error) {
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		priv, err := secp256k1.GeneratePrivateKeyFromRand(r)
		if err != nil {
			lastErr = err
			continue
		}

		keys, err := newKeyPair(priv)
		if err != nil {
			lastErr = err
			continue
		}

		return fromKeyPair(keys), nil
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrKeyGeneration, maxKeyAttempts, lastErr)
}

func fromKeyPair(keys KeyPair) *Wallet {
	return &Wallet{
		keys:    keys,
		address: DeriveAddress(keys.pub, ProtocolVersion),
	}
}

// Import rebuilds a wallet from a blob produced by Export.
func Import(blob []byte) (*Wallet, error) {
	if len(blob) != PrivateKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKeyBlob, PrivateKeySize, len(blob))
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(blob); overflow {
		return nil, fmt.Errorf("%w: scalar exceeds curve order", ErrInvalidKeyBlob)
	}

	keys, err := newKeyPair(secp256k1.NewPrivateKey(&scalar))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyBlob, err)
	}
	return fromKeyPair(keys), nil
}

// Export returns the private scalar as an opaque blob. Storing it safely is
// the caller's concern.
func (w *Wallet) Export() []byte {
	return w.keys.priv.Serialize()
}

func (w *Wallet) Address() Address {
	return w.address
}

func (w *Wallet) PublicKey() PublicKey {
	return w.keys.pub
}

// Sign returns an ASN.1 ECDSA signature over digest with a low S value. The
// nonce is drawn from the CSPRNG, so signing the same digest twice yields
// different signatures.
func (w *Wallet) Sign(digest []byte) ([]byte, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, w.keys.priv.ToECDSA(), digest)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	sig, err = canonicalSignature(sig)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

func (w *Wallet) String() string {
	return string(w.address)
}

// Verify reports whether sig is a valid low-S signature of digest under pub.
// Malformed keys or signatures simply fail verification.
func Verify(pub PublicKey, digest, sig []byte) bool {
	if len(sig) == 0 || !isLowS(sig) {
		return false
	}
	key, err := pub.toECDSA()
	if err != nil {
		return false
	}
	return ecdsa.VerifyASN1(key, digest, sig)
}
