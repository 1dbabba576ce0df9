package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	checksumLen = 4
	payloadLen  = 1 + 64 // version byte + SHA3-512 digest
	addressLen  = payloadLen + checksumLen
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is the base64 text form of version || SHA3-512(pubkey) || checksum.
type Address string

// IsEmpty reports whether the address is unset, which marks a coinbase sender.
func (a Address) IsEmpty() bool {
	return a == ""
}

// DeriveAddress maps a public key and protocol version to an address.
func DeriveAddress(pub PublicKey, version byte) Address {
	digest := sha3.Sum512(pub[:])

	raw := make([]byte, 0, addressLen)
	raw = append(raw, version)
	raw = append(raw, digest[:]...)

	sum := checksum(raw)
	raw = append(raw, sum[:]...)

	return Address(base64.StdEncoding.EncodeToString(raw))
}

// checksum is the first four bytes of SHA3-256(SHA-256(payload)).
func checksum(payload []byte) [checksumLen]byte {
	inner := sha256.Sum256(payload)
	outer := sha3.Sum256(inner[:])

	var sum [checksumLen]byte
	copy(sum[:], outer[:checksumLen])
	return sum
}

// ValidateAddress decodes addr and recomputes its checksum.
func ValidateAddress(addr Address) error {
	raw, err := base64.StdEncoding.DecodeString(string(addr))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != addressLen {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidAddress, addressLen, len(raw))
	}

	payload, got := raw[:payloadLen], raw[payloadLen:]
	want := checksum(payload)
	if !bytes.Equal(got, want[:]) {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return nil
}

// AddressVersion returns the protocol version encoded in a valid address.
func AddressVersion(addr Address) (byte, error) {
	if err := ValidateAddress(addr); err != nil {
		return 0, err
	}
	raw, _ := base64.StdEncoding.DecodeString(string(addr))
	return raw[0], nil
}
