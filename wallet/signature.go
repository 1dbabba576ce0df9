package wallet

import (
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var ErrMalformedSignature = errors.New("malformed signature")

var (
	curveOrder     = secp256k1.S256().Params().N
	halfCurveOrder = new(big.Int).Rsh(curveOrder, 1)
)

func parseSignature(sig []byte) (r, s *big.Int, err error) {
	r, s = new(big.Int), new(big.Int)
	input := cryptobyte.String(sig)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(r) || !inner.ReadASN1Integer(s) || !inner.Empty() {
		return nil, nil, ErrMalformedSignature
	}
	return r, s, nil
}

func marshalSignature(r, s *big.Int) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// canonicalSignature rewrites sig so that s lies in the lower half of the
// curve order. (r, s) and (r, N-s) verify alike; only the low form is
// accepted.
func canonicalSignature(sig []byte) ([]byte, error) {
	r, s, err := parseSignature(sig)
	if err != nil {
		return nil, err
	}
	if s.Cmp(halfCurveOrder) <= 0 {
		return sig, nil
	}
	return marshalSignature(r, new(big.Int).Sub(curveOrder, s))
}

func isLowS(sig []byte) bool {
	_, s, err := parseSignature(sig)
	return err == nil && s.Sign() > 0 && s.Cmp(halfCurveOrder) <= 0
}
