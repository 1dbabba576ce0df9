package blockchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"bingot/wallet"
)

// Transaction transfers Amount from one address to another. An empty From
// marks a coinbase, which carries no signature.
//
// PublicKey is the signer's key as supplied alongside the transaction. It is
// not bound to From unless the caller checks BindsSender.
type Transaction struct {
	From      wallet.Address `json:"from"`
	To        wallet.Address `json:"to"`
	Amount    uint64         `json:"amount"`
	PublicKey []byte         `json:"public_key,omitempty"`
	Signature []byte         `json:"signature,omitempty"`
}

// Signer produces signatures for a single public key.
type Signer interface {
	PublicKey() wallet.PublicKey
	Sign(digest []byte) ([]byte, error)
}

// canonicalMessage fixes the field order of the signed encoding.
type canonicalMessage struct {
	From   wallet.Address `json:"from"`
	To     wallet.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// NewTransaction builds an unsigned transfer. No balance check is made.
func NewTransaction(from, to wallet.Address, amount uint64) *Transaction {
	return &Transaction{From: from, To: to, Amount: amount}
}

// NewCoinbase builds the reward transaction a block assembler pays itself.
func NewCoinbase(to wallet.Address, reward uint64) Transaction {
	return Transaction{To: to, Amount: reward}
}

func (tx *Transaction) IsCoinbase() bool {
	return tx.From.IsEmpty()
}

func (tx *Transaction) IsSigned() bool {
	return len(tx.Signature) > 0
}

// CanonicalMessage is the order-stable JSON encoding of from, to and amount.
func (tx *Transaction) CanonicalMessage() []byte {
	msg, err := json.Marshal(canonicalMessage{From: tx.From, To: tx.To, Amount: tx.Amount})
	if err != nil {
		// strings and integers always encode
		panic(fmt.Sprintf("canonical message: %v", err))
	}
	return msg
}

// checkAddresses rejects addresses that do not survive the canonical
// encoding unchanged.
func (tx *Transaction) checkAddresses() error {
	if !utf8.ValidString(string(tx.From)) {
		return fmt.Errorf("%w: from is not valid UTF-8", ErrInvalidField)
	}
	if !utf8.ValidString(string(tx.To)) {
		return fmt.Errorf("%w: to is not valid UTF-8", ErrInvalidField)
	}
	return nil
}

// SigningDigest is the SHA-256 of the canonical message.
func (tx *Transaction) SigningDigest() [32]byte {
	return sha256.Sum256(tx.CanonicalMessage())
}

// Sign records a signature and the signer's public key. A transaction can be
// signed once.
func (tx *Transaction) Sign(signer Signer) error {
	if tx.IsSigned() {
		return ErrAlreadySigned
	}
	if tx.IsCoinbase() {
		return fmt.Errorf("%w: from (coinbase transactions are not signed)", ErrMissingField)
	}
	if tx.To.IsEmpty() {
		return fmt.Errorf("%w: to", ErrMissingField)
	}
	if err := tx.checkAddresses(); err != nil {
		return err
	}

	digest := tx.SigningDigest()
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}

	pub := signer.PublicKey()
	tx.PublicKey = pub.Bytes()
	tx.Signature = sig
	return nil
}

// Verify checks the signature against pub. A coinbase always verifies.
// Malformed signatures return false; only structurally missing fields are
// reported as errors.
func (tx *Transaction) Verify(pub wallet.PublicKey) (bool, error) {
	if tx.IsCoinbase() {
		return true, nil
	}
	if tx.To.IsEmpty() {
		return false, fmt.Errorf("%w: to", ErrMissingField)
	}
	if !tx.IsSigned() {
		return false, fmt.Errorf("%w: signature", ErrMissingField)
	}
	if err := tx.checkAddresses(); err != nil {
		return false, err
	}

	digest := tx.SigningDigest()
	return wallet.Verify(pub, digest[:], tx.Signature), nil
}

// VerifyAttached verifies against the public key carried by the transaction.
func (tx *Transaction) VerifyAttached() (bool, error) {
	if tx.IsCoinbase() {
		return true, nil
	}
	if len(tx.PublicKey) == 0 {
		return false, fmt.Errorf("%w: public_key", ErrMissingField)
	}
	pub, err := wallet.ParsePublicKey(tx.PublicKey)
	if err != nil {
		return false, nil
	}
	return tx.Verify(pub)
}

// BindsSender reports whether From is the address derived from PublicKey.
func (tx *Transaction) BindsSender() bool {
	if tx.IsCoinbase() {
		return true
	}
	pub, err := wallet.ParsePublicKey(tx.PublicKey)
	if err != nil {
		return false
	}
	return wallet.DeriveAddress(pub, wallet.ProtocolVersion) == tx.From
}

// Key identifies a signed transaction in the mempool and within a block.
func (tx *Transaction) Key() string {
	return hex.EncodeToString(tx.Signature)
}

// SameTransfer compares the unsigned content of two transactions.
func (tx *Transaction) SameTransfer(other *Transaction) bool {
	return tx.From == other.From && tx.To == other.To && tx.Amount == other.Amount
}

// Hash commits to the signed transaction, including key and signature.
func (tx *Transaction) Hash() Hash32 {
	h := sha256.New()
	h.Write(tx.CanonicalMessage())
	h.Write(tx.PublicKey)
	h.Write(tx.Signature)
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}

// lessBySignature orders a coinbase first, then ascending signature bytes.
func lessBySignature(a, b *Transaction) bool {
	if a.IsCoinbase() != b.IsCoinbase() {
		return a.IsCoinbase()
	}
	return bytes.Compare(a.Signature, b.Signature) < 0
}
