package blockchain

import (
	"encoding/hex"
	"fmt"
)

// Hash32 is a SHA-256 digest. It marshals to hex in JSON.
type Hash32 [32]byte

func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

// Short is the first eight bytes in hex, for log lines.
func (h Hash32) Short() string {
	return hex.EncodeToString(h[:8])
}

func (h Hash32) IsZero() bool {
	return h == Hash32{}
}

func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash32) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64 character hex string.
func ParseHash(s string) (Hash32, error) {
	var h Hash32
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid hash length %d, want %d", len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}

// BlockHeader holds every field covered by the proof of work.
type BlockHeader struct {
	Index        uint64 `json:"index"`
	PreviousHash Hash32 `json:"previous_hash"`
	Timestamp    int64  `json:"timestamp"`
	ExtraNonce   uint64 `json:"extra_nonce"`
	Difficulty   uint8  `json:"difficulty"`
	MerkleRoot   Hash32 `json:"merkle_root"`
	Nonce        uint64 `json:"nonce"`
}

// Block is an ordered batch of transactions linked to its parent. Hash is
// set by Seal and must equal ComputeHash(Header.Nonce).
type Block struct {
	Header       BlockHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
	Hash         Hash32        `json:"hash"`
}

// NonCoinbase returns the block's user transactions.
func (b *Block) NonCoinbase() []Transaction {
	txs := make([]Transaction, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		if !tx.IsCoinbase() {
			txs = append(txs, tx)
		}
	}
	return txs
}
