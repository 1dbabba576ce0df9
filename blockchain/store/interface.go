package store

import (
	"errors"
	"math/big"

	"bingot/blockchain"
)

var (
	ErrNotFound     = errors.New("block not found")
	ErrNotLinked    = errors.New("block does not extend the canonical head")
	ErrEmptyChain   = errors.New("canonical chain is empty")
	ErrUnknownBlock = errors.New("block is not stored")
)

// ChainStore keeps every known block, side branches included, together with
// the cumulative work up to it, and tracks which of them form the canonical
// chain. Validation is the caller's job.
type ChainStore interface {

	// Update/Add/Put
	PutBlock(block *blockchain.Block, cumulativeWork *big.Int) error
	ExtendCanonical(hash blockchain.Hash32) error
	ReplaceCanonical(forkHeight uint64, path []blockchain.Hash32) error

	// Getters
	HasBlock(hash blockchain.Hash32) bool
	GetBlockByHash(hash blockchain.Hash32) (*blockchain.Block, error)
	GetBlockByHeight(height uint64) (*blockchain.Block, error)
	GetHeadBlock() (*blockchain.Block, error)
	GetChainHeight() (uint64, error)
	WorkAt(hash blockchain.Hash32) (*big.Int, error)
	Canonical() []*blockchain.Block
	IsConfirmed(signatureKey string) bool
	ConfirmedHeight(signatureKey string) (uint64, bool)
	BlockCount() int
}
