package node

import (
	"fmt"

	"bingot/blockchain/chain"
	"bingot/mempool"
	"bingot/mining"
)

// Config holds all configuration for a full node
type Config struct {
	NodeID string

	// Difficulty is the leading zero bits required of blocks this node mines.
	Difficulty uint8
	// Reward is paid to the node's own address by every mined block.
	Reward uint64
	// StrictSenderBinding rejects transactions whose From address is not
	// derived from the attached public key.
	StrictSenderBinding bool
	MempoolSize         int

	// Chain.MinDifficulty is the floor for blocks received from elsewhere.
	// Zero means the node's own Difficulty.
	Chain  chain.Config
	Mining mining.Config
}

func DefaultConfig() Config {
	return Config{
		NodeID:      "node",
		Difficulty:  16,
		Reward:      50,
		MempoolSize: mempool.DefaultMaxSize,
		Chain:       chain.DefaultConfig(),
		Mining:      mining.DefaultConfig(),
	}
}

// ChainConfig returns the chain configuration with the difficulty floor
// resolved.
func (c Config) ChainConfig() chain.Config {
	cfg := c.Chain
	if cfg.MinDifficulty == 0 {
		cfg.MinDifficulty = c.Difficulty
	}
	return cfg
}

func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	if c.Difficulty < c.Chain.MinDifficulty {
		return fmt.Errorf("mining difficulty %d below chain minimum %d", c.Difficulty, c.Chain.MinDifficulty)
	}
	if c.MempoolSize < 0 {
		return fmt.Errorf("mempool size must not be negative, got %d", c.MempoolSize)
	}
	if err := c.Chain.Validate(); err != nil {
		return err
	}
	return c.Mining.Validate()
}
