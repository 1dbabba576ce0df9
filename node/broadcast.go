package node

import "bingot/blockchain"

// Broadcaster hands blocks and transactions to the network layer.
// Implementations must not block the caller for long.
type Broadcaster interface {
	BroadcastBlock(block *blockchain.Block)
	BroadcastTransaction(tx blockchain.Transaction)
}

// NopBroadcaster drops everything.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastBlock(*blockchain.Block)          {}
func (NopBroadcaster) BroadcastTransaction(blockchain.Transaction) {}
