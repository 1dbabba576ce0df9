package handlers

import (
	"encoding/json"
	"net/http"

	"bingot/blockchain"
	"bingot/blockchain/chain"
	"bingot/mempool"
	"bingot/node"
	"bingot/wallet"

	"github.com/rs/zerolog"
)

// Backend is the node surface the HTTP handlers need.
type Backend interface {
	Chain() *chain.Chain
	Mempool() *mempool.Mempool
	Status() node.Status
	ReceiveBlock(block *blockchain.Block) (chain.AddResult, error)
	ReceiveTransaction(tx blockchain.Transaction) (bool, error)
	Transfer(to wallet.Address, amount uint64) (*blockchain.Transaction, error)
}

type Handlers struct {
	backend Backend
	logger  zerolog.Logger
}

func New(backend Backend, logger zerolog.Logger) *Handlers {
	return &Handlers{
		backend: backend,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSONResponse(w, status, map[string]string{"error": message})
}
