package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"bingot/blockchain"

	"github.com/gorilla/mux"
)

// PostBlock submits a mined block, as a peer would.
func (h *Handlers) PostBlock(w http.ResponseWriter, r *http.Request) {
	// 1. Deserialize
	var block blockchain.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// 2. Business Logic
	res, err := h.backend.ReceiveBlock(&block)
	switch {
	case errors.Is(err, blockchain.ErrOrphanBlock):
		h.writeJSONResponse(w, http.StatusAccepted, map[string]string{
			"status": res.Status.String(),
			"hash":   block.Hash.String(),
		})
		return
	case err != nil:
		h.logger.Warn().Err(err).Str("hash", block.Hash.Short()).Msg("Block rejected")
		h.writeError(w, http.StatusBadRequest, "Block validation failed: "+err.Error())
		return
	}

	// 3. Success Response
	h.logger.Info().Str("hash", block.Hash.Short()).Str("status", res.Status.String()).Msg("Block submitted")
	h.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"status":       res.Status.String(),
		"hash":         block.Hash.String(),
		"tip":          h.backend.Chain().LastHash().String(),
		"disconnected": len(res.Disconnected),
	})
}

func (h *Handlers) GetBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash, err := blockchain.ParseHash(mux.Vars(r)["hash"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid block hash format (must be 64 hex characters)")
		return
	}

	block, err := h.backend.Chain().BlockByHash(hash)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Block not found")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, block)
}

func (h *Handlers) GetBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid block height")
		return
	}

	block, err := h.backend.Chain().BlockAt(height)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Block not found")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, block)
}
