package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"bingot/blockchain"
	"bingot/node"
	"bingot/wallet"
)

// PostTransaction accepts a transaction signed elsewhere.
func (h *Handlers) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var tx blockchain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	accepted, err := h.backend.ReceiveTransaction(tx)
	if err != nil {
		h.writeJSONResponse(w, http.StatusBadRequest, map[string]string{
			"status": "invalid",
			"error":  err.Error(),
		})
		return
	}

	status := "accepted"
	if !accepted {
		status = "known"
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": status,
		"hash":   tx.Hash().String(),
	})
}

type transferRequest struct {
	To     wallet.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// PostTransfer has the node sign and queue a payment from its own wallet.
func (h *Handlers) PostTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.To.IsEmpty() {
		h.writeError(w, http.StatusBadRequest, "Recipient required")
		return
	}

	tx, err := h.backend.Transfer(req.To, req.Amount)
	switch {
	case errors.Is(err, node.ErrMempoolFull):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, tx)
}

func (h *Handlers) GetMempool(w http.ResponseWriter, r *http.Request) {
	txs := h.backend.Mempool().Snapshot()
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}
