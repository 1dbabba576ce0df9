package handlers

import (
	"net/http"
	"strconv"
)

const maxBlocksPerPage = 100

func (h *Handlers) ChainHeight(w http.ResponseWriter, r *http.Request) {
	c := h.backend.Chain()
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"height": c.Length(),
		"work":   c.TotalWork().String(),
	})
}

func (h *Handlers) ChainHead(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.backend.Chain().Tip())
}

// ChainBlocks pages through the canonical chain from ?from= (default 0),
// returning at most ?limit= blocks.
func (h *Handlers) ChainBlocks(w http.ResponseWriter, r *http.Request) {
	from, err := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		from = 0
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > maxBlocksPerPage {
		limit = 10
	}

	blocks := h.backend.Chain().Blocks()
	if from > uint64(len(blocks)) {
		from = uint64(len(blocks))
	}
	page := blocks[from:]
	if len(page) > limit {
		page = page[:limit]
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"blocks": page,
		"total":  len(blocks),
	})
}

func (h *Handlers) VerifyChain(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Chain().Verify(); err != nil {
		h.logger.Error().Err(err).Msg("Chain verification failed")
		h.writeJSONResponse(w, http.StatusInternalServerError, map[string]interface{}{"valid": false, "error": err.Error()})
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]bool{"valid": true})
}
