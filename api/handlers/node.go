package handlers

import (
	"net/http"

	"bingot/wallet"
)

func (h *Handlers) NodeStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.backend.Status())
}

// ValidateAddress checks the encoding and checksum of ?address=. Addresses
// are standard base64 and may contain '/', so they are not path segments.
func (h *Handlers) ValidateAddress(w http.ResponseWriter, r *http.Request) {
	addr := wallet.Address(r.URL.Query().Get("address"))
	if addr.IsEmpty() {
		h.writeError(w, http.StatusBadRequest, "address query parameter required")
		return
	}
	if err := wallet.ValidateAddress(addr); err != nil {
		h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
		return
	}
	version, _ := wallet.AddressVersion(addr)
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"valid": true, "version": version})
}
