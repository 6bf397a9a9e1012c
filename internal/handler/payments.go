package handler

import (
	"net/http"
)

// paymentReturn handles the customer's browser coming back from the gateway.
func (h *Handler) paymentReturn(w http.ResponseWriter, r *http.Request) {
	decision, err := h.provider.HandleReturn(r.Context(), r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	http.Redirect(w, r, decision.RedirectURL, http.StatusFound)
}

// paymentNotify handles the gateway's server-to-server notification. The
// provider decides the acknowledgement; it is never an error status.
func (h *Handler) paymentNotify(w http.ResponseWriter, r *http.Request) {
	ack := h.provider.HandleNotify(r.Context(), r.URL.Query())
	w.WriteHeader(ack.Status)
}
