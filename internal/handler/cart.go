package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.ProductID == "" {
		respondError(w, r, apperr.New(apperr.CodeInvalidRequest, "productId is required"))
		return
	}
	if err := h.carts.AddItem(r.Context(), userFromContext(r.Context()), req.ProductID, req.Quantity); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	productID := chi.URLParam(r, "productId")
	if err := h.carts.UpdateQuantity(r.Context(), userFromContext(r.Context()), productID, req.Quantity); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if err := h.carts.RemoveItem(r.Context(), userFromContext(r.Context()), productID); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handler) cancelCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Cancel(r.Context(), userFromContext(r.Context())); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondCart writes the caller's cart priced against the live catalog.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, status int) {
	priced, err := h.checkout.GetCart(r.Context(), userFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, status, priced)
}
