package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

type listOrdersResponse struct {
	Orders []order.Summary `json:"orders"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.orders.ListOrders(r.Context(), userFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []order.Summary{}
	}
	respondJSON(w, r, http.StatusOK, listOrdersResponse{Orders: summaries})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, o)
}
