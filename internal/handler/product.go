package handler

import (
	"net/http"

	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

type productResponse struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Price             money.Money `json:"price"`
	Category          string      `json:"category"`
	AvailableQuantity int         `json:"availableQuantity"`
}

func toProductResponse(p catalog.Product) productResponse {
	return productResponse{
		ID:                p.ID,
		Name:              p.Name,
		Price:             p.Price,
		Category:          p.Category,
		AvailableQuantity: p.AvailableQuantity,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	respondJSON(w, r, http.StatusOK, resp)
}
