// Package handler exposes the cart, checkout and order services over HTTP.
//
// Shoppers are identified by the X-User-ID header set by the upstream
// identity provider. Checkout additionally requires a service API key with the
// create_order scope.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Idempotency remembers which order a checkout request key produced.
type Idempotency interface {
	// Reserve claims key. When the key is already taken it reports the
	// order created for it, or an empty id while that request is running.
	Reserve(ctx context.Context, key string) (orderID string, reserved bool, err error)
	// Complete records the order created for key.
	Complete(ctx context.Context, key, orderID string) error
	// Release frees key so the request can be retried.
	Release(ctx context.Context, key string) error
}

// Config holds the handler dependencies.
type Config struct {
	Products catalog.Lister
	Carts    *cart.Service
	Checkout *checkout.Service
	Orders   *order.Service
	APIKeys  auth.Repository
	Pepper   []byte
	// Idempotency is optional. Without it Idempotency-Key headers are
	// ignored.
	Idempotency Idempotency
}

// Handler serves the /api routes.
type Handler struct {
	products catalog.Lister
	carts    *cart.Service
	checkout *checkout.Service
	orders   *order.Service
	apikeys  auth.Repository
	pepper   []byte
	idem     Idempotency
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		products: cfg.Products,
		carts:    cfg.Carts,
		checkout: cfg.Checkout,
		orders:   cfg.Orders,
		apikeys:  cfg.APIKeys,
		pepper:   cfg.Pepper,
		idem:     cfg.Idempotency,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/products", h.listProducts)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.cancelCart)
			r.Post("/items", h.addItem)
			r.Put("/items/{productId}", h.updateItem)
			r.Delete("/items/{productId}", h.removeItem)
		})

		r.With(h.requireAPIKey(auth.ScopeCreateOrder)).Post("/checkout", h.finalize)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderId}", h.getOrder)
	})
}

// Routes returns a router serving the API under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondProblem(w, r, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondProblem(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
	r.Route("/api", h.Mount)
	return r
}
