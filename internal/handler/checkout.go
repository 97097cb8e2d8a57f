package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

const idempotencyKeyHeader = "Idempotency-Key"

// finalize places an order from the caller's cart. With an Idempotency-Key
// header, a retried request replays the order created by the first one.
func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	var req finalizeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if key == "" || h.idem == nil {
		h.placeOrder(w, r, userID, req, nil)
		return
	}

	// Keys are scoped per user so two shoppers can not collide.
	scoped := userID + ":" + key
	orderID, reserved, err := h.idem.Reserve(ctx, scoped)
	if err != nil {
		respondError(w, r, apperr.Storage("reserve idempotency key", err))
		return
	}
	if !reserved {
		h.replay(w, r, userID, orderID)
		return
	}

	h.placeOrder(w, r, userID, req, func(orderID string, failed bool) {
		ctx := context.WithoutCancel(ctx)
		lg := zctx.From(ctx)
		if failed {
			if err := h.idem.Release(ctx, scoped); err != nil {
				lg.Warn("Release idempotency key", zap.Error(err))
			}
			return
		}
		if err := h.idem.Complete(ctx, scoped, orderID); err != nil {
			lg.Warn("Complete idempotency key", zap.String("order_id", orderID), zap.Error(err))
		}
	})
}

func (h *Handler) placeOrder(
	w http.ResponseWriter,
	r *http.Request,
	userID string,
	req finalizeRequest,
	done func(orderID string, failed bool),
) {
	o, err := h.checkout.Finalize(r.Context(), checkout.FinalizeRequest{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		PaymentToken:    req.PaymentToken,
	})
	if err != nil {
		if done != nil {
			done("", true)
		}
		respondError(w, r, err)
		return
	}
	if done != nil {
		done(o.ID, false)
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	respondJSON(w, r, http.StatusCreated, o)
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, userID, orderID string) {
	if orderID == "" {
		respondError(w, r, apperr.New(apperr.CodeDuplicateRequest,
			"a checkout with this idempotency key is already in progress"))
		return
	}
	o, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	zctx.From(r.Context()).Debug("Replaying checkout", zap.String("order_id", orderID))
	w.Header().Set("Idempotent-Replayed", "true")
	respondJSON(w, r, http.StatusOK, o)
}
