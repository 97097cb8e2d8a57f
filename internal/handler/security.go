package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
)

const (
	userIDHeader = "X-User-ID"
	apiKeyHeader = "api_key"
)

type userKey struct{}

func userFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// requireUser rejects requests without an X-User-ID header.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(userIDHeader))
		if userID == "" {
			respondProblem(w, r, http.StatusUnauthorized, codeUnauthenticated, "X-User-ID header is required")
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, userID)
		ctx = zctx.With(ctx, zap.String("user_id", userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAPIKey authenticates the api_key header against the HMAC-SHA256
// hashes in the key repository and checks the key grants scope.
func (h *Handler) requireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.authenticate(r.Context(), r.Header.Get(apiKeyHeader))
			if err != nil {
				zctx.From(r.Context()).Debug("API key rejected", zap.Error(err))
				respondProblem(w, r, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				respondProblem(w, r, http.StatusForbidden, codeForbidden, "api key lacks scope "+scope)
				return
			}
			ctx := auth.WithKey(r.Context(), info)
			ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *Handler) authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errors.New("missing api key")
	}
	hexHash := auth.HashKey(key, h.pepper)

	info, err := h.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		return nil, errors.Wrap(err, "find key")
	}

	// The repository lookup is by hash; compare again in constant time in
	// case it returned a different row.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored hash")
	}
	computed, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode hash")
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, errors.New("hash mismatch")
	}
	return info, nil
}
