package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/storage/memory"
)

func TestOpenBackend_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := validConfig()
	cfg.APIKey = "secret"
	cfg.APIKeyPepper = "pepper"

	b, err := openBackend(ctx, zap.NewNop(), &cfg)
	require.NoError(t, err)
	defer b.Close()

	products, err := b.catalog.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, products)

	info, err := b.apikeys.FindByHash(ctx, auth.HashKey("secret", []byte("pepper")))
	require.NoError(t, err)
	assert.True(t, info.HasScope(auth.ScopeCreateOrder))

	assert.IsType(t, &memory.IdempotencyStore{}, b.idem)
	assert.Empty(t, b.readiness)
}

func TestOpenBackend_MissingSeedFile(t *testing.T) {
	cfg := validConfig()
	cfg.SeedFile = "does-not-exist.json"

	_, err := openBackend(context.Background(), zap.NewNop(), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load catalog seed")
}
