package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/kart-checkout/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository keeps API keys by hash.
type APIKeyRepository struct {
	mu     sync.RWMutex
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeyRepository returns an empty repository.
func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{byHash: make(map[string]auth.APIKeyInfo)}
}

// Upsert stores info, replacing any key with the same id.
func (r *APIKeyRepository) Upsert(_ context.Context, info auth.APIKeyInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, k := range r.byHash {
		if k.ID == info.ID {
			delete(r.byHash, hash)
		}
	}
	info.Scopes = slices.Clone(info.Scopes)
	r.byHash[info.KeyHash] = info
	return nil
}

// FindByHash returns the key with the given hash or auth.ErrKeyNotFound.
func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	k.Scopes = slices.Clone(k.Scopes)
	return &k, nil
}
