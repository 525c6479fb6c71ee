package memory

import (
	"context"
	"slices"

	"github.com/xenking/shop/internal/domain/auth"
)

var _ auth.Repository = apiKeyRepo{}

type apiKeyRepo struct {
	view viewFunc
}

func (r apiKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	var found auth.APIKeyInfo
	err := r.view(func(st *state) error {
		info, ok := st.apiKeys[hash]
		if !ok {
			return auth.ErrNotFound
		}
		found = info
		found.Scopes = slices.Clone(info.Scopes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r apiKeyRepo) Upsert(_ context.Context, info auth.APIKeyInfo) error {
	return r.view(func(st *state) error {
		for hash, existing := range st.apiKeys {
			if existing.ID == info.ID {
				delete(st.apiKeys, hash)
			}
		}
		info.Scopes = slices.Clone(info.Scopes)
		st.apiKeys[info.KeyHash] = info
		return nil
	})
}
