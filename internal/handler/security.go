package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop/internal/domain/auth"
)

// HeaderAPIKey carries the client's API key.
const HeaderAPIKey = "api_key"

// SecurityHandler authenticates mutating requests via HMAC-SHA256 hashed API
// keys and checks the key's scopes.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Require wraps next so that it only runs for requests presenting a key that
// grants scope.
func (s *SecurityHandler) Require(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := s.authenticate(r)
		if err != nil {
			zctx.From(ctx).Debug("API key rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !info.HasScope(scope) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *SecurityHandler) authenticate(r *http.Request) (*auth.APIKeyInfo, error) {
	key := r.Header.Get(HeaderAPIKey)
	if key == "" {
		return nil, errors.New("missing api key")
	}
	hexHash := auth.Hash(s.pepper, key)

	info, err := s.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}

	// The stored hash is compared in constant time in case the repository
	// matched on something other than exact equality.
	computed, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode computed hash")
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored hash")
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, errors.New("api key hash mismatch")
	}
	return info, nil
}
