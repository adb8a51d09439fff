package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// Authenticator validates raw API keys against a scope.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

type keyInfoKey struct{}

// KeyFromContext returns the API key that authorized the request.
func KeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(keyInfoKey{}).(*auth.APIKeyInfo)
	return info, ok
}

func (h *Handler) requireWrite(next http.HandlerFunc) http.Handler {
	return h.requireScope(auth.ScopeCatalogWrite, next)
}

func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := h.keys.Authenticate(ctx, r.Header.Get(APIKeyHeader), scope)
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(ctx).Error("Authenticate", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ctx = zctx.With(ctx, zap.String("api_key", info.Name))
		next(w, r.WithContext(context.WithValue(ctx, keyInfoKey{}, info)))
	})
}
