package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/marsukat/marsukat-dashboard/internal/platform/httpx"
)

type principalKey struct{}

// ContextWithPrincipal stores the principal on the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Middleware rejects requests without a valid key. The key is read from the
// Authorization bearer header or X-API-Key. When no keys are configured every
// request passes.
func Middleware(svc *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if !svc.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := svc.Authenticate(keyFromRequest(r))
			if err != nil {
				logger.Warn("api key rejected", slog.String("path", r.URL.Path))
				w.Header().Set("WWW-Authenticate", `Bearer realm="marsukat-dashboard"`)
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

func keyFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
