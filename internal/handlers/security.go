package handlers

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/sifrokapp/sifrok/internal/auth"
	"github.com/sifrokapp/sifrok/internal/config"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/observability"
)

// SecurityHeaders sets baseline security headers for all responses.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cross-Origin-Opener-Policy", "same-origin")
		headers.Set("Cross-Origin-Resource-Policy", "same-origin")
		headers.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin verifies the bearer token and rejects callers without the
// admin role. Verified claims are added to the request context.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		meter := observability.MeterFromContext(ctx)
		meter.SetAttributes(attribute.String("component", "security.admin"))
		recordRejected := func(reason string) {
			meter.Count("security.admin.rejected", 1, sentry.WithAttributes(attribute.String("reason", reason)))
		}

		raw, err := auth.FromHeader(r.Header.Get("Authorization"))
		if err != nil {
			recordRejected("missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := h.tokens.Parse(raw)
		if err != nil {
			recordRejected("invalid_token")
			h.loggerFromContext(ctx).Warn("rejected admin request with invalid token", "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !claims.IsAdmin() {
			recordRejected("not_admin")
			h.loggerFromContext(ctx).Warn("rejected admin request without admin role", "user_id", claims.Subject, "role", claims.Role)
			writeError(w, http.StatusForbidden, auth.ErrForbidden.Error())
			return
		}

		meter.SetAttributes(
			attribute.String("user.id", claims.Subject),
			attribute.String("user.email", claims.Email),
		)
		logger := h.loggerFromContext(ctx).With("admin_id", claims.Subject)

		ctx = auth.WithClaims(ctx, claims)
		ctx = observability.WithMeter(ctx, meter)
		ctx = logging.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSameOrigin blocks cross-origin browser requests that change state.
// Requests without an Origin header come from API clients and pass.
func (h *Handlers) RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestMutatesState(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		originHeader := strings.TrimSpace(r.Header.Get("Origin"))
		if originHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		meter := observability.MeterFromContext(r.Context())
		meter.Count("security.same_origin.checked", 1)
		if ok, err := h.headerMatchesAllowedHost(originHeader, r); err != nil || !ok {
			meter.Count("security.same_origin.blocked", 1, sentry.WithAttributes(attribute.String("reason", "invalid_origin")))
			h.loggerFromContext(r.Context()).Warn("blocked state-changing request with invalid origin", "origin", originHeader, "error", err)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestMutatesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (h *Handlers) headerMatchesAllowedHost(value string, r *http.Request) (bool, error) {
	parsed, err := url.Parse(value)
	if err != nil {
		return false, fmt.Errorf("failed to parse URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false, errors.New("missing hostname")
	}

	_, ok := allowedRequestHosts(h.config, r)[host]
	return ok, nil
}

func allowedRequestHosts(cfg *config.Config, r *http.Request) map[string]struct{} {
	hosts := map[string]struct{}{}
	if r != nil {
		if host := normalizeHost(r.Host); host != "" {
			hosts[host] = struct{}{}
		}
	}
	if cfg != nil {
		if host := hostFromBaseURL(cfg.BaseURL); host != "" {
			hosts[host] = struct{}{}
		}
	}
	return hosts
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(strings.TrimSpace(host))
	}
	return strings.ToLower(hostport)
}

func hostFromBaseURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
