package metadata

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"kvault/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the real client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// client, proxy1, proxy2, ...
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}

// Describe summarises the calling client for audit details.
// Keys are omitted when the value is unknown.
func Describe(ctx context.Context) map[string]any {
	out := map[string]any{}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		out["clientIp"] = ip
	}
	raw := requestcontext.UserAgent(ctx)
	if raw == "" {
		return out
	}
	ua := useragent.New(raw)
	if name, version := ua.Browser(); name != "" {
		out["browser"] = strings.TrimSpace(name + " " + version)
	}
	if os := ua.OS(); os != "" {
		out["os"] = os
	}
	if ua.Mobile() {
		out["mobile"] = true
	}
	if ua.Bot() {
		out["bot"] = true
	}
	return out
}
