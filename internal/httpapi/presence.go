package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"relayd/internal/presence"
)

// Headers a caller may use to describe itself.
const (
	HeaderTransport  = "X-Relay-Transport"
	HeaderClientID   = "X-Client-ID"
	HeaderClientName = "X-Client-Name"
	HeaderPlatform   = "X-Client-Platform"
	HeaderSSID       = "X-Client-SSID"
)

type clientCtxKey struct{}

// presenceMiddleware records the caller once the handler has finished, so a
// handler can attach the model it served via noteModel.
func presenceMiddleware(record func(presence.Metadata)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			md := clientMetadata(r)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientCtxKey{}, md)))
			record(*md)
		})
	}
}

func clientMetadata(r *http.Request) *presence.Metadata {
	transport := strings.TrimSpace(r.Header.Get(HeaderTransport))
	if transport == "" {
		transport = "http"
	}
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return &presence.Metadata{
		Transport:  strings.ToLower(transport),
		Identifier: strings.TrimSpace(r.Header.Get(HeaderClientID)),
		Name:       strings.TrimSpace(r.Header.Get(HeaderClientName)),
		Platform:   strings.TrimSpace(r.Header.Get(HeaderPlatform)),
		SSID:       strings.TrimSpace(r.Header.Get(HeaderSSID)),
		Address:    addr,
	}
}

// noteModel attaches the requested model to the caller's presence record.
func noteModel(r *http.Request, model string) {
	if md, ok := r.Context().Value(clientCtxKey{}).(*presence.Metadata); ok {
		md.Model = model
	}
}

// callerOf names the caller in audit lines.
func callerOf(r *http.Request) string {
	if md, ok := r.Context().Value(clientCtxKey{}).(*presence.Metadata); ok {
		switch {
		case md.Name != "":
			return md.Name
		case md.Identifier != "":
			return md.Identifier
		default:
			return md.Address
		}
	}
	return r.RemoteAddr
}
