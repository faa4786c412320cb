package live

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"

	handlers "lorelink/internal/handler"
	"lorelink/internal/session"
)

type TokenParser interface {
	ParseAccessToken(token string) (session.Principal, error)
}

// ServeWS upgrades authenticated requests to a live connection. Browsers cannot
// set headers on a websocket handshake, so ?token= is accepted alongside Bearer.
// The connection outlives the request, so it runs on ctx rather than r.Context().
func ServeWS(ctx context.Context, hub *Hub, tokens TokenParser, origins []string) http.HandlerFunc {
	opts := &websocket.AcceptOptions{OriginPatterns: originPatterns(origins)}

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if token == "" {
			handlers.WriteError(w, "authentication required", http.StatusUnauthorized)
			return
		}

		p, err := tokens.ParseAccessToken(token)
		if err != nil {
			handlers.WriteError(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			slog.Warn("websocket accept failed", "error", err)
			return
		}

		client := NewClient(hub, conn, p.UserID)
		if !hub.join(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		go client.WritePump(ctx)
		go client.ReadPump(ctx)
	}
}

// originPatterns turns CORS origins into the host patterns websocket.Accept matches on.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
