package wsapi

import (
	"net/http"
	"strings"
)

// bearerFromQueryOrHeader extracts the same "<secret>:<userId>[:flag]..."
// token the HTTP surface parses from an Authorization header, but also
// accepts it via a ?token= query parameter — the browser WebSocket API
// cannot set arbitrary request headers, so the query parameter is the only
// way a plain client can authenticate the upgrade.
func bearerFromQueryOrHeader(r *http.Request) (secret, userID string, ok bool) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			return "", "", false
		}
		raw = strings.TrimPrefix(header, prefix)
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
