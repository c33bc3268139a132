package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
)

// HeaderAPIKey is accepted as an alternative to a Bearer token.
const HeaderAPIKey = "X-API-Key"

// publicPaths skip authentication.
var publicPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type apiKey struct {
	secret []byte
	id     string
}

// keyID is a short fingerprint of the key, safe to log.
func keyID(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}

// APIKeyMiddleware rejects requests that do not present one of apiKeys,
// either as "Authorization: Bearer <key>" or in the X-API-Key header.
// Blank keys are ignored; with no keys left the middleware is a no-op.
// The matched key's fingerprint is added to the request logger as key_id.
func APIKeyMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make([]apiKey, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, apiKey{secret: []byte(k), id: keyID(k)})
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			presented, msg := credential(r)
			if msg != "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
				return
			}

			id, ok := match(keys, presented)
			if !ok {
				logpkg.FromContext(r.Context()).Warn("api key rejected", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}

			ctx := logpkg.With(r.Context(), zap.String("key_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credential extracts the presented key. A non-empty msg describes why none was usable.
func credential(r *http.Request) (key, msg string) {
	if v := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); v != "" {
		return v, ""
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "missing credentials: send Authorization: Bearer <key> or " + HeaderAPIKey
	}
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization header must use Bearer scheme"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

// match checks presented against every key and returns the fingerprint of the hit.
func match(keys []apiKey, presented string) (string, bool) {
	p := []byte(presented)
	id := ""
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k.secret, p) == 1 {
			id = k.id
		}
	}
	return id, id != ""
}
