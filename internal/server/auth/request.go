package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// TokenFromRequest returns the bearer token of r, falling back to the
// "token" query parameter for clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(common.AuthorizationHeaderName); h != "" {
		if token, ok := strings.CutPrefix(h, common.BearerPrefix); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(common.TokenQueryParam)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
