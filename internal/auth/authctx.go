package auth

import (
	"context"
	"time"

	"github.com/billix-app/billix/internal/errs"
	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const sessionKey ctxKey = "billix.session"

// WithSession stores the authenticated session in context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromCtx fetches the session from context.
func SessionFromCtx(ctx context.Context) (Session, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}

// RequireUser returns the session's user ID, or errs.ErrNotAuthenticated when
// the context carries no session or the session has expired at now.
func RequireUser(ctx context.Context, now time.Time) (uuid.UUID, error) {
	s, ok := SessionFromCtx(ctx)
	if !ok || s.UserID == uuid.Nil || s.Expired(now) {
		return uuid.Nil, errs.ErrNotAuthenticated
	}
	return s.UserID, nil
}
