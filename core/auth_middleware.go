package core

import (
	"context"
	"errors"
	"net/http"

	"github.com/putto11262002/roomchat/pkg/router"
)

const (
	key            sessionKey = "session"
	AuthCookieName            = "session"
)

type sessionKey = string

func contextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, key, session)
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(key).(Session)
	return session, ok
}

// LookupSession returns the session attached to the request by one of the
// session middlewares.
func LookupSession(r *http.Request) (Session, bool) {
	return sessionFromContext(r.Context())
}

// SessionFromRequest extracts the session from the request context.
// It must be called in handlers that are protected by RequireSession.
// It panics if the session is not found in the request context.
func SessionFromRequest(r *http.Request) Session {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		panic("session not found in request context: call this function in handlers that are protected by RequireSession")
	}
	return session
}

func SessionCookie(session Session) *http.Cookie {
	return &http.Cookie{
		Name:     AuthCookieName,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
}

func ExpiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
}

func resolveSession(a AuthStore, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(AuthCookieName)
	if err != nil || cookie.Valid() != nil || cookie.Value == "" {
		return nil, ErrUnauthenticated
	}
	return a.Session(r.Context(), cookie.Value)
}

// SessionMiddleware attaches the session to the request context when the
// request carries a valid session cookie. Requests without one pass through.
func SessionMiddleware(a AuthStore) router.Middleware {
	return func(next http.Handler) router.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			session, err := resolveSession(a, r)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					next.ServeHTTP(w, r)
					return nil
				}
				return err
			}
			next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), *session)))
			return nil
		}
	}
}

// RequireSession validates the session cookie and attaches the session to
// the request context. The session is guaranteed to be attached for
// subsequent handlers.
func RequireSession(a AuthStore) router.Middleware {

	return func(next http.Handler) router.HandlerFunc {

		authErr := router.NewJsonError(http.StatusUnauthorized, "unauthenticated")

		return func(w http.ResponseWriter, r *http.Request) error {
			if session, ok := sessionFromContext(r.Context()); ok {
				next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), session)))
				return nil
			}

			session, err := resolveSession(a, r)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					return authErr
				}
				return err
			}

			next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), *session)))
			return nil
		}
	}
}
