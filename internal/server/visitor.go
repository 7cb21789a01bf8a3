package server

import (
	"context"
	"net/http"

	"github.com/bryan-buckman/unitview/internal/persist"
	"github.com/bryan-buckman/unitview/internal/session"
	"github.com/google/uuid"
)

const sessionCookie = "sid"

// sessionMaxAge is how long the browser keeps the session id.
const sessionMaxAge = 30 * 24 * 60 * 60

// visitor is the per-request view of one browser: its cookie-backed durable
// flags and its server-side session.
type visitor struct {
	id      string
	durable *persist.CookieJar
	session *session.Store
}

func (s *Server) visitor(ctx context.Context, w http.ResponseWriter, r *http.Request) *visitor {
	id := sessionID(w, r)
	return &visitor{
		id:      id,
		durable: persist.NewCookieJar(w, r),
		session: session.For(ctx, s.opts.Sessions, id, s.log),
	}
}

// sessionID returns the visitor's session id, issuing a new one when the
// cookie is missing or malformed.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   sessionMaxAge,
	})
	return id
}
