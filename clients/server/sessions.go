// sessions.go - Cookie-keyed session registry with idle expiry.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/xob0t/GoPoster/internal/app"
)

// registry maps session cookies to live sessions.
type registry struct {
	rt *app.Runtime

	mu       sync.Mutex
	sessions map[string]*app.Session
}

func newRegistry(rt *app.Runtime) *registry {
	return &registry{rt: rt, sessions: make(map[string]*app.Session)}
}

// forRequest returns the caller's session, creating one and setting its
// cookie when the request carries none or an expired one.
func (reg *registry) forRequest(w http.ResponseWriter, r *http.Request) *app.Session {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess := reg.get(c.Value); sess != nil {
			sess.Touch()
			return sess
		}
	}

	sess := reg.rt.NewSession()
	reg.mu.Lock()
	reg.sessions[sess.ID] = sess
	n := len(reg.sessions)
	reg.mu.Unlock()
	reg.rt.Metrics.SetActiveSessions(n)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (reg *registry) get(id string) *app.Session {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.sessions[id]
}

func (reg *registry) len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.sessions)
}

// sweep closes sessions idle for longer than ttl and returns how many.
func (reg *registry) sweep(now time.Time, ttl time.Duration) int {
	var expired []*app.Session

	reg.mu.Lock()
	for id, sess := range reg.sessions {
		if now.Sub(sess.IdleSince()) > ttl {
			expired = append(expired, sess)
			delete(reg.sessions, id)
		}
	}
	n := len(reg.sessions)
	reg.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	reg.rt.Metrics.SetActiveSessions(n)
	return len(expired)
}

func (reg *registry) closeAll() {
	reg.mu.Lock()
	all := reg.sessions
	reg.sessions = make(map[string]*app.Session)
	reg.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
	reg.rt.Metrics.SetActiveSessions(0)
}
