package http

import (
	"net/http"
	"time"

	"cashbook/internal/auth"
	"cashbook/internal/cashbook"
	"cashbook/internal/core"
	"cashbook/internal/log"
)

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// SessionResponse is returned by login and registration.
type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Session   core.Session `json:"session"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.startSession(w, r, log.OpRegister, func(c *auth.Client, in credentials) (core.Session, error) {
		return c.Register(r.Context(), in.Email, in.Password, in.DisplayName)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.startSession(w, r, log.OpSignIn, func(c *auth.Client, in credentials) (core.Session, error) {
		return c.SignIn(r.Context(), in.Email, in.Password)
	})
}

// startSession authenticates through fn and opens a workspace for the new
// token.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, op string, fn func(*auth.Client, credentials) (core.Session, error)) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, op, err)
		return
	}
	in.Email = sanitizeInput(in.Email)
	in.DisplayName = sanitizeInput(in.DisplayName)

	identity := auth.NewClient(s.auth)
	sess, err := fn(identity, in)
	if err != nil {
		log.FromContext(r.Context()).InfoContext(r.Context(), "Authentication rejected",
			log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
		s.fail(w, r, op, err)
		return
	}

	token, expires := identity.Token()
	s.workspaces.Set(token, cashbook.New(identity, s.backend, s.opts.Client))

	log.FromContext(r.Context()).InfoContext(r.Context(), "Session started",
		log.FieldOperation, op,
		log.FieldUserID, sess.UserID)
	status := http.StatusOK
	if op == log.OpRegister {
		status = http.StatusCreated
	}
	writeJSON(w, status, SessionResponse{Token: token, ExpiresAt: expires, Session: sess})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, token string) {
	ws.SignOut()
	s.workspaces.Delete(token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request, ws *cashbook.Client, _ string) {
	sess := ws.Session()
	if sess == nil {
		writeError(w, http.StatusUnauthorized, auth.ErrNoSession.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
