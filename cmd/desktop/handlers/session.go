package handlers

import (
	"net/http"

	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Sessions stores the login.
type Sessions interface {
	Load() (*models.Session, error)
	Login(sess models.Session) error
	Logout() error
}

// SessionHandler handles login state reported by the UI shell.
type SessionHandler struct {
	sessions Sessions
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions Sessions) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Get handles GET /session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load()
	if err != nil {
		writeError(w, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"logged_in": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logged_in": true, "session": sess})
}

// Login handles POST /session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var sess models.Session
	if !decode(w, r, &sess) {
		return
	}
	if err := h.sessions.Login(sess); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logged_in": true, "session": sess})
}

// Logout handles POST /session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"logged_in": false})
}
