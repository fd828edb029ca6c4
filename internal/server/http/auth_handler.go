package http

import (
	"crypto/subtle"
	"net/http"

	"jobrelay/internal/config"
	"jobrelay/internal/logging"
)

// AuthHandler checks credentials against the fixed list from configuration.
// This is a collaborator boundary, not an account system: no sessions, no
// tokens, just the equality check the UI shell expects.
type AuthHandler struct {
	users  []config.Credential
	logger logging.Logger
}

// NewAuthHandler creates an auth handler over the configured credential list.
func NewAuthHandler(users []config.Credential) *AuthHandler {
	return &AuthHandler{
		users:  users,
		logger: logging.NewComponentLogger("AuthHandler"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	for _, user := range h.users {
		emailMatch := subtle.ConstantTimeCompare([]byte(user.Email), []byte(req.Email)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(user.Password), []byte(req.Password)) == 1
		if emailMatch && passMatch {
			h.logger.Info("Login successful for %s", req.Email)
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"message": "Login successful",
				"email":   req.Email,
			})
			return
		}
	}

	h.logger.Warn("Login failed for %s", req.Email)
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"success": false,
		"message": "Invalid email or password",
	})
}
