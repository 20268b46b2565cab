package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apresai/pitcharena/internal/admin"
	"github.com/apresai/pitcharena/internal/auth"
	"github.com/apresai/pitcharena/internal/persona"
)

// GET /api/personas
func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	list, err := s.personas.ListPersonas(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if list == nil {
		list = []persona.Persona{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"personas": list})
}

// GET /api/personas/{id}
func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.personas.GetPersona(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persona": p})
}

// POST /api/personas (admin)
func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	var p persona.Persona
	if err := decode(r, &p); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	created, err := s.admin.CreatePersona(r.Context(), auth.PrincipalFromContext(r.Context()), p)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"persona": created})
}

// PATCH /api/personas/{id} (admin)
func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	var patch admin.PersonaPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	updated, err := s.admin.UpdatePersona(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persona": updated})
}

// DELETE /api/personas/{id} (admin)
func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeletePersona(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adminAuthRequest struct {
	SecretKey string `json:"secretKey"`
	Action    string `json:"action"`
}

// POST /api/admin/auth logs in with the admin secret or logs out.
func (s *Server) handleAdminAuth(w http.ResponseWriter, r *http.Request) {
	var req adminAuthRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	switch req.Action {
	case "logout":
		http.SetCookie(w, auth.ClearCookie(s.opts.SecureCookies))
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case "login", "":
		token, exp, err := s.sessions.Login(req.SecretKey)
		if errors.Is(err, auth.ErrUnauthorized) {
			s.logger.WarnContext(r.Context(), "admin login rejected")
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid secret key"})
			return
		}
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		http.SetCookie(w, auth.SessionCookie(token, exp, s.opts.SecureCookies))
		s.logger.InfoContext(r.Context(), "admin logged in", "expires_at", exp)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid action"})
	}
}

// GET /api/admin/check-session
func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "hasAccess": p.Admin})
}
