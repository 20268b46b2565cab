package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/pitch"
)

type createSessionRequest struct {
	UserID    string `json:"userId"`
	PersonaID string `json:"personaId"`
	Backend   string `json:"backend"`
}

// POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if req.PersonaID == "" {
		writeError(w, r, s.logger, fmt.Errorf("%w: personaId is required", pitch.ErrInvalidInput))
		return
	}
	sess, err := s.engine.CreateSession(r.Context(), req.UserID, req.PersonaID, req.Backend)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": sess})
}

// GET /api/sessions?userId=
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.engine.ListSessions(r.Context(), r.URL.Query().Get("userId"))
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

type patchSessionRequest struct {
	Transcript *[]pitch.Turn    `json:"transcript"`
	Score      *int             `json:"score"`
	Status     *string          `json:"status"`
	Outcome    *string          `json:"outcome"`
	EndedAt    *json.RawMessage `json:"endedAt"`
	Backend    *string          `json:"backend"`
	Version    *int             `json:"version"`
}

func (req patchSessionRequest) toPatch() (pitch.Patch, error) {
	p := pitch.Patch{
		Turns:     req.Transcript,
		Score:     req.Score,
		Backend:   req.Backend,
		IfVersion: req.Version,
	}
	status := req.Status
	if status == nil {
		status = req.Outcome
	}
	if status != nil {
		st, err := pitch.ParseStatus(*status)
		if err != nil {
			return pitch.Patch{}, err
		}
		p.Status = &st
	}
	if req.EndedAt != nil {
		if string(*req.EndedAt) == "null" {
			p.ClearEndedAt = true
		} else {
			var t time.Time
			if err := json.Unmarshal(*req.EndedAt, &t); err != nil {
				return pitch.Patch{}, fmt.Errorf("%w: endedAt: %v", pitch.ErrInvalidInput, err)
			}
			p.EndedAt = &t
		}
	}
	return p, nil
}

// PATCH /api/sessions/{id}
func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	var req patchSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	p, err := req.toPatch()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	sess, err := s.engine.PatchSession(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

// DELETE /api/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitTurnRequest struct {
	Text    string `json:"text"`
	Backend string `json:"backend"`
}

// POST /api/sessions/{id}/turns
func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req submitTurnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	res, err := s.engine.SubmitUserTurn(r.Context(), chi.URLParam(r, "id"), req.Text, req.Backend)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type chatRequest struct {
	Messages     []engine.ChatMessage `json:"messages"`
	PersonaID    string               `json:"personaId"`
	InvestorID   string               `json:"investorId"`
	Backend      string               `json:"backend"`
	Provider     string               `json:"provider"`
	CurrentScore *int                 `json:"currentScore"`
}

// POST /api/chat is the stateless round trip used by the web client. The
// score it reports is advisory; nothing is stored.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	personaID := req.PersonaID
	if personaID == "" {
		personaID = req.InvestorID
	}
	backend := req.Backend
	if backend == "" {
		backend = req.Provider
	}
	score := pitch.StartingScore
	if req.CurrentScore != nil {
		score = *req.CurrentScore
	}
	if personaID == "" {
		writeError(w, r, s.logger, fmt.Errorf("%w: personaId is required", pitch.ErrInvalidInput))
		return
	}

	reply, err := s.engine.Chat(r.Context(), engine.ChatRequest{
		PersonaID:    personaID,
		Backend:      backend,
		Messages:     req.Messages,
		CurrentScore: score,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// GET /api/stats/{userId}
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Stats(r.Context(), chi.URLParam(r, "userId"))
	writeJSON(w, http.StatusOK, map[string]any{"stats": st})
}
