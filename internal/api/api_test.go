package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/pitcharena/internal/admin"
	"github.com/apresai/pitcharena/internal/auth"
	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/generator"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/store"
)

type testServer struct {
	handler http.Handler
	script  *generator.Scripted
	persona persona.Persona
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = persona.Seed(context.Background(), db, time.Now())
	require.NoError(t, err)

	script := generator.NewScripted()
	router := generator.NewRouter(generator.RouterConfig{
		Default:        generator.BackendOpenAI,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
	}, logger)
	router.Register(generator.BackendOpenAI, script)
	router.Register(generator.BackendDeepSeek, script)

	eng := engine.New(db, db, router, logger, engine.Options{})
	srv := NewServer(eng, db, admin.New(db, logger), auth.NewSessions("s3cret"), logger, Options{
		CORSOrigins: []string{"*"},
		Metrics:     http.NotFoundHandler(),
	})
	return &testServer{handler: srv.Handler(), script: script, persona: persona.Defaults()[0]}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func reply(text string, delta int) string {
	b, _ := json.Marshal(map[string]any{"reply_text": text, "score_adjustment": delta, "feedback_hidden": "hidden"})
	return string(b)
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"userId": "u1", "personaId": ts.persona.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decodeBody(t, rec)["session"].(map[string]any)
	return sess["id"].(string)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	ts.script.Push(generator.ScriptStep{Text: reply("Tell me more.", 60)})
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "We have $2M ARR."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 70, body["score"])
	assert.Equal(t, "active", body["status"])
	turn := body["turn"].(map[string]any)
	assert.Equal(t, "Tell me more.", turn["content"])
	assert.EqualValues(t, 20, turn["scoreAdjustment"])

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decodeBody(t, rec)["session"].(map[string]any)
	assert.Len(t, sess["transcript"], 3)

	rec = ts.do(t, http.MethodGet, "/api/sessions?userId=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["sessions"], 1)
}

func TestSubmitTurnErrors(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	t.Run("empty text", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", decodeBody(t, rec)["code"])
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/sessions/nope/turns", map[string]string{"text": "hi"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown backend", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "hi", "backend": "gemini"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("generator down", func(t *testing.T) {
		ts.script.Push(generator.ScriptStep{Err: errors.New("503 from upstream")})
		rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "hi"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["retryable"])
		fb := body["fallback"].(map[string]any)
		assert.Equal(t, true, fb["fallback"])
		assert.Contains(t, fb["content"], "technical difficulties")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/turns", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTerminalSessionConflict(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPatch, "/api/sessions/"+id, map[string]any{"score": 100, "outcome": "win", "endedAt": time.Now().UTC()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "won", decodeBody(t, rec)["session"].(map[string]any)["status"])

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/turns", map[string]string{"text": "one more thing"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_terminal", decodeBody(t, rec)["code"])

	rec = ts.do(t, http.MethodGet, "/api/stats/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["wins"])
	assert.EqualValues(t, 100, stats["winRate"])
}

func TestPatchSessionValidation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPatch, "/api/sessions/"+id, map[string]any{"score": 140})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/sessions/"+id, map[string]any{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/sessions/"+id, map[string]any{"score": 40, "version": 7})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["retryable"])
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatelessChat(t *testing.T) {
	ts := newTestServer(t)
	ts.script.Push(generator.ScriptStep{Text: reply("What's your CAC?", -35)})

	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]any{
		"investorId":   ts.persona.ID,
		"provider":     "deepseek",
		"currentScore": 50,
		"messages": []map[string]string{
			{"role": "investor", "content": "Welcome!"},
			{"role": "user", "content": "We're building a marketplace."},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "What's your CAC?", body["content"])
	assert.EqualValues(t, -20, body["probabilityChange"])
	assert.Equal(t, "hidden", body["feedbackHidden"])

	rec = ts.do(t, http.MethodPost, "/api/chat", map[string]any{"investorId": ts.persona.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersonasAndAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/personas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["personas"], 5)

	rec = ts.do(t, http.MethodGet, "/api/personas/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	newPersona := map[string]any{
		"name": "Ada Grant", "role": "Seed Partner", "region": "Nordics",
		"risk_appetite": "Medium", "target_sector": "Climate", "check_size": "$500K",
		"investment_thesis": "Industrial decarbonization.",
		"talking_style_json": map[string]any{"bluntness": 5, "jargon_level": "low", "favorite_word": "traction", "humor": 4},
	}

	rec = ts.do(t, http.MethodPost, "/api/personas", newPersona)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/auth", map[string]string{"secretKey": "wrong", "action": "login"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])

	rec = ts.do(t, http.MethodPost, "/api/admin/auth", map[string]string{"secretKey": "s3cret", "action": "login"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rec = ts.do(t, http.MethodGet, "/api/admin/check-session", nil, cookies[0])
	assert.Equal(t, true, decodeBody(t, rec)["hasAccess"])
	rec = ts.do(t, http.MethodGet, "/api/admin/check-session", nil)
	assert.Equal(t, false, decodeBody(t, rec)["hasAccess"])

	rec = ts.do(t, http.MethodPost, "/api/personas", newPersona, cookies[0])
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody(t, rec)["persona"].(map[string]any)["id"].(string)

	rec = ts.do(t, http.MethodPatch, "/api/personas/"+id, map[string]any{"region": "Baltics"}, cookies[0])
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Baltics", decodeBody(t, rec)["persona"].(map[string]any)["region"])

	rec = ts.do(t, http.MethodDelete, "/api/personas/"+id, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/personas/"+id, nil, cookies[0])
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/auth", map[string]string{"action": "logout"}, cookies[0])
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.True(t, cleared[0].MaxAge < 0)
}
