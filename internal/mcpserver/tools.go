package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

var tracer = otel.Tracer("pitcharena-mcp")

const backendDescription = "Response generator: openai, deepseek, claude or nova. Omit for the server default."

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "list_personas",
			Description: "List the investor personas a founder can pitch to, with their focus sectors and check sizes.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
		},
		{
			Name:        "start_pitch",
			Description: "Start a pitch session with an investor persona. Returns the session ID and the investor's opening line. The funding probability starts at 50%.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"persona_id": map[string]any{
						"type":        "string",
						"description": "The persona ID from list_personas",
					},
					"user_id": map[string]any{
						"type":        "string",
						"description": "Founder identifier used for statistics",
						"default":     "mcp",
					},
					"backend": map[string]any{
						"type":        "string",
						"description": backendDescription,
					},
				},
				Required: []string{"persona_id"},
			},
		},
		{
			Name:        "pitch_turn",
			Description: "Send the founder's next message. Returns the investor's reply, the score change and the session status. The session is won at 100% and lost at 0%.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"session_id": map[string]any{
						"type":        "string",
						"description": "The session ID returned from start_pitch",
					},
					"text": map[string]any{
						"type":        "string",
						"description": "What the founder says",
					},
					"backend": map[string]any{
						"type":        "string",
						"description": backendDescription,
					},
				},
				Required: []string{"session_id", "text"},
			},
		},
		{
			Name:        "get_pitch",
			Description: "Get a pitch session's transcript, score and status.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"session_id": map[string]any{
						"type":        "string",
						"description": "The session ID returned from start_pitch",
					},
				},
				Required: []string{"session_id"},
			},
		},
		{
			Name:        "pitch_stats",
			Description: "Win/loss statistics over a founder's finished sessions.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"user_id": map[string]any{
						"type":        "string",
						"description": "Founder identifier",
						"default":     "mcp",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	engine   *engine.Engine
	personas persona.Reader
	log      *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(eng *engine.Engine, personas persona.Reader, logger *slog.Logger) *Handlers {
	return &Handlers{engine: eng, personas: personas, log: logger}
}

// HandleListPersonas returns the persona catalog.
func (h *Handlers) HandleListPersonas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_personas")
	defer span.End()

	list, err := h.personas.ListPersonas(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list personas failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list personas: %v", err)), nil
	}

	personas := make([]map[string]any, 0, len(list))
	for _, p := range list {
		personas = append(personas, map[string]any{
			"persona_id":     p.ID,
			"name":           p.Name,
			"role":           p.Role,
			"region":         p.Region,
			"target_sectors": p.TargetSectors,
			"check_size":     p.CheckSize,
		})
	}
	span.SetAttributes(attribute.Int("result_count", len(personas)))

	return jsonResult(map[string]any{
		"personas": personas,
		"count":    len(personas),
	})
}

// HandleStartPitch opens a session.
func (h *Handlers) HandleStartPitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.start_pitch")
	defer span.End()

	personaID := mcp.ParseString(req, "persona_id", "")
	userID := mcp.ParseString(req, "user_id", "mcp")
	backend := mcp.ParseString(req, "backend", "")

	span.SetAttributes(
		attribute.String("persona_id", personaID),
		attribute.String("backend", backend),
	)

	if personaID == "" {
		span.SetStatus(codes.Error, "missing persona_id")
		return mcp.NewToolResultError("persona_id is required"), nil
	}

	s, err := h.engine.CreateSession(ctx, userID, personaID, backend)
	if err != nil {
		return toolError(span, "start pitch", err), nil
	}

	span.SetAttributes(attribute.String("session_id", s.ID))
	h.log.InfoContext(ctx, "Pitch started over MCP", "session_id", s.ID, "persona_id", personaID)

	return jsonResult(map[string]any{
		"session_id":    s.ID,
		"status":        s.Status,
		"score":         s.Score,
		"investor_line": s.Turns[0].Text,
		"message":       "Use pitch_turn with this session_id to continue the pitch.",
	})
}

// HandlePitchTurn submits one founder message.
func (h *Handlers) HandlePitchTurn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.pitch_turn")
	defer span.End()

	id := mcp.ParseString(req, "session_id", "")
	text := mcp.ParseString(req, "text", "")
	backend := mcp.ParseString(req, "backend", "")

	span.SetAttributes(
		attribute.String("session_id", id),
		attribute.String("backend", backend),
	)

	if id == "" {
		span.SetStatus(codes.Error, "missing session_id")
		return mcp.NewToolResultError("session_id is required"), nil
	}

	res, err := h.engine.SubmitUserTurn(ctx, id, text, backend)
	if errors.Is(err, pitch.ErrGeneratorUnavailable) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generator unavailable")
		return jsonResult(map[string]any{
			"session_id": id,
			"reply":      pitch.ApologyText,
			"fallback":   true,
			"retryable":  true,
		})
	}
	if err != nil {
		return toolError(span, "pitch turn", err), nil
	}

	span.SetAttributes(
		attribute.Int("score", res.Score),
		attribute.String("status", string(res.Status)),
	)

	result := map[string]any{
		"session_id":   id,
		"reply":        res.Turn.Text,
		"score_change": res.Turn.ScoreDelta,
		"score":        res.Score,
		"status":       res.Status,
	}
	if res.Degraded {
		result["degraded"] = true
	}
	return jsonResult(result)
}

// HandleGetPitch returns a session.
func (h *Handlers) HandleGetPitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_pitch")
	defer span.End()

	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing session_id")
		return mcp.NewToolResultError("session_id is required"), nil
	}
	span.SetAttributes(attribute.String("session_id", id))

	s, err := h.engine.GetSession(ctx, id)
	if err != nil {
		return toolError(span, "get pitch", err), nil
	}

	transcript := make([]map[string]any, 0, len(s.Turns))
	for _, t := range s.Turns {
		turn := map[string]any{
			"role":    t.Speaker,
			"content": t.Text,
		}
		if t.ScoreDelta != 0 {
			turn["score_change"] = t.ScoreDelta
		}
		transcript = append(transcript, turn)
	}

	result := map[string]any{
		"session_id": s.ID,
		"persona_id": s.PersonaID,
		"status":     s.Status,
		"score":      s.Score,
		"started_at": s.StartedAt,
		"transcript": transcript,
	}
	if s.EndedAt != nil {
		result["ended_at"] = s.EndedAt
	}
	if s.Backend != "" {
		result["backend"] = s.Backend
	}
	return jsonResult(result)
}

// HandlePitchStats returns the founder's win/loss record.
func (h *Handlers) HandlePitchStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.pitch_stats")
	defer span.End()

	userID := mcp.ParseString(req, "user_id", "mcp")
	span.SetAttributes(attribute.String("user_id", userID))

	st := h.engine.Stats(ctx, userID)
	return jsonResult(map[string]any{
		"user_id":        userID,
		"total_sessions": st.TotalSessions,
		"wins":           st.Wins,
		"losses":         st.Losses,
		"win_rate":       st.WinRate,
	})
}

// toolError turns an engine error into a tool-level error result.
func toolError(span trace.Span, op string, err error) *mcp.CallToolResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
