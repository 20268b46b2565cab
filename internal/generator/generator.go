// Package generator turns a persona-conditioned conversation into the
// investor's next reply and score adjustment. Each backend only produces raw
// completion text; the Router adds retries, output validation and the
// degraded fallback so every backend honours the same contract.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/pitcharena/internal/observability"
	"github.com/apresai/pitcharena/internal/pitch"
)

// Backend names a response generator implementation.
type Backend string

const (
	BackendOpenAI   Backend = "openai"
	BackendDeepSeek Backend = "deepseek"
	BackendClaude   Backend = "claude"
	BackendNova     Backend = "nova"
)

// ErrUnknownBackend is returned when a request names a backend that is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Role is the chat role a message is sent under.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation message.
type Message struct {
	Role    Role
	Content string
}

// Request is everything a backend needs for one completion.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int64
}

// Reply is the structured result of a generation. Degraded replies carry a
// zero delta and pitch.UnparsedRationale.
type Reply struct {
	Text       string
	ScoreDelta int
	Rationale  string
	Degraded   bool
}

// Completer returns the raw completion text for a request. Errors are treated
// as transport failures and retried.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	backoffMult           = 2
)

// RouterConfig tunes the router.
type RouterConfig struct {
	Default        Backend
	MaxRetries     int
	InitialBackoff time.Duration
	Metrics        *observability.Metrics
}

// Router selects a backend per call.
type Router struct {
	cfg      RouterConfig
	backends map[Backend]Completer
	logger   *slog.Logger
}

// NewRouter creates an empty router. Register backends before use.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.Default == "" {
		cfg.Default = BackendOpenAI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		backends: make(map[Backend]Completer),
		logger:   logger,
	}
}

// Register adds or replaces a backend.
func (r *Router) Register(b Backend, c Completer) {
	r.backends[b] = c
}

// Backends lists the registered backend names in sorted order.
func (r *Router) Backends() []Backend {
	out := make([]Backend, 0, len(r.backends))
	for b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve maps a requested backend name to a registered backend. An empty
// name selects the default.
func (r *Router) Resolve(name string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	if b == "" {
		b = r.cfg.Default
	}
	if _, ok := r.backends[b]; !ok {
		return "", fmt.Errorf("%w: %w %q", pitch.ErrInvalidInput, ErrUnknownBackend, name)
	}
	return b, nil
}

// Generate runs the request against the backend. Transport failures after
// retries, and cancellation, return pitch.ErrGeneratorUnavailable. Output
// that fails validation is never an error: the reply is degraded instead.
func (r *Router) Generate(ctx context.Context, req Request, backend Backend) (Reply, error) {
	b, err := r.Resolve(string(backend))
	if err != nil {
		return Reply{}, err
	}
	completer := r.backends[b]

	ctx, span := otel.Tracer("pitcharena").Start(ctx, "generator."+string(b))
	defer span.End()
	span.SetAttributes(
		attribute.String("backend", string(b)),
		attribute.Int("messages", len(req.Messages)),
	)

	start := time.Now()
	raw, err := r.completeWithRetry(ctx, b, completer, req)
	r.cfg.Metrics.ObserveGenerator(string(b), time.Since(start), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}

	res := Parse(raw)
	if !res.OK {
		span.SetAttributes(attribute.Bool("degraded", true))
		r.logger.WarnContext(ctx, "generator output degraded",
			"backend", b,
			"reason", res.Reason,
			"raw", truncate(raw, 500),
		)
	}
	return res.Reply, nil
}

func (r *Router) completeWithRetry(ctx context.Context, b Backend, c Completer, req Request) (string, error) {
	var lastErr error
	backoff := r.cfg.InitialBackoff

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s: %w", pitch.ErrGeneratorUnavailable, b, ctx.Err())
		}

		text, err := c.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = fmt.Errorf("%s error (attempt %d/%d): %w", b, attempt, r.cfg.MaxRetries, err)
		r.logger.WarnContext(ctx, "generator attempt failed", "backend", b, "attempt", attempt, "error", err)

		if attempt < r.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %s: %w", pitch.ErrGeneratorUnavailable, b, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}
	}

	return "", fmt.Errorf("%w: %w", pitch.ErrGeneratorUnavailable, lastErr)
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// openingCue stands in for the founder when a conversation opens with the
// investor's greeting, for APIs that require the first message to be a user message.
const openingCue = "(The founder walks into the meeting.)"

func userFirst(msgs []Message) []Message {
	if len(msgs) == 0 || msgs[0].Role == RoleUser {
		return msgs
	}
	return append([]Message{{Role: RoleUser, Content: openingCue}}, msgs...)
}
