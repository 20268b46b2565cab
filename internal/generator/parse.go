package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/apresai/pitcharena/internal/pitch"
)

// EmptyCompletionText is the reply used when a backend returns no content.
const EmptyCompletionText = "I need more information."

const emptyCompletionRationale = "No response"

// ParseResult is the tagged outcome of validating backend output. When OK is
// false, Reply already holds the degraded fallback and Reason says why.
type ParseResult struct {
	OK     bool
	Reply  Reply
	Raw    string
	Reason string
}

type wireReply struct {
	ReplyText       *string         `json:"reply_text"`
	ScoreAdjustment json.RawMessage `json:"score_adjustment"`
	FeedbackHidden  *string         `json:"feedback_hidden"`
}

// Parse validates raw completion text against the reply contract:
// reply_text must be a non-empty string, score_adjustment an integral number
// and feedback_hidden, when present, a string. The delta is returned as
// proposed; clamping belongs to the session.
func Parse(raw string) ParseResult {
	if strings.TrimSpace(raw) == "" {
		return ParseResult{
			OK:    true,
			Raw:   raw,
			Reply: Reply{Text: EmptyCompletionText, Rationale: emptyCompletionRationale},
		}
	}

	text := stripScratchpad(raw)
	text = stripMarkdownFences(text)
	text = strings.TrimSpace(extractJSON(text))

	w, err := decode(text)
	if err != nil {
		return degraded(raw, fmt.Sprintf("decode: %v", err))
	}
	reply, reason := validate(w)
	if reason != "" {
		return degraded(raw, reason)
	}
	return ParseResult{OK: true, Reply: reply, Raw: raw}
}

func decode(text string) (wireReply, error) {
	var w wireReply
	if !strings.HasPrefix(text, "{") {
		return w, fmt.Errorf("no JSON object in output")
	}
	err := json.Unmarshal([]byte(text), &w)
	if err == nil {
		return w, nil
	}
	repaired, rerr := jsonrepair.JSONRepair(text)
	if rerr != nil {
		return w, fmt.Errorf("invalid JSON: %w", err)
	}
	var rw wireReply
	if err := json.Unmarshal([]byte(repaired), &rw); err != nil {
		return w, fmt.Errorf("invalid JSON after repair: %w", err)
	}
	return rw, nil
}

func validate(w wireReply) (Reply, string) {
	if w.ReplyText == nil || strings.TrimSpace(*w.ReplyText) == "" {
		return Reply{}, "reply_text missing or empty"
	}
	raw := bytes.TrimSpace(w.ScoreAdjustment)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Reply{}, "score_adjustment missing"
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return Reply{}, "score_adjustment is not a number"
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return Reply{}, "score_adjustment is not an integer"
	}
	// Bounded before the int conversion; the session clamps to ±MaxDelta.
	f = math.Max(math.Min(f, 1e6), -1e6)

	r := Reply{
		Text:       strings.TrimSpace(*w.ReplyText),
		ScoreDelta: int(f),
	}
	if w.FeedbackHidden != nil {
		r.Rationale = *w.FeedbackHidden
	}
	return r, ""
}

func degraded(raw, reason string) ParseResult {
	text := strings.TrimSpace(stripScratchpad(raw))
	if text == "" {
		text = pitch.ApologyText
	}
	return ParseResult{
		OK:  false,
		Raw: raw,
		Reply: Reply{
			Text:      text,
			Rationale: pitch.UnparsedRationale,
			Degraded:  true,
		},
		Reason: fmt.Sprintf("%v: %s", pitch.ErrGeneratorMalformedOutput, reason),
	}
}

var (
	scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")
)

func stripScratchpad(text string) string {
	return scratchpadRe.ReplaceAllString(text, "")
}

func stripMarkdownFences(text string) string {
	if matches := fenceRe.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1]
	}
	return text
}

func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
