// Package prompt composes the generator request for an investor turn from the
// persona, the transcript so far and the current funding probability.
package prompt

import (
	"fmt"
	"strings"

	"github.com/apresai/pitcharena/internal/generator"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

// Sampling settings for investor replies.
const (
	Temperature = 0.8
	MaxTokens   = 300
)

// Build returns the request for the investor's next reply. It is pure: the
// same inputs always give the same request.
func Build(p *persona.Persona, history []pitch.Turn, score int) generator.Request {
	msgs := make([]generator.Message, 0, len(history))
	for _, t := range history {
		role := generator.RoleUser
		if t.Speaker == pitch.SpeakerInvestor {
			role = generator.RoleAssistant
		}
		msgs = append(msgs, generator.Message{Role: role, Content: t.Text})
	}
	return generator.Request{
		System:      SystemPrompt(p, score),
		Messages:    msgs,
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	}
}

// SystemPrompt renders the persona and scoring contract.
func SystemPrompt(p *persona.Persona, score int) string {
	s := p.Style
	var b strings.Builder

	b.WriteString(p.InvestmentThesis)
	b.WriteString("\n\nINVESTOR PROFILE:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Role: %s\n", p.Role)
	fmt.Fprintf(&b, "- Region: %s\n", p.Region)
	fmt.Fprintf(&b, "- Risk Appetite: %s\n", p.RiskAppetite)
	fmt.Fprintf(&b, "- Target Sectors: %s\n", p.TargetSectors)
	fmt.Fprintf(&b, "- Check Size: %s\n", p.CheckSize)

	b.WriteString("\nCOMMUNICATION STYLE:\n")
	fmt.Fprintf(&b, "- Bluntness Level: %d/10 (1=gentle, 10=brutally direct)\n", s.Bluntness)
	fmt.Fprintf(&b, "- Jargon Level: %s\n", s.JargonLevel)
	fmt.Fprintf(&b, "- Favorite Term: %q\n", s.SignaturePhrase)
	fmt.Fprintf(&b, "- Humor: %d/10\n", s.Humor)

	fmt.Fprintf(&b, "\nCURRENT FUNDING PROBABILITY: %d%%\n", score)

	fmt.Fprintf(&b, `
RESPONSE FORMAT:
You must respond in valid JSON with this exact structure:
{
  "reply_text": "Your response to the founder (2-4 sentences, direct and challenging)",
  "score_adjustment": <integer between -%d and %d>,
  "feedback_hidden": "Internal reasoning for your score adjustment"
}

SCORING GUIDELINES:
- Strong answers with data/metrics: +10 to +20
- Good but incomplete answers: +3 to +9
- Vague or unclear answers: -5 to -10
- Red flags or concerning answers: -10 to -20
- Current score affects your tone: below 30%% = very skeptical, above 70%% = more engaged
`, pitch.MaxDelta, pitch.MaxDelta)

	fmt.Fprintf(&b, "\nBe %s. Always use your favorite term %q when relevant. Challenge assumptions specific to %s and %s.",
		Demeanor(s.Bluntness), s.SignaturePhrase, p.RiskAppetite, p.TargetSectors)

	return b.String()
}

// Demeanor maps bluntness to the investor's overall manner.
func Demeanor(bluntness int) string {
	switch {
	case bluntness > 7:
		return "brutally direct and challenging"
	case bluntness > 4:
		return "firm but fair"
	default:
		return "supportive but probing"
	}
}
