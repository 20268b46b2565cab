package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/pitcharena/internal/generator"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

func titan() *persona.Persona {
	p := persona.Defaults()[0]
	return &p
}

func TestSystemPromptContents(t *testing.T) {
	p := titan()
	sys := SystemPrompt(p, 42)

	for _, want := range []string{
		p.InvestmentThesis,
		"- Name: Marc Chen",
		"- Role: The Titan",
		"- Region: USA",
		"- Risk Appetite: High Risk, High Reward",
		"- Target Sectors: B2B SaaS, AI Infrastructure, Fintech",
		"- Check Size: $5M - $25M",
		"- Bluntness Level: 9/10",
		"- Jargon Level: high",
		`- Favorite Term: "moat"`,
		"- Humor: 2/10",
		"CURRENT FUNDING PROBABILITY: 42%",
		`"reply_text"`,
		`"score_adjustment": <integer between -20 and 20>`,
		`"feedback_hidden"`,
		"below 30% = very skeptical, above 70% = more engaged",
		"Be brutally direct and challenging.",
	} {
		assert.Contains(t, sys, want)
	}
}

func TestDemeanor(t *testing.T) {
	assert.Equal(t, "brutally direct and challenging", Demeanor(8))
	assert.Equal(t, "firm but fair", Demeanor(7))
	assert.Equal(t, "firm but fair", Demeanor(5))
	assert.Equal(t, "supportive but probing", Demeanor(4))
	assert.Equal(t, "supportive but probing", Demeanor(1))
}

func TestBuildMapsRoles(t *testing.T) {
	now := time.Now()
	s := pitch.NewSession("S1", "", "p", "openai", "Welcome!", now)
	require.NoError(t, s.AppendUserTurn("We sell shovels.", now))

	req := Build(titan(), s.Turns, s.Score)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, generator.Message{Role: generator.RoleAssistant, Content: "Welcome!"}, req.Messages[0])
	assert.Equal(t, generator.Message{Role: generator.RoleUser, Content: "We sell shovels."}, req.Messages[1])
	assert.Equal(t, 0.8, req.Temperature)
	assert.Equal(t, int64(300), req.MaxTokens)
	assert.Contains(t, req.System, "CURRENT FUNDING PROBABILITY: 50%")
}

func TestBuildIsPure(t *testing.T) {
	turns := []pitch.Turn{{Speaker: pitch.SpeakerUser, Text: "hi"}}
	assert.Equal(t, Build(titan(), turns, 70), Build(titan(), turns, 70))
}
