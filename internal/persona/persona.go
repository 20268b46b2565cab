// Package persona describes the simulated investors a founder pitches to and
// the store contract used to look them up.
package persona

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apresai/pitcharena/internal/pitch"
)

// Jargon levels accepted in Style.JargonLevel.
const (
	JargonLow    = "low"
	JargonMedium = "medium"
	JargonHigh   = "high"
)

// Style shapes how the investor talks. Bluntness and Humor run 1..10.
type Style struct {
	Bluntness       int    `json:"bluntness"`
	JargonLevel     string `json:"jargon_level"`
	SignaturePhrase string `json:"favorite_word"`
	Humor           int    `json:"humor"`
}

// Persona is a read-only investor descriptor consumed by the prompt builder.
type Persona struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	Region           string    `json:"region"`
	LanguageCode     string    `json:"language_code"`
	AvatarURL        string    `json:"avatar_url,omitempty"`
	RiskAppetite     string    `json:"risk_appetite"`
	TargetSectors    string    `json:"target_sector"`
	CheckSize        string    `json:"check_size"`
	InvestmentThesis string    `json:"investment_thesis"`
	Style            Style     `json:"talking_style_json"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks required fields and the style ranges.
func (p *Persona) Validate() error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"name", p.Name},
		{"role", p.Role},
		{"region", p.Region},
		{"investment_thesis", p.InvestmentThesis},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: persona missing %s", pitch.ErrInvalidInput, strings.Join(missing, ", "))
	}
	if p.Style.Bluntness < 1 || p.Style.Bluntness > 10 {
		return fmt.Errorf("%w: bluntness %d outside 1..10", pitch.ErrInvalidInput, p.Style.Bluntness)
	}
	if p.Style.Humor < 1 || p.Style.Humor > 10 {
		return fmt.Errorf("%w: humor %d outside 1..10", pitch.ErrInvalidInput, p.Style.Humor)
	}
	switch p.Style.JargonLevel {
	case JargonLow, JargonMedium, JargonHigh:
	default:
		return fmt.Errorf("%w: jargon level %q", pitch.ErrInvalidInput, p.Style.JargonLevel)
	}
	return nil
}

// Greeting is the synthesized opening line of every session.
func (p *Persona) Greeting() string {
	return fmt.Sprintf("Welcome! I'm %s, %s from %s. I focus on %s with check sizes around %s. "+
		"Tell me about your startup - what problem are you solving and why should I care?",
		p.Name, p.Role, p.Region, p.TargetSectors, p.CheckSize)
}

// NewID returns a random persona id.
func NewID() string {
	return uuid.NewString()
}

// Reader resolves personas. Get returns pitch.ErrPersonaNotFound for unknown ids.
type Reader interface {
	GetPersona(ctx context.Context, id string) (*Persona, error)
	ListPersonas(ctx context.Context) ([]Persona, error)
}

// Store adds the administrative write path.
type Store interface {
	Reader
	CreatePersona(ctx context.Context, p *Persona) error
	UpdatePersona(ctx context.Context, p *Persona) error
	DeletePersona(ctx context.Context, id string) error
}
