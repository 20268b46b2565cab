// Package admin manages the persona catalogue. Every operation takes the
// caller's auth.Principal and refuses non-admins.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apresai/pitcharena/internal/auth"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

// PersonaPatch carries the fields to change. Nil fields are left alone.
type PersonaPatch struct {
	Name             *string        `json:"name,omitempty"`
	Role             *string        `json:"role,omitempty"`
	Region           *string        `json:"region,omitempty"`
	LanguageCode     *string        `json:"language_code,omitempty"`
	AvatarURL        *string        `json:"avatar_url,omitempty"`
	RiskAppetite     *string        `json:"risk_appetite,omitempty"`
	TargetSectors    *string        `json:"target_sector,omitempty"`
	CheckSize        *string        `json:"check_size,omitempty"`
	InvestmentThesis *string        `json:"investment_thesis,omitempty"`
	Style            *persona.Style `json:"talking_style_json,omitempty"`
}

func (pp PersonaPatch) apply(p *persona.Persona) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Name, pp.Name)
	set(&p.Role, pp.Role)
	set(&p.Region, pp.Region)
	set(&p.LanguageCode, pp.LanguageCode)
	set(&p.AvatarURL, pp.AvatarURL)
	set(&p.RiskAppetite, pp.RiskAppetite)
	set(&p.TargetSectors, pp.TargetSectors)
	set(&p.CheckSize, pp.CheckSize)
	set(&p.InvestmentThesis, pp.InvestmentThesis)
	if pp.Style != nil {
		p.Style = *pp.Style
	}
}

// Service is the persona administration surface.
type Service struct {
	store  persona.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates the admin service.
func New(store persona.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// CreatePersona validates and stores a new persona. The id is assigned here
// when the caller leaves it empty.
func (s *Service) CreatePersona(ctx context.Context, who auth.Principal, p persona.Persona) (*persona.Persona, error) {
	if err := who.RequireAdmin(); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = persona.NewID()
	}
	if p.LanguageCode == "" {
		p.LanguageCode = "en-US"
	}
	p.CreatedAt = s.now().UTC()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreatePersona(ctx, &p); err != nil {
		return nil, fmt.Errorf("create persona: %w", err)
	}
	s.logger.InfoContext(ctx, "persona created", "persona_id", p.ID, "name", p.Name)
	return &p, nil
}

// UpdatePersona merges the patch over the stored persona.
func (s *Service) UpdatePersona(ctx context.Context, who auth.Principal, id string, patch PersonaPatch) (*persona.Persona, error) {
	if err := who.RequireAdmin(); err != nil {
		return nil, err
	}
	current, err := s.store.GetPersona(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *current
	patch.apply(&updated)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePersona(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update persona: %w", err)
	}
	s.logger.InfoContext(ctx, "persona updated", "persona_id", id)
	return &updated, nil
}

// DeletePersona removes a persona. Sessions that reference it keep their
// transcripts but can no longer take turns.
func (s *Service) DeletePersona(ctx context.Context, who auth.Principal, id string) error {
	if err := who.RequireAdmin(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: persona id is required", pitch.ErrInvalidInput)
	}
	if err := s.store.DeletePersona(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "persona deleted", "persona_id", id)
	return nil
}
