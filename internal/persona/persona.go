// Package persona defines the simulated expert viewpoints that negotiate
// creative decisions.
package persona

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
)

// Persona is a stateless expert viewpoint. The same Persona takes part in
// any number of topics.
type Persona struct {
	ID        string
	Name      string
	Expertise []string
	Weight    float64
}

// HasTag reports whether the persona lists tag among its expertise,
// ignoring case.
func (p Persona) HasTag(tag string) bool {
	for _, e := range p.Expertise {
		if strings.EqualFold(e, tag) {
			return true
		}
	}
	return false
}

func (p Persona) String() string {
	return fmt.Sprintf("%s (%s, w=%.2f)", p.Name, p.ID, p.Weight)
}

// Catalog is an ordered, read-only set of personas.
type Catalog struct {
	personas []Persona
	byID     map[string]int
}

// NewCatalog builds a catalog. IDs must be unique and weights positive.
func NewCatalog(personas []Persona) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(personas))}
	for _, p := range personas {
		if p.ID == "" {
			return nil, errors.NewValidationError("persona id is required").WithField("persona.id")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, errors.NewValidationError("duplicate persona").WithField("persona.id").WithValue(p.ID)
		}
		if p.Weight <= 0 {
			return nil, errors.NewValidationError("persona weight must be positive").WithField("persona.weight").WithValue(p.Weight)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		p.Expertise = slices.Clone(p.Expertise)
		c.byID[p.ID] = len(c.personas)
		c.personas = append(c.personas, p)
	}
	return c, nil
}

// FromConfig returns the configured catalog, or the built-in one when the
// configuration declares no personas.
func FromConfig(entries []config.PersonaConfig) (*Catalog, error) {
	if len(entries) == 0 {
		return Default(), nil
	}
	personas := make([]Persona, 0, len(entries))
	for _, e := range entries {
		personas = append(personas, Persona{
			ID:        e.ID,
			Name:      e.Name,
			Expertise: e.Expertise,
			Weight:    e.Weight,
		})
	}
	return NewCatalog(personas)
}

// All returns the personas in catalog order.
func (c *Catalog) All() []Persona {
	out := make([]Persona, len(c.personas))
	copy(out, c.personas)
	return out
}

// Get looks a persona up by ID.
func (c *Catalog) Get(id string) (Persona, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Persona{}, false
	}
	return c.personas[i], true
}

// Len returns the number of personas.
func (c *Catalog) Len() int {
	return len(c.personas)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(builtin)
	if err != nil {
		panic(err) // builtin is static
	}
	return c
}

var builtin = []Persona{
	{ID: "director", Name: "Creative Director", Expertise: []string{"narrative", "storytelling", "tone", "visual"}, Weight: 1.5},
	{ID: "scriptwriter", Name: "Scriptwriter", Expertise: []string{"script", "narrative", "hook", "tone"}, Weight: 1.2},
	{ID: "cinematographer", Name: "Cinematographer", Expertise: []string{"visual", "camera", "color", "composition"}, Weight: 1.2},
	{ID: "editor", Name: "Editor", Expertise: []string{"pacing", "rhythm", "structure", "editing"}, Weight: 1.1},
	{ID: "sound", Name: "Sound Designer", Expertise: []string{"audio", "music", "voice", "rhythm"}, Weight: 1.0},
	{ID: "growth", Name: "Growth Marketer", Expertise: []string{"hook", "engagement", "audience", "tiktok", "shorts", "reels"}, Weight: 1.0},
	{ID: "brand", Name: "Brand Strategist", Expertise: []string{"brand", "tone", "color", "audience", "youtube", "instagram"}, Weight: 0.9},
	{ID: "motion", Name: "Motion Designer", Expertise: []string{"motion", "visual", "pacing", "illustration"}, Weight: 0.9},
	{ID: "educator", Name: "Learning Designer", Expertise: []string{"structure", "clarity", "narrative", "students"}, Weight: 0.8},
}
