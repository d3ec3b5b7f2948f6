// Package persona defines the simulated counterparts a rep practices against and
// tracks how much a counterpart trusts and cares during a conversation.
package persona

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPersona is returned when a persona id is not in the catalog.
var ErrUnknownPersona = errors.New("unknown persona")

type Role string

const (
	RoleHomeowner Role = "homeowner"
	RoleSkeptic   Role = "skeptic"
	RoleBusy      Role = "busy_professional"
	RoleBudget    Role = "budget_conscious"
	RoleFriendly  Role = "friendly"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Budget is the spending band the persona will consider, in dollars.
type Budget struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// SuccessCriteria are the topics the rep must cover before the persona agrees.
type SuccessCriteria struct {
	RequiresScheduling bool `yaml:"requires_scheduling" json:"requiresScheduling"`
	RequiresBudget     bool `yaml:"requires_budget" json:"requiresBudget"`
	RequiresROI        bool `yaml:"requires_roi" json:"requiresRoi"`
	RequiresSafety     bool `yaml:"requires_safety" json:"requiresSafety"`
}

// Persona is an immutable counterpart definition.
type Persona struct {
	ID         string          `yaml:"id" json:"id"`
	Name       string          `yaml:"name" json:"name"`
	Role       Role            `yaml:"role" json:"role"`
	Difficulty Difficulty      `yaml:"difficulty" json:"difficulty"`
	PainPoints []string        `yaml:"pain_points" json:"painPoints"`
	Objections []string        `yaml:"objections" json:"objections"`
	Budget     Budget          `yaml:"budget" json:"budget"`
	Urgency    string          `yaml:"urgency" json:"urgency"`
	HiddenGoal string          `yaml:"hidden_goal" json:"hiddenGoal"`
	Success    SuccessCriteria `yaml:"success_criteria" json:"successCriteria"`

	// StartingSentiment overrides the difficulty default when set.
	StartingSentiment *float64 `yaml:"starting_sentiment,omitempty" json:"startingSentiment,omitempty"`
}

// Validate checks the fields every persona needs.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("persona %q: missing id", p.Name)
	}
	switch p.Role {
	case RoleHomeowner, RoleSkeptic, RoleBusy, RoleBudget, RoleFriendly:
	default:
		return fmt.Errorf("persona %s: unknown role %q", p.ID, p.Role)
	}
	switch p.Difficulty {
	case Easy, Medium, Hard:
	default:
		return fmt.Errorf("persona %s: unknown difficulty %q", p.ID, p.Difficulty)
	}
	if p.Budget.Max < p.Budget.Min {
		return fmt.Errorf("persona %s: budget max %d below min %d", p.ID, p.Budget.Max, p.Budget.Min)
	}
	if s := p.StartingSentiment; s != nil && (*s < 0 || *s > 100) {
		return fmt.Errorf("persona %s: starting sentiment %v outside [0,100]", p.ID, *s)
	}
	return nil
}

// Sentiment returns the score a conversation with this persona starts at. Harder
// personas start lower.
func (p Persona) Sentiment() float64 {
	if p.StartingSentiment != nil {
		return *p.StartingSentiment
	}
	switch p.Difficulty {
	case Easy:
		return 55
	case Hard:
		return 35
	default:
		return 45
	}
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// Parse reads either a single persona document or a document with a personas list.
func Parse(data []byte) ([]Persona, error) {
	var file personaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse personas: %w", err)
	}

	personas := file.Personas
	if len(personas) == 0 {
		var single Persona
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse persona: %w", err)
		}
		personas = []Persona{single}
	}

	for _, p := range personas {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return personas, nil
}
