package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Gate is one named stage in a journey. A gate with a price is unlocked
// by purchase; a free gate is advanced automatically once the
// conversation has enough substance (measured in user turns).
type Gate struct {
	Name              string `yaml:"name"`
	AdvanceAfterTurns int    `yaml:"advance_after_turns"`
	PriceCents        int64  `yaml:"price_cents"`
	DeliverableTitle  string `yaml:"deliverable_title"`
}

// Journey is an ordered sequence of gates describing one advisory track
// (e.g. selling a business vs. acquiring one).
type Journey struct {
	Name  string `yaml:"name"`
	Gates []Gate `yaml:"gates"`
}

// Journeys holds all configured advisory tracks.
type Journeys struct {
	Journeys []Journey `yaml:"journeys"`
}

// DefaultJourneyName is assigned to conversations that start without an
// explicit track selection.
const DefaultJourneyName = "acquisition"

// DefaultJourneys returns the built-in gate definitions, used when no
// YAML override is configured.
func DefaultJourneys() *Journeys {
	return &Journeys{
		Journeys: []Journey{
			{
				Name: "acquisition",
				Gates: []Gate{
					{Name: "intake", AdvanceAfterTurns: 0},
					{Name: "profile", AdvanceAfterTurns: 2},
					{Name: "valuation", AdvanceAfterTurns: 4, PriceCents: 4900, DeliverableTitle: "Valuation Report"},
					{Name: "diligence", AdvanceAfterTurns: 6, PriceCents: 9900, DeliverableTitle: "Diligence Checklist"},
					{Name: "closing", AdvanceAfterTurns: 9, PriceCents: 14900, DeliverableTitle: "Closing Playbook"},
				},
			},
			{
				Name: "exit",
				Gates: []Gate{
					{Name: "intake", AdvanceAfterTurns: 0},
					{Name: "readiness", AdvanceAfterTurns: 2},
					{Name: "valuation", AdvanceAfterTurns: 4, PriceCents: 4900, DeliverableTitle: "Valuation Report"},
					{Name: "marketing", AdvanceAfterTurns: 7, PriceCents: 9900, DeliverableTitle: "Confidential Information Memorandum"},
				},
			},
		},
	}
}

// LoadJourneys reads gate definitions from a YAML file, falling back to
// the defaults when path is empty.
func LoadJourneys(path string) (*Journeys, error) {
	if path == "" {
		return DefaultJourneys(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journeys file: %w", err)
	}

	var j Journeys
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse journeys yaml: %w", err)
	}
	if err := j.validate(); err != nil {
		return nil, err
	}

	return &j, nil
}

func (j *Journeys) validate() error {
	if len(j.Journeys) == 0 {
		return fmt.Errorf("journeys config defines no journeys")
	}
	for _, journey := range j.Journeys {
		if journey.Name == "" {
			return fmt.Errorf("journey with empty name")
		}
		if len(journey.Gates) == 0 {
			return fmt.Errorf("journey %q defines no gates", journey.Name)
		}
		seen := make(map[string]bool, len(journey.Gates))
		for _, g := range journey.Gates {
			if g.Name == "" {
				return fmt.Errorf("journey %q has a gate with empty name", journey.Name)
			}
			if seen[g.Name] {
				return fmt.Errorf("journey %q repeats gate %q", journey.Name, g.Name)
			}
			seen[g.Name] = true
		}
	}
	return nil
}

// Find returns the journey with the given name, or nil.
func (j *Journeys) Find(name string) *Journey {
	for i := range j.Journeys {
		if j.Journeys[i].Name == name {
			return &j.Journeys[i]
		}
	}
	return nil
}

// GateIndex returns the position of a gate in the journey, or -1.
func (jn *Journey) GateIndex(name string) int {
	for i, g := range jn.Gates {
		if g.Name == name {
			return i
		}
	}
	return -1
}
