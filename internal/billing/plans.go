// Package billing holds the subscription plan catalogue and the quota checks
// derived from it. Plans are loaded once from configuration at startup and are
// immutable afterwards: there is no plans table, no runtime mutation, and no
// cache invalidation problem. Changing the catalogue is a config change and a
// restart, which matches how rarely pricing changes and keeps every replica
// trivially consistent.
package billing

import (
	"fmt"

	"github.com/oneira/oneira/internal/config"
)

// Plan describes one subscription tier. An allowance of 0 means unlimited.
type Plan struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	PriceEURMonth          float64 `json:"priceEurMonth"`
	MonthlyGenerations     int     `json:"monthlyGenerations"`
	MaxPhotos              int     `json:"maxPhotos"`
	MaxImagesPerGeneration int     `json:"maxImagesPerGeneration"`
}

// Unlimited reports whether the plan has no monthly generation cap.
func (p Plan) Unlimited() bool {
	return p.MonthlyGenerations == 0
}

// Catalogue is the immutable plan set. Safe for concurrent reads.
type Catalogue struct {
	plans     map[string]Plan
	ordered   []Plan
	defaultID string
}

// NewCatalogue builds the catalogue from configuration. Config validation has
// already checked id uniqueness and that the default id exists; this re-checks
// so the package stands on its own.
func NewCatalogue(cfg *config.PlansConfig) (*Catalogue, error) {
	if len(cfg.Catalogue) == 0 {
		return nil, fmt.Errorf("plan catalogue is empty")
	}

	c := &Catalogue{
		plans:     make(map[string]Plan, len(cfg.Catalogue)),
		ordered:   make([]Plan, 0, len(cfg.Catalogue)),
		defaultID: cfg.Default,
	}
	for _, pc := range cfg.Catalogue {
		if _, dup := c.plans[pc.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", pc.ID)
		}
		p := Plan{
			ID:                     pc.ID,
			Name:                   pc.Name,
			PriceEURMonth:          pc.PriceEURMo,
			MonthlyGenerations:     pc.MonthlyGens,
			MaxPhotos:              pc.MaxPhotos,
			MaxImagesPerGeneration: pc.MaxImagesGen,
		}
		c.plans[p.ID] = p
		c.ordered = append(c.ordered, p)
	}

	if _, ok := c.plans[c.defaultID]; !ok {
		return nil, fmt.Errorf("default plan %q not in catalogue", c.defaultID)
	}

	return c, nil
}

// Get returns the plan with the given id.
func (c *Catalogue) Get(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Resolve returns the plan for the given id, falling back to the default plan
// when the id is unknown. A user row can reference a plan that was later
// removed from the catalogue; falling back keeps such accounts usable instead
// of locking them out.
func (c *Catalogue) Resolve(id string) Plan {
	if p, ok := c.plans[id]; ok {
		return p
	}
	return c.plans[c.defaultID]
}

// Default returns the plan assigned to newly created users.
func (c *Catalogue) Default() Plan {
	return c.plans[c.defaultID]
}

// List returns the plans in configuration order.
func (c *Catalogue) List() []Plan {
	out := make([]Plan, len(c.ordered))
	copy(out, c.ordered)
	return out
}
