package plan

import (
	"context"
	"errors"
	"fmt"
)

// Catalog is the read-only plan table. It is safe for concurrent use.
type Catalog struct {
	defs map[Type]Definition
}

// NewCatalog loads and validates definitions from src.
// Panics if src is nil; every tier must be present and well formed.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	defs, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	for _, t := range order {
		d, ok := defs[t]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s plan", ErrInvalidPlanConfiguration, t)
		}
		if d.Type != t {
			return nil, fmt.Errorf("%w: %s plan declares type %q", ErrInvalidPlanConfiguration, t, d.Type)
		}
		if err := d.validate(); err != nil {
			return nil, err
		}
	}
	if len(defs) != len(order) {
		return nil, fmt.Errorf("%w: unexpected plans in table", ErrInvalidPlanConfiguration)
	}

	return &Catalog{defs: defs}, nil
}

// MustDefault returns the catalog built from the embedded plan table.
func MustDefault() *Catalog {
	c, err := NewCatalog(context.Background(), DefaultSource())
	if err != nil {
		panic(err)
	}
	return c
}

// Definition returns the definition of t.
// It fails only for identifiers outside the tier order.
func (c *Catalog) Definition(t Type) (Definition, error) {
	d, ok := c.defs[t]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrInvalidPlan, t)
	}
	return d, nil
}

// MustDefinition is like Definition but panics on unknown identifiers.
// Use it only with values that were already validated with Parse.
func (c *Catalog) MustDefinition(t Type) Definition {
	d, err := c.Definition(t)
	if err != nil {
		panic(err)
	}
	return d
}

// Definitions returns every definition in tier order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(order))
	for _, t := range order {
		out = append(out, c.defs[t])
	}
	return out
}
