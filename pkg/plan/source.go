package plan

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

// Source defines how plan definitions are loaded into a Catalog.
type Source interface {
	Load(ctx context.Context) (map[Type]Definition, error)
}

type yamlSource struct {
	raw []byte
}

// DefaultSource returns the plan table compiled into the binary.
func DefaultSource() Source {
	return &yamlSource{raw: defaultPlans}
}

// NewYAMLSource reads plan definitions from r. The reader is consumed immediately.
func NewYAMLSource(r io.Reader) (Source, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return &yamlSource{raw: raw}, nil
}

type yamlPlanFile struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	Type               string   `yaml:"type"`
	Name               string   `yaml:"name"`
	ProductLimit       int      `yaml:"product_limit"`
	UsageFeePercentage string   `yaml:"usage_fee_percentage"`
	RecurringAmount    string   `yaml:"recurring_amount"`
	TrialDays          int      `yaml:"trial_days"`
	Features           []string `yaml:"features"`
	Limitations        []string `yaml:"limitations"`
}

// Load decodes the YAML document into definitions keyed by type.
func (s *yamlSource) Load(_ context.Context) (map[Type]Definition, error) {
	var file yamlPlanFile
	dec := yaml.NewDecoder(bytes.NewReader(s.raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	defs := make(map[Type]Definition, len(file.Plans))
	for _, p := range file.Plans {
		t, err := Parse(p.Type)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		if _, dup := defs[t]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %q", ErrFailedToLoadPlans, t)
		}

		fee, err := decimal.NewFromString(p.UsageFeePercentage)
		if err != nil {
			return nil, fmt.Errorf("%w: %s usage fee: %w", ErrFailedToLoadPlans, t, err)
		}
		amount, err := decimal.NewFromString(p.RecurringAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: %s recurring amount: %w", ErrFailedToLoadPlans, t, err)
		}

		defs[t] = Definition{
			Type:               t,
			Name:               p.Name,
			ProductLimit:       p.ProductLimit,
			UsageFeePercentage: fee,
			RecurringAmount:    amount,
			TrialDays:          p.TrialDays,
			Features:           p.Features,
			Limitations:        p.Limitations,
		}
	}
	return defs, nil
}

type inMemSource struct {
	defs map[Type]Definition
}

// NewInMemSource builds a Source from definitions held in memory.
func NewInMemSource(defs ...Definition) Source {
	m := make(map[Type]Definition, len(defs))
	for _, d := range defs {
		m[d.Type] = d
	}
	return &inMemSource{defs: m}
}

// Load returns a copy of the held definitions.
func (s *inMemSource) Load(_ context.Context) (map[Type]Definition, error) {
	out := make(map[Type]Definition, len(s.defs))
	for k, v := range s.defs {
		out[k] = v
	}
	return out, nil
}
