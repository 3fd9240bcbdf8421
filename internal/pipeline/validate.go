package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapetl/internal/normalize"
)

// Validate checks the whole pipeline and reports every issue found.
func (p *Pipeline) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if p.Name == "" {
		add(errors.New("pipeline name is required"))
	}
	if !p.ErrorPolicy.Valid() {
		add(fmt.Errorf("unknown error policy %q", p.ErrorPolicy))
	}
	if len(p.Entities) == 0 {
		add(errors.New("at least one entity is required"))
	}

	tables := make(map[string]string)
	claim := func(name, owner string) {
		if prev, ok := tables[name]; ok {
			add(fmt.Errorf("table %q is defined by both %s and %s", name, prev, owner))
			return
		}
		tables[name] = owner
	}

	for i := range p.Entities {
		e := &p.Entities[i]
		claim(e.Name, "entity "+e.Name)
		for _, err := range e.validate() {
			add(fmt.Errorf("entity %s: %w", e.Name, err))
		}
	}

	for _, agg := range p.Aggregates {
		claim(agg.Target, "aggregate "+agg.Name)
		add(agg.Validate())
		if _, ok := p.Entity(agg.Source); !ok {
			add(fmt.Errorf("aggregate %s: source %q is not an entity", agg.Name, agg.Source))
			continue
		}
		if agg.Join != nil {
			related, ok := p.Entity(agg.Join.Table)
			if !ok {
				add(fmt.Errorf("aggregate %s: join table %q is not an entity", agg.Name, agg.Join.Table))
				continue
			}
			for _, f := range agg.Join.RightKey {
				if _, ok := related.Schema().Column(f); !ok {
					add(fmt.Errorf("aggregate %s: join table %s has no column %q", agg.Name, related.Name, f))
				}
			}
		}
		if _, err := p.AggregateSchema(agg); err != nil {
			add(err)
		}
	}
	if len(errs) == 0 {
		_, err := p.Graph()
		add(err)
	}
	return errors.Join(errs...)
}

func (e *Entity) validate() []error {
	var errs []error
	if e.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if !e.ErrorPolicy.Valid() {
		errs = append(errs, fmt.Errorf("unknown error policy %q", e.ErrorPolicy))
	}

	schema := e.Schema()
	if err := schema.Validate(); err != nil {
		return append(errs, err)
	}

	norm, err := normalize.New(normalize.Config{Mappings: e.Mappings})
	if err != nil {
		return append(errs, err)
	}
	targets := norm.Targets()
	for _, t := range targets {
		if _, ok := schema.Column(t); !ok {
			errs = append(errs, fmt.Errorf("mapping target %q is not a column", t))
		}
	}
	for _, c := range schema.Columns {
		if (c.Required || schema.IsKey(c.Name)) && !slices.Contains(targets, c.Name) {
			errs = append(errs, fmt.Errorf("column %q is required but no mapping produces it", c.Name))
		}
	}

	for _, term := range e.Dedup.OrderBy {
		if _, ok := schema.Column(term.Field); !ok {
			errs = append(errs, fmt.Errorf("dedup order field %q is not a column", term.Field))
		}
	}
	if _, err := e.Merge.MutableColumns(schema); err != nil {
		errs = append(errs, err)
	}
	return errs
}
