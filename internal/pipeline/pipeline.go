// Package pipeline loads declarative pipeline definitions.
//
// A pipeline names the raw sources it consumes, the curated entities built
// from them and the publish aggregates derived from the entities. The file
// is plain YAML and can be loaded and validated without a warehouse.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/leapetl/internal/aggregate"
	"github.com/leapstack-labs/leapetl/internal/dedup"
	"github.com/leapstack-labs/leapetl/internal/merge"
	"github.com/leapstack-labs/leapetl/internal/normalize"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"gopkg.in/yaml.v3"
)

// Default namespaces for the three layers.
const (
	DefaultRawNamespace     = "raw"
	DefaultCuratedNamespace = "curated"
	DefaultPublishNamespace = "publish"
)

// Namespaces maps each layer to a warehouse schema.
type Namespaces struct {
	Raw     string `yaml:"raw,omitempty"`
	Curated string `yaml:"curated,omitempty"`
	Publish string `yaml:"publish,omitempty"`
}

// Dedup selects the survivor among records sharing a business key.
type Dedup struct {
	OrderBy []dedup.OrderTerm `yaml:"order_by,omitempty"`
}

// Entity is a curated table built from one raw source.
type Entity struct {
	Name    string        `yaml:"name"`
	Source  string        `yaml:"source"`
	Key     []string      `yaml:"key"`
	Columns []core.Column `yaml:"columns"`
	// Mappings produce the entity's fields from a raw record, in order.
	Mappings []normalize.Mapping `yaml:"mappings"`
	Dedup    Dedup               `yaml:"dedup,omitempty"`
	Merge    merge.Rules         `yaml:"merge,omitempty"`
	// ErrorPolicy overrides the pipeline policy for this entity.
	ErrorPolicy core.ErrorPolicy `yaml:"error_policy,omitempty"`
}

// Schema returns the curated table schema of the entity.
func (e *Entity) Schema() *core.TableSchema {
	return &core.TableSchema{Name: e.Name, Columns: e.Columns, Key: e.Key}
}

// Pipeline is a complete pipeline definition.
type Pipeline struct {
	Name        string           `yaml:"name"`
	ErrorPolicy core.ErrorPolicy `yaml:"error_policy,omitempty"`
	// LandRaw appends every raw batch to the RAW layer before transforming.
	LandRaw bool `yaml:"land_raw,omitempty"`
	// AutoCreate creates missing warehouse schemas and tables.
	AutoCreate bool                    `yaml:"auto_create,omitempty"`
	Namespaces Namespaces              `yaml:"namespaces,omitempty"`
	Entities   []Entity                `yaml:"entities"`
	Aggregates []*aggregate.Definition `yaml:"aggregates,omitempty"`
}

// Load reads and validates the pipeline at path.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from user config
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	p, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a pipeline, rejecting unknown keys, applies defaults and
// validates it.
func Parse(r io.Reader) (*Pipeline, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("pipeline is empty")
		}
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyDefaults fills unset namespaces and policies.
func (p *Pipeline) ApplyDefaults() {
	if p.ErrorPolicy == "" {
		p.ErrorPolicy = core.ErrorPolicySkip
	}
	if p.Namespaces.Raw == "" {
		p.Namespaces.Raw = DefaultRawNamespace
	}
	if p.Namespaces.Curated == "" {
		p.Namespaces.Curated = DefaultCuratedNamespace
	}
	if p.Namespaces.Publish == "" {
		p.Namespaces.Publish = DefaultPublishNamespace
	}
	for i := range p.Entities {
		e := &p.Entities[i]
		if e.ErrorPolicy == "" {
			e.ErrorPolicy = p.ErrorPolicy
		}
		if e.Merge.Policy == "" {
			e.Merge.Policy = merge.PolicyUpdate
		}
	}
}

// Entity returns the entity with the given name.
func (p *Pipeline) Entity(name string) (*Entity, bool) {
	for i := range p.Entities {
		if p.Entities[i].Name == name {
			return &p.Entities[i], true
		}
	}
	return nil, false
}

// Sources returns the distinct raw source names in entity order.
func (p *Pipeline) Sources() []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range p.Entities {
		if !seen[e.Source] {
			seen[e.Source] = true
			out = append(out, e.Source)
		}
	}
	return out
}

// AggregateSchema derives the publish table schema of agg.
func (p *Pipeline) AggregateSchema(agg *aggregate.Definition) (*core.TableSchema, error) {
	src, ok := p.Entity(agg.Source)
	if !ok {
		return nil, fmt.Errorf("aggregate %s: source %q is not an entity", agg.Name, agg.Source)
	}
	return agg.OutputSchema(src.Schema())
}
