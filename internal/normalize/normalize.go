// Package normalize turns raw records into canonical entity records.
//
// A Normalizer applies an ordered list of mappings. Each mapping reads one or
// more source fields, runs a named transform and writes one target field.
// Source fields resolve first against targets already produced for the same
// record, then against the raw record, so later mappings can derive from the
// typed output of earlier ones.
package normalize

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// Mapping declares how one target field is produced.
type Mapping struct {
	Source    string         `yaml:"source,omitempty"`
	Sources   []string       `yaml:"sources,omitempty"`
	Target    string         `yaml:"target"`
	Transform string         `yaml:"transform,omitempty"`
	Params    map[string]any `yaml:"params,omitempty"`
}

// Inputs returns the source fields in the order the transform receives them.
// A mapping with no sources reads the field named like its target, except
// for transforms that take no input.
func (m Mapping) Inputs() []string {
	switch {
	case len(m.Sources) > 0:
		return m.Sources
	case m.Source != "":
		return []string{m.Source}
	case m.TransformName() == "constant":
		return nil
	}
	return []string{m.Target}
}

// TransformName returns the transform, defaulting to copy.
func (m Mapping) TransformName() string {
	if m.Transform == "" {
		return "copy"
	}
	return m.Transform
}

// Config holds the settings for a Normalizer.
type Config struct {
	Mappings []Mapping
	// Now is the clock used by time-relative derivations. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

type step struct {
	mapping Mapping
	inputs  []string
	fn      Func
}

// Normalizer maps raw records onto canonical records. It holds no per-record
// state and is safe for concurrent use.
type Normalizer struct {
	steps  []step
	logger *slog.Logger
}

// New compiles the mappings in cfg. Unknown transforms and invalid params
// are reported here rather than per record.
func New(cfg Config) (*Normalizer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	env := &Env{Now: now}

	seen := make(map[string]bool, len(cfg.Mappings))
	steps := make([]step, 0, len(cfg.Mappings))
	for i, m := range cfg.Mappings {
		if m.Target == "" {
			return nil, fmt.Errorf("mapping %d: target is required", i)
		}
		if seen[m.Target] {
			return nil, fmt.Errorf("mapping %d: target %q is produced twice", i, m.Target)
		}
		seen[m.Target] = true

		factory, ok := GetTransform(m.TransformName())
		if !ok {
			return nil, &UnknownTransformError{Name: m.TransformName(), Target: m.Target, Available: ListTransforms()}
		}
		fn, err := factory(m, env)
		if err != nil {
			return nil, fmt.Errorf("mapping %q (%s): %w", m.Target, m.TransformName(), err)
		}
		steps = append(steps, step{mapping: m, inputs: m.Inputs(), fn: fn})
	}

	return &Normalizer{steps: steps, logger: logger}, nil
}

// Targets returns the target fields in mapping order.
func (n *Normalizer) Targets() []string {
	out := make([]string, len(n.steps))
	for i, s := range n.steps {
		out[i] = s.mapping.Target
	}
	return out
}

// Normalize maps one raw record. Fields of raw without a mapping are dropped.
func (n *Normalizer) Normalize(raw core.RawRecord) (core.Record, error) {
	out := make(core.Record, len(n.steps))
	for _, s := range n.steps {
		vals := make([]any, len(s.inputs))
		for i, f := range s.inputs {
			if v, ok := out[f]; ok {
				vals[i] = v
			} else {
				vals[i] = raw[f]
			}
		}
		v, err := s.fn(vals)
		if err != nil {
			return nil, err
		}
		out[s.mapping.Target] = v
	}
	return out, nil
}

// Rejection is a raw record dropped under the skip policy.
type Rejection struct {
	Position int
	Err      error
}

// BatchResult is the outcome of normalizing a batch.
type BatchResult struct {
	Records  []core.Record
	Rejected []Rejection
}

// NormalizeBatch normalizes raws in order. Under ErrorPolicySkip failing
// records are collected in Rejected; under ErrorPolicyAbort the first failure
// is returned as a *core.RecordError carrying its position.
func (n *Normalizer) NormalizeBatch(raws []core.RawRecord, policy core.ErrorPolicy) (*BatchResult, error) {
	if policy == "" {
		policy = core.ErrorPolicyAbort
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown error policy %q", policy)
	}

	res := &BatchResult{Records: make([]core.Record, 0, len(raws))}
	for i, raw := range raws {
		rec, err := n.Normalize(raw)
		if err != nil {
			if policy == core.ErrorPolicyAbort {
				n.logger.Error("record rejected, aborting batch", slog.Int("position", i), slog.String("error", err.Error()))
				return nil, &core.RecordError{Position: i, Err: err}
			}
			n.logger.Warn("record rejected", slog.Int("position", i), slog.String("error", err.Error()))
			res.Rejected = append(res.Rejected, Rejection{Position: i, Err: err})
			continue
		}
		res.Records = append(res.Records, rec)
	}

	n.logger.Debug("normalized batch",
		slog.Int("records", len(res.Records)),
		slog.Int("rejected", len(res.Rejected)))
	return res, nil
}
