// Package dedup reduces a batch to one surviving record per business key.
//
// Survivors are chosen under an explicit ordering supplied by the caller.
// Equal records (comparator returns 0) keep the earliest input position, so
// the result is deterministic for any input order of the same multiset.
package dedup

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// Comparator orders two records sharing a key. A negative result means a
// should survive over b, positive means b over a, zero means no preference.
type Comparator func(a, b core.Record) (int, error)

// OrderTerm is one field of a survivor ordering.
type OrderTerm struct {
	Field string `yaml:"field"`
	// Desc prefers larger values; the usual "latest wins" setting.
	Desc bool `yaml:"desc,omitempty"`
}

// OrderBy builds a Comparator from ordering terms. Values compare with
// core.Compare, so nil sorts lowest and mixed types are an error.
func OrderBy(terms ...OrderTerm) Comparator {
	return func(a, b core.Record) (int, error) {
		for _, t := range terms {
			c, err := core.Compare(a[t.Field], b[t.Field])
			if err != nil {
				return 0, fmt.Errorf("order field %q: %w", t.Field, err)
			}
			if t.Desc {
				c = -c
			}
			if c != 0 {
				return c, nil
			}
		}
		return 0, nil
	}
}

// Deduplicator keeps one record per business key.
type Deduplicator struct {
	Key     []string
	Compare Comparator
	Logger  *slog.Logger
}

// New creates a Deduplicator. With no order terms the first occurrence of
// each key survives.
func New(key []string, order []OrderTerm, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deduplicator{Key: key, Compare: OrderBy(order...), Logger: logger}
}

type group struct {
	key      core.Key
	winner   int
	position int
}

// Dedup returns the surviving records ordered by the first appearance of
// their key. recs is not modified.
func (d *Deduplicator) Dedup(recs []core.Record) ([]core.Record, error) {
	if len(d.Key) == 0 {
		return nil, fmt.Errorf("dedup: business key is required")
	}
	cmp := d.Compare
	if cmp == nil {
		cmp = OrderBy()
	}

	index := make(map[string]*group, len(recs))
	groups := make([]*group, 0, len(recs))
	for i, r := range recs {
		key, err := core.KeyOf(r, d.Key)
		if err != nil {
			return nil, &core.RecordError{Position: i, Err: err}
		}
		id := key.String()
		g, ok := index[id]
		if !ok {
			g = &group{key: key, winner: i, position: i}
			index[id] = g
			groups = append(groups, g)
			continue
		}

		c, err := compareChecked(cmp, recs[g.winner], r)
		if err != nil {
			return nil, &core.DuplicateKeyAmbiguityError{Key: key, Positions: [2]int{g.winner, i}, Err: err}
		}
		// Ties keep the earlier record.
		if c > 0 {
			g.winner = i
		}
	}

	out := make([]core.Record, len(groups))
	for i, g := range groups {
		out[i] = recs[g.winner].Clone()
	}

	if dropped := len(recs) - len(out); dropped > 0 && d.Logger != nil {
		d.Logger.Debug("removed duplicates",
			slog.Int("input", len(recs)),
			slog.Int("output", len(out)),
			slog.Int("dropped", dropped))
	}
	return out, nil
}

// compareChecked evaluates the comparator in both directions and rejects
// answers that are not antisymmetric.
func compareChecked(cmp Comparator, a, b core.Record) (int, error) {
	ab, err := cmp(a, b)
	if err != nil {
		return 0, err
	}
	ba, err := cmp(b, a)
	if err != nil {
		return 0, err
	}
	if sign(ab) != -sign(ba) {
		return 0, fmt.Errorf("comparator is inconsistent (a vs b = %d, b vs a = %d)", ab, ba)
	}
	return ab, nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
