package source

import (
	"context"
	"iter"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// Slice serves records held in memory.
type Slice struct {
	name string
	recs []core.RawRecord
}

// NewSlice creates a source named name over recs.
func NewSlice(name string, recs []core.RawRecord) *Slice {
	return &Slice{name: name, recs: recs}
}

// Name implements core.RecordSource.
func (s *Slice) Name() string { return s.name }

// Records implements core.RecordSource.
func (s *Slice) Records(ctx context.Context) iter.Seq2[core.RawRecord, error] {
	return func(yield func(core.RawRecord, error) bool) {
		for _, r := range s.recs {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
