package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

// Batch is one raw source read into memory.
type Batch struct {
	Source string
	// Columns is the field order used when landing the batch.
	Columns []string
	Records []core.RawRecord
}

// columnLister is implemented by sources that know their field order, such
// as a CSV header.
type columnLister interface {
	Columns() ([]string, error)
}

// ReadBatch drains src into a Batch.
func ReadBatch(ctx context.Context, src core.RecordSource) (*Batch, error) {
	recs, err := core.CollectRaw(ctx, src)
	if err != nil {
		return nil, err
	}
	b := &Batch{Source: src.Name(), Records: recs}
	if cl, ok := src.(columnLister); ok {
		cols, err := cl.Columns()
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		b.Columns = cols
	} else {
		b.Columns = fieldUnion(recs)
	}
	return b, nil
}

// ReadBatches reads every source concurrently. The first failure cancels the
// remaining reads.
func ReadBatches(ctx context.Context, srcs ...core.RecordSource) (map[string]*Batch, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*Batch, len(srcs))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range srcs {
		g.Go(func() error {
			b, err := ReadBatch(gctx, src)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if _, dup := out[b.Source]; dup {
				return fmt.Errorf("source %s given twice", b.Source)
			}
			out[b.Source] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fieldUnion(recs []core.RawRecord) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range recs {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	slices.Sort(cols)
	return cols
}

// Fingerprint returns the xxh3 hash of a raw batch as 16 hex digits. Neither
// record order nor field order changes it.
func Fingerprint(recs []core.RawRecord) string {
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = encodeRaw(r)
	}
	slices.Sort(lines)

	h := xxh3.New()
	for _, l := range lines {
		_, _ = h.Write([]byte(l))
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// combineFingerprints hashes per-source fingerprints into one run value.
func combineFingerprints(hashes map[string]string) string {
	names := make([]string, 0, len(hashes))
	for n := range hashes {
		names = append(names, n)
	}
	slices.Sort(names)

	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(hashes[n])
		sb.WriteByte('\n')
	}
	return fmt.Sprintf("%016x", xxh3.HashString(sb.String()))
}

func encodeRaw(r core.RawRecord) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte('=')
		if v := r[k]; v == nil {
			sb.WriteString("null")
		} else {
			sb.WriteString(strconv.Quote(core.FormatValue(v)))
		}
	}
	return sb.String()
}
