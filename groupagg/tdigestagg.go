// Copyright (C) 2024 The GroupAgg Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package groupagg

import (
	"math"

	"github.com/arrowkit/groupagg/internal/bitset"
	"github.com/arrowkit/groupagg/internal/tdigest"
)

// TDigestAggregator maintains one quantile sketch per group and emits
// a fixed-size list of quantiles per group at Finalize (spec §4.5).
type TDigestAggregator struct {
	ctx     *ExecContext
	opts    TDigestOptions
	inType  ElementType
	digests []*tdigest.Digest
	counts  []int64
	noNulls *bitset.Set
}

// NewTDigest constructs the TDigest aggregator for the given input
// element type.
func NewTDigest(ctx *ExecContext, opts TDigestOptions, inType ElementType) (Aggregator, error) {
	if !inType.IsNumeric() && inType != Null {
		return nil, notImplemented(ctx, "hash_tdigest.init", inType)
	}
	if len(opts.Q) == 0 {
		opts.Q = []float64{0.5}
	}
	return &TDigestAggregator{ctx: ctx, opts: opts, inType: inType}, nil
}

// NewApproximateMedian constructs TDigest with q = [0.5], projecting
// the single resulting element (spec §4.5).
func NewApproximateMedian(ctx *ExecContext, opts TDigestOptions, inType ElementType) (Aggregator, error) {
	opts.Q = []float64{0.5}
	inner, err := NewTDigest(ctx, opts, inType)
	if err != nil {
		return nil, err
	}
	return &approximateMedianAggregator{TDigestAggregator: inner.(*TDigestAggregator)}, nil
}

func (a *TDigestAggregator) NumGroups() int       { return len(a.digests) }
func (a *TDigestAggregator) OutType() ElementType { return Float64 }
func (a *TDigestAggregator) Ordered() bool        { return false }

func (a *TDigestAggregator) Resize(n int) error {
	old := len(a.digests)
	if n <= old {
		return nil
	}
	digests := make([]*tdigest.Digest, n)
	copy(digests, a.digests)
	for i := old; i < n; i++ {
		digests[i] = tdigest.New(int(a.opts.Delta), int(a.opts.BufferSize))
	}
	a.digests = digests

	counts := make([]int64, n)
	copy(counts, a.counts)
	a.counts = counts

	if a.noNulls == nil {
		a.noNulls = bitset.New(n)
	} else {
		a.noNulls.Grow(n)
	}
	a.noNulls.SetRange(old, n)
	return nil
}

func (a *TDigestAggregator) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.noNulls.Clear(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if !v.ValidAt(phys) {
			a.noNulls.Clear(g)
			return
		}
		x := v.Float64At(phys)
		if math.IsNaN(x) {
			return // NaN is silently ignored by the sketch (spec §4.5)
		}
		a.digests[g].Add(x, 1)
		a.counts[g]++
	})
	return nil
}

func (a *TDigestAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*TDigestAggregator)
	if !ok {
		return invalid(a.ctx, "hash_tdigest.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.digests) {
		return invalid(a.ctx, "hash_tdigest.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.digests))
	}
	for i, d := range o.digests {
		g := mapping[i]
		a.digests[g].Merge(d)
		a.counts[g] += o.counts[i]
		if !o.noNulls.Get(i) {
			a.noNulls.Clear(g)
		}
	}
	o.digests, o.counts, o.noNulls = nil, nil, nil
	return nil
}

// Finalize emits, per group, |Q| consecutive float64 slots holding
// the requested quantiles (spec §4.5). The output Column's Length is
// NumGroups()*len(Q); Valid follows the same layout so a null group
// occupies |Q| consecutive null slots.
func (a *TDigestAggregator) Finalize() (*Column, error) {
	n := len(a.digests)
	q := a.opts.Q
	out := make([]float64, n*len(q))
	valid := bitset.NewFilled(n * len(q))
	for g := 0; g < n; g++ {
		ok := !a.digests[g].Empty() &&
			(a.opts.SkipNulls || a.noNulls.Get(g)) &&
			uint32(a.counts[g]) >= a.opts.MinCount
		for qi, qv := range q {
			idx := g*len(q) + qi
			if !ok {
				valid.Clear(idx)
				continue
			}
			out[idx] = a.digests[g].Quantile(qv)
		}
	}
	a.digests, a.counts, a.noNulls = nil, nil, nil
	return &Column{Type: Float64, Length: len(out), Valid: valid, Float64s: out}, nil
}

// approximateMedianAggregator wraps TDigestAggregator, projecting the
// single q=0.5 element per group instead of a length-1 list.
type approximateMedianAggregator struct {
	*TDigestAggregator
}

func (a *approximateMedianAggregator) Finalize() (*Column, error) {
	return a.TDigestAggregator.Finalize() // already length-1-per-group since Q=[0.5]
}
