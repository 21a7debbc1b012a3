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

import "github.com/arrowkit/groupagg/internal/bitset"

// lattice distinguishes Any's OR-reduction from All's AND-reduction;
// both share the same state shape and merge shape (spec §4.8).
type lattice int

const (
	latticeAny lattice = iota
	latticeAll
)

// AnyAllAggregator implements Any/All over a boolean column. The
// reduced bitmap starts at the lattice's identity (false for Any, true
// for All); consume folds in the boolean lattice op. Finalize
// null-gates by min_count, then (when !skip_nulls) nulls out any
// group that saw a null *unless* the already-observed value already
// determines the outcome — implemented by combining the null-seen
// mask with the reduced mask via OR (Any) or OR-NOT (All) before
// intersecting with ordinary validity.
type AnyAllAggregator struct {
	ctx     *ExecContext
	opts    ScalarAggregateOptions
	kind    lattice
	reduced *bitset.Set
	sawNull *bitset.Set
	counts  []int64
}

// NewAny constructs the Any aggregator.
func NewAny(ctx *ExecContext, opts ScalarAggregateOptions) *AnyAllAggregator {
	return &AnyAllAggregator{ctx: ctx, opts: opts, kind: latticeAny}
}

// NewAll constructs the All aggregator.
func NewAll(ctx *ExecContext, opts ScalarAggregateOptions) *AnyAllAggregator {
	return &AnyAllAggregator{ctx: ctx, opts: opts, kind: latticeAll}
}

func (a *AnyAllAggregator) NumGroups() int       { return len(a.counts) }
func (a *AnyAllAggregator) OutType() ElementType { return Bool }
func (a *AnyAllAggregator) Ordered() bool        { return false }

func (a *AnyAllAggregator) Resize(n int) error {
	old := len(a.counts)
	if n <= old {
		return nil
	}
	counts := make([]int64, n)
	copy(counts, a.counts)
	a.counts = counts
	if a.reduced == nil {
		a.reduced = bitset.New(n)
		a.sawNull = bitset.New(n)
	} else {
		a.reduced.Grow(n)
		a.sawNull.Grow(n)
	}
	if a.kind == latticeAll {
		a.reduced.SetRange(old, n) // All's identity is true
	}
	return nil
}

func (a *AnyAllAggregator) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.sawNull.Set(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if !v.ValidAt(phys) {
			a.sawNull.Set(g)
			return
		}
		x := v.Bools[phys]
		switch a.kind {
		case latticeAny:
			if x {
				a.reduced.Set(g)
			}
		case latticeAll:
			if !x {
				a.reduced.Clear(g)
			}
		}
		a.counts[g]++
	})
	return nil
}

func (a *AnyAllAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*AnyAllAggregator)
	if !ok {
		return invalid(a.ctx, "hash_any_all.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.counts) {
		return invalid(a.ctx, "hash_any_all.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.counts))
	}
	for i, c := range o.counts {
		g := mapping[i]
		a.counts[g] += c
		switch a.kind {
		case latticeAny:
			if o.reduced.Get(i) {
				a.reduced.Set(g)
			}
		case latticeAll:
			if !o.reduced.Get(i) {
				a.reduced.Clear(g)
			}
		}
		if o.sawNull.Get(i) {
			a.sawNull.Set(g)
		}
	}
	o.reduced, o.sawNull, o.counts = nil, nil, nil
	return nil
}

func (a *AnyAllAggregator) Finalize() (*Column, error) {
	n := len(a.counts)
	valid := bitset.NewFilled(n)
	for g := 0; g < n; g++ {
		if uint32(a.counts[g]) < a.opts.MinCount {
			valid.Clear(g)
		}
	}
	if !a.opts.SkipNulls {
		// A group that saw a null becomes null, unless the observed
		// value already decides the outcome: Any is decided once a
		// true is seen, All is decided once a false is seen (spec
		// §4.8's nulls-mask combined with the seen-mask via OR/OR-NOT
		// before intersecting with ordinary validity).
		for g := 0; g < n; g++ {
			if !a.sawNull.Get(g) {
				continue
			}
			decided := a.reduced.Get(g)
			if a.kind == latticeAll {
				decided = !decided
			}
			if !decided {
				valid.Clear(g)
			}
		}
	}
	bools := make([]bool, n)
	for g := 0; g < n; g++ {
		bools[g] = a.reduced.Get(g)
	}
	a.reduced, a.sawNull, a.counts = nil, nil, nil
	return &Column{Type: Bool, Length: n, Valid: valid, Bools: bools}, nil
}
