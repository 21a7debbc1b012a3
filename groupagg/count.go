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

// CountAllAggregator counts rows per group, ignoring the value column
// entirely (spec §4.2).
type CountAllAggregator struct {
	ctx    *ExecContext
	counts []int64
}

// NewCountAll constructs a CountAll aggregator.
func NewCountAll(ctx *ExecContext) *CountAllAggregator {
	return &CountAllAggregator{ctx: ctx}
}

func (a *CountAllAggregator) NumGroups() int       { return len(a.counts) }
func (a *CountAllAggregator) OutType() ElementType { return Int64 }
func (a *CountAllAggregator) Ordered() bool        { return false }

func (a *CountAllAggregator) Resize(n int) error {
	if n <= len(a.counts) {
		return nil
	}
	grown := make([]int64, n)
	copy(grown, a.counts)
	a.counts = grown
	return nil
}

func (a *CountAllAggregator) Consume(batch *Batch) error {
	for _, g := range batch.GroupIDs {
		a.counts[g]++
	}
	return nil
}

func (a *CountAllAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*CountAllAggregator)
	if !ok {
		return invalid(a.ctx, "hash_count_all.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.counts) {
		return invalid(a.ctx, "hash_count_all.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.counts))
	}
	for i, c := range o.counts {
		a.counts[mapping[i]] += c
	}
	o.counts = nil
	return nil
}

func (a *CountAllAggregator) Finalize() (*Column, error) {
	out := &Column{Type: Int64, Length: len(a.counts), Int64s: a.counts}
	a.counts = nil
	return out, nil
}

// CountAggregator counts rows per group gated by CountOptions.Mode
// (spec §4.2).
type CountAggregator struct {
	ctx     *ExecContext
	opts    CountOptions
	counts  []int64
}

// NewCount constructs a Count aggregator for the given input element
// type (every input type is accepted; only validity is inspected).
func NewCount(ctx *ExecContext, opts CountOptions) *CountAggregator {
	return &CountAggregator{ctx: ctx, opts: opts}
}

func (a *CountAggregator) NumGroups() int       { return len(a.counts) }
func (a *CountAggregator) OutType() ElementType { return Int64 }
func (a *CountAggregator) Ordered() bool        { return false }

func (a *CountAggregator) Resize(n int) error {
	if n <= len(a.counts) {
		return nil
	}
	grown := make([]int64, n)
	copy(grown, a.counts)
	a.counts = grown
	return nil
}

func (a *CountAggregator) Consume(batch *Batch) error {
	v := batch.Values
	switch a.opts.Mode {
	case CountAllMode:
		for _, g := range batch.GroupIDs {
			a.counts[g]++
		}
		return nil
	case CountOnlyNull:
		if v == nil || v.Type == Null {
			for _, g := range batch.GroupIDs {
				a.counts[g]++
			}
			return nil
		}
		v.Walk(func(row, phys int) {
			if !v.ValidAt(phys) {
				a.counts[batch.GroupIDs[row]]++
			}
		})
		return nil
	default: // CountOnlyValid
		if v == nil || v.Type == Null {
			return nil // null-typed arrays count as all-invalid
		}
		v.Walk(func(row, phys int) {
			if v.ValidAt(phys) {
				a.counts[batch.GroupIDs[row]]++
			}
		})
		return nil
	}
}

func (a *CountAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*CountAggregator)
	if !ok {
		return invalid(a.ctx, "hash_count.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.counts) {
		return invalid(a.ctx, "hash_count.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.counts))
	}
	for i, c := range o.counts {
		a.counts[mapping[i]] += c
	}
	o.counts = nil
	return nil
}

func (a *CountAggregator) Finalize() (*Column, error) {
	out := &Column{Type: Int64, Length: len(a.counts), Int64s: a.counts}
	a.counts = nil
	return out, nil
}
