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

// OneAggregator keeps the first-seen value per group, null input type
// giving an all-null output (spec §4.10).
type OneAggregator struct {
	ctx       *ExecContext
	valueType ElementType
	decWidth  int
	set       *bitset.Set // has a value been recorded for this group
	values    [][]byte    // encodeValue-encoded first value per group
}

// NewOne constructs the One aggregator.
func NewOne(ctx *ExecContext, valueType ElementType) *OneAggregator {
	width := 64
	switch valueType {
	case Decimal32:
		width = 32
	case Decimal128:
		width = 128
	case Decimal256:
		width = 256
	}
	return &OneAggregator{ctx: ctx, valueType: valueType, decWidth: width}
}

func (a *OneAggregator) NumGroups() int       { return a.n() }
func (a *OneAggregator) OutType() ElementType { return a.valueType }
func (a *OneAggregator) Ordered() bool        { return false }

func (a *OneAggregator) n() int {
	if a.set == nil {
		return 0
	}
	return a.set.Len()
}

func (a *OneAggregator) Resize(n int) error {
	old := a.n()
	if n <= old {
		return nil
	}
	if a.set == nil {
		a.set = bitset.New(n)
	} else {
		a.set.Grow(n)
	}
	vals := make([][]byte, n)
	copy(vals, a.values)
	a.values = vals
	return nil
}

func (a *OneAggregator) Consume(batch *Batch) error {
	if a.valueType == Null {
		return nil
	}
	v := batch.Values
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if a.set.Get(g) {
			return
		}
		a.values[g] = encodeValue(v, phys)
		a.set.Set(g)
	})
	return nil
}

// Merge takes the peer's value for a group only if self has none yet
// for that group; which source wins on a tie where both have a value
// is unspecified (spec §4.10), so self is kept in that case.
func (a *OneAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*OneAggregator)
	if !ok {
		return invalid(a.ctx, "hash_one.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != o.n() {
		return invalid(a.ctx, "hash_one.merge", "mapping length %d != peer num_groups %d", len(mapping), o.n())
	}
	for i := 0; i < o.n(); i++ {
		if !o.set.Get(i) {
			continue
		}
		g := mapping[i]
		if !a.set.Get(g) {
			a.values[g] = o.values[i]
			a.set.Set(g)
		}
	}
	o.values, o.set = nil, nil
	return nil
}

func (a *OneAggregator) Finalize() (*Column, error) {
	n := a.n()
	if a.valueType == Null {
		return &Column{Type: Null, Length: n, Valid: bitset.New(n)}, nil
	}
	items := make([][]byte, n)
	for g := 0; g < n; g++ {
		if a.set.Get(g) {
			items[g] = a.values[g]
		} else {
			items[g] = []byte{0}
		}
	}
	out := buildDecodedColumn(a.valueType, a.decWidth, items)
	a.values, a.set = nil, nil
	return out, nil
}

// listEntry is one (group_id, value, valid) triple in consumption
// order, the raw material ListAggregator's finalize groups by
// group_id while preserving order (spec §4.10). This implementation
// performs that grouping directly with a stable partition rather than
// through the nested Grouper collaborator, since List does not
// dedupe values the way Distinct does; the visible contract (list per
// group in consumption order) is identical.
type listEntry struct {
	group uint32
	raw   []byte
}

// ListAggregator accumulates every (group_id, value, valid) triple
// and produces a list-per-group preserving consumption order (spec
// §4.10).
type ListAggregator struct {
	ctx       *ExecContext
	valueType ElementType
	decWidth  int
	entries   []listEntry
	numGroups int
}

// NewList constructs the List aggregator.
func NewList(ctx *ExecContext, valueType ElementType) *ListAggregator {
	width := 64
	switch valueType {
	case Decimal32:
		width = 32
	case Decimal128:
		width = 128
	case Decimal256:
		width = 256
	}
	return &ListAggregator{ctx: ctx, valueType: valueType, decWidth: width}
}

func (a *ListAggregator) NumGroups() int       { return a.numGroups }
func (a *ListAggregator) OutType() ElementType { return List }
func (a *ListAggregator) Ordered() bool        { return true }

func (a *ListAggregator) Resize(n int) error {
	if n > a.numGroups {
		a.numGroups = n
	}
	return nil
}

func (a *ListAggregator) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.entries = append(a.entries, listEntry{group: g, raw: []byte{0}})
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		a.entries = append(a.entries, listEntry{group: batch.GroupIDs[row], raw: encodeValue(v, phys)})
	})
	return nil
}

// Merge appends the peer's entries, with group ids rewritten through
// mapping, preserving the peer's own internal order (the driver is
// responsible for calling Merge on ordered aggregators in the order
// that preserves overall ingestion order, per the Aggregator contract
// and spec §5's ordering rules).
func (a *ListAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*ListAggregator)
	if !ok {
		return invalid(a.ctx, "hash_list.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != o.numGroups {
		return invalid(a.ctx, "hash_list.merge", "mapping length %d != peer num_groups %d", len(mapping), o.numGroups)
	}
	for _, e := range o.entries {
		a.entries = append(a.entries, listEntry{group: mapping[e.group], raw: e.raw})
	}
	if o.numGroups > 0 {
		maxG := mapping[o.numGroups-1]
		for _, g := range mapping {
			if g > maxG {
				maxG = g
			}
		}
		if int(maxG)+1 > a.numGroups {
			a.numGroups = int(maxG) + 1
		}
	}
	o.entries = nil
	return nil
}

func (a *ListAggregator) Finalize() (*Column, error) {
	perGroup := make([][][]byte, a.numGroups)
	for _, e := range a.entries {
		if int(e.group) >= a.numGroups {
			continue
		}
		perGroup[e.group] = append(perGroup[e.group], e.raw)
	}
	offsets := make([]int32, a.numGroups+1)
	var flat [][]byte
	for g, items := range perGroup {
		offsets[g] = int32(len(flat))
		flat = append(flat, items...)
	}
	offsets[a.numGroups] = int32(len(flat))

	child := buildDecodedColumn(a.valueType, a.decWidth, flat)
	a.entries = nil
	return &Column{Type: List, Length: a.numGroups, ListOffsets: offsets, Child: child}, nil
}
