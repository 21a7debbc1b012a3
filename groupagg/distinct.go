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
	"encoding/binary"
	"math"
	"math/big"

	"github.com/arrowkit/groupagg/date"
	"github.com/arrowkit/groupagg/internal/bitset"
)

// distinctBase is the shared state behind Distinct and CountDistinct:
// a nested Grouper keyed by (value, group_id) composite keys (spec
// §4.9).
type distinctBase struct {
	ctx       *ExecContext
	opts      CountOptions
	valueType ElementType
	decWidth  int
	grp       Grouper
	numGroups int
}

func newDistinctBase(ctx *ExecContext, opts CountOptions, valueType ElementType, grp Grouper) distinctBase {
	if grp == nil {
		grp = NewReferenceGrouper()
	}
	width := 64
	switch valueType {
	case Decimal32:
		width = 32
	case Decimal128:
		width = 128
	case Decimal256:
		width = 256
	}
	return distinctBase{ctx: ctx, opts: opts, valueType: valueType, decWidth: width, grp: grp}
}

func (b *distinctBase) resize(n int) {
	if n > b.numGroups {
		b.numGroups = n
	}
}

func (b *distinctBase) consume(batch *Batch) {
	v := batch.Values
	keys := make([]GrouperKey, 0, len(batch.GroupIDs))
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			keys = append(keys, GrouperKey{Value: []byte{0}, Group: g})
		}
	} else {
		v.Walk(func(row, phys int) {
			keys = append(keys, GrouperKey{Value: encodeValue(v, phys), Group: batch.GroupIDs[row]})
		})
	}
	b.grp.Consume(keys)
}

// mergeInto feeds peer's uniques, with group ids rewritten through
// mapping, into self's Grouper (spec §4.9's merge: obtain
// (value,group_id) pairs from the peer's Grouper via get_uniques,
// rewrite through the remap table, and re-consume them locally).
func (b *distinctBase) mergeInto(peer Grouper, mapping []uint32) error {
	uniques := peer.Uniques()
	keys := make([]GrouperKey, len(uniques))
	for i, k := range uniques {
		if int(k.Group) >= len(mapping) {
			return invalid(b.ctx, "distinct.merge", "peer group id %d out of mapping range %d", k.Group, len(mapping))
		}
		keys[i] = GrouperKey{Value: k.Value, Group: mapping[k.Group]}
	}
	b.grp.Consume(keys)
	return nil
}

// CountDistinctAggregator emits, per group, the count of distinct
// values seen (spec §4.9).
type CountDistinctAggregator struct {
	distinctBase
}

// NewCountDistinct constructs the CountDistinct aggregator. grp may
// be nil to use the library's default reference Grouper.
func NewCountDistinct(ctx *ExecContext, opts CountOptions, valueType ElementType, grp Grouper) *CountDistinctAggregator {
	return &CountDistinctAggregator{newDistinctBase(ctx, opts, valueType, grp)}
}

func (a *CountDistinctAggregator) NumGroups() int       { return a.numGroups }
func (a *CountDistinctAggregator) OutType() ElementType { return Int64 }
func (a *CountDistinctAggregator) Ordered() bool        { return false }
func (a *CountDistinctAggregator) Resize(n int) error   { a.resize(n); return nil }
func (a *CountDistinctAggregator) Consume(batch *Batch) error {
	a.consume(batch)
	return nil
}

func (a *CountDistinctAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*CountDistinctAggregator)
	if !ok {
		return invalid(a.ctx, "hash_count_distinct.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != o.numGroups {
		return invalid(a.ctx, "hash_count_distinct.merge", "mapping length %d != peer num_groups %d", len(mapping), o.numGroups)
	}
	if err := a.mergeInto(o.grp, mapping); err != nil {
		return err
	}
	for _, g := range mapping {
		if int(g)+1 > a.numGroups {
			a.numGroups = int(g) + 1
		}
	}
	return nil
}

func (a *CountDistinctAggregator) Finalize() (*Column, error) {
	counts := make([]int64, a.numGroups)
	for _, k := range a.grp.Uniques() {
		isNull := len(k.Value) > 0 && k.Value[0] == 0
		switch a.opts.Mode {
		case CountOnlyValid:
			if isNull {
				continue
			}
		case CountOnlyNull:
			if !isNull {
				continue
			}
		}
		if int(k.Group) < len(counts) {
			counts[k.Group]++
		}
	}
	return &Column{Type: Int64, Length: len(counts), Int64s: counts}, nil
}

// DistinctAggregator emits, per group, the list of distinct values
// seen (spec §4.9).
type DistinctAggregator struct {
	distinctBase
}

// NewDistinct constructs the Distinct aggregator. grp may be nil to
// use the library's default reference Grouper.
func NewDistinct(ctx *ExecContext, opts CountOptions, valueType ElementType, grp Grouper) *DistinctAggregator {
	return &DistinctAggregator{newDistinctBase(ctx, opts, valueType, grp)}
}

func (a *DistinctAggregator) NumGroups() int       { return a.numGroups }
func (a *DistinctAggregator) OutType() ElementType { return List }
func (a *DistinctAggregator) Ordered() bool        { return false }
func (a *DistinctAggregator) Resize(n int) error   { a.resize(n); return nil }
func (a *DistinctAggregator) Consume(batch *Batch) error {
	a.consume(batch)
	return nil
}

func (a *DistinctAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*DistinctAggregator)
	if !ok {
		return invalid(a.ctx, "hash_distinct.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != o.numGroups {
		return invalid(a.ctx, "hash_distinct.merge", "mapping length %d != peer num_groups %d", len(mapping), o.numGroups)
	}
	if err := a.mergeInto(o.grp, mapping); err != nil {
		return err
	}
	for _, g := range mapping {
		if int(g)+1 > a.numGroups {
			a.numGroups = int(g) + 1
		}
	}
	return nil
}

func (a *DistinctAggregator) Finalize() (*Column, error) {
	perGroup := make([][][]byte, a.numGroups)
	for _, k := range a.grp.Uniques() {
		if int(k.Group) >= a.numGroups {
			continue
		}
		isNull := len(k.Value) > 0 && k.Value[0] == 0
		switch a.opts.Mode {
		case CountOnlyValid:
			if isNull {
				continue
			}
		case CountOnlyNull:
			if !isNull {
				continue
			}
			if len(perGroup[k.Group]) > 0 {
				continue // at most one null per group
			}
		}
		perGroup[k.Group] = append(perGroup[k.Group], k.Value)
	}

	offsets := make([]int32, a.numGroups+1)
	var flat [][]byte
	for g, items := range perGroup {
		offsets[g] = int32(len(flat))
		flat = append(flat, items...)
	}
	offsets[a.numGroups] = int32(len(flat))

	child := buildDecodedColumn(a.valueType, a.decWidth, flat)
	return &Column{
		Type: List, Length: a.numGroups,
		ListOffsets: offsets, Child: child,
	}, nil
}

// buildDecodedColumn reconstructs a typed Column from a flat list of
// encodeValue-encoded items, the inverse of encodeValue.
func buildDecodedColumn(typ ElementType, decWidth int, items [][]byte) *Column {
	n := len(items)
	col := &Column{Type: typ, Length: n, Valid: bitset.New(n)}
	switch {
	case typ == Bool:
		col.Bools = make([]bool, n)
	case typ.IsInteger():
		col.Int64s = make([]int64, n)
	case typ.IsFloat():
		col.Float64s = make([]float64, n)
	case typ.IsDecimal():
		col.Decimals = make([]Decimal, n)
	case typ == Temporal:
		col.Times = make([]date.Time, n)
	case typ.IsBinaryLike():
		col.Strings = make([][]byte, n)
	}
	for i, raw := range items {
		if len(raw) == 0 || raw[0] == 0 {
			continue
		}
		col.Valid.Set(i)
		body := raw[1:]
		switch {
		case typ == Bool:
			col.Bools[i] = len(body) > 0 && body[0] != 0
		case typ.IsInteger():
			col.Int64s[i] = int64(binary.LittleEndian.Uint64(body))
		case typ.IsFloat():
			col.Float64s[i] = math.Float64frombits(binary.LittleEndian.Uint64(body))
		case typ.IsDecimal():
			scale := int32(binary.LittleEndian.Uint32(body[:4]))
			negative := body[4] != 0
			coeff := new(big.Int).SetBytes(body[5:])
			if negative {
				coeff.Neg(coeff)
			}
			col.Decimals[i] = Decimal{Coefficient: coeff, Scale: scale, Width: decWidth}
		case typ == Temporal:
			nanos := int64(binary.LittleEndian.Uint64(body))
			col.Times[i] = date.Unix(0, nanos)
		case typ.IsBinaryLike():
			col.Strings[i] = body
		}
	}
	return col
}
