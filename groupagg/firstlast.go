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

// firstLastField selects which endpoint a projected First/Last
// aggregator reports.
type firstLastField int

const (
	flFirst firstLastField = iota
	flLast
	flBoth
)

// FirstLastAggregator is the ordered aggregator of spec §4.7. It must
// only ever see batches in ingestion order; Ordered() reports true so
// the driver knows to preserve that order and to call Merge in the
// order peer shards were produced, since the merge rule below is
// intentionally asymmetric.
//
// First/Last reports the exact value observed at an endpoint, so
// endpoints are kept as encodeValue-encoded bytes and reconstructed
// through buildDecodedColumn at Finalize — the same round trip
// One/List/Distinct/PivotWider use — rather than widened through
// Float64At, which would discard Decimal scale, Temporal semantics,
// and precision for large integers.
type FirstLastAggregator struct {
	ctx      *ExecContext
	opts     ScalarAggregateOptions
	inType   ElementType
	decWidth int
	field    firstLastField

	firstRaw, lastRaw       [][]byte
	firstIsNull, lastIsNull *bitset.Set
	hasValues, hasAnyValues *bitset.Set
}

func decimalWidthOf(typ ElementType) int {
	width := 64
	switch typ {
	case Decimal32:
		width = 32
	case Decimal128:
		width = 128
	case Decimal256:
		width = 256
	}
	return width
}

// NewFirstLast constructs the combined {first,last} aggregator.
func NewFirstLast(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	return &FirstLastAggregator{ctx: ctx, opts: opts, inType: inType, decWidth: decimalWidthOf(inType), field: flBoth}, nil
}

// NewFirst constructs the First projection.
func NewFirst(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	return &FirstLastAggregator{ctx: ctx, opts: opts, inType: inType, decWidth: decimalWidthOf(inType), field: flFirst}, nil
}

// NewLast constructs the Last projection.
func NewLast(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	return &FirstLastAggregator{ctx: ctx, opts: opts, inType: inType, decWidth: decimalWidthOf(inType), field: flLast}, nil
}

func (a *FirstLastAggregator) NumGroups() int { return a.n() }
func (a *FirstLastAggregator) Ordered() bool  { return true }

func (a *FirstLastAggregator) n() int {
	if a.hasValues == nil {
		return 0
	}
	return a.hasValues.Len()
}

// OutType reports the input type back unchanged: First/Last is an
// order-statistic endpoint, not a reduction, so it never widens its
// result the way Sum/Mean do.
func (a *FirstLastAggregator) OutType() ElementType { return a.inType }

func (a *FirstLastAggregator) Resize(n int) error {
	old := a.n()
	if n <= old {
		return nil
	}
	fr := make([][]byte, n)
	copy(fr, a.firstRaw)
	lr := make([][]byte, n)
	copy(lr, a.lastRaw)
	a.firstRaw, a.lastRaw = fr, lr

	grow := func(s *bitset.Set) *bitset.Set {
		if s == nil {
			return bitset.New(n)
		}
		s.Grow(n)
		return s
	}
	a.firstIsNull = grow(a.firstIsNull)
	a.lastIsNull = grow(a.lastIsNull)
	a.hasValues = grow(a.hasValues)
	a.hasAnyValues = grow(a.hasAnyValues)
	return nil
}

func (a *FirstLastAggregator) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			if !a.hasValues.Get(g) {
				a.firstIsNull.Set(g)
			}
			a.lastIsNull.Set(g)
			a.hasAnyValues.Set(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if v.ValidAt(phys) {
			x := encodeValue(v, phys)
			if !a.hasValues.Get(g) {
				a.firstRaw[g] = x
				a.hasValues.Set(g)
			}
			a.lastRaw[g] = x
			a.lastIsNull.Clear(g)
			a.hasAnyValues.Set(g)
		} else {
			if !a.hasValues.Get(g) {
				a.firstIsNull.Set(g)
			}
			a.lastIsNull.Set(g)
			a.hasAnyValues.Set(g)
		}
	})
	return nil
}

// Merge is intentionally asymmetric (spec §4.7): self's first wins
// over the peer's first (self was ingested earlier in the preserved
// order), the peer's last wins over self's last, and first_is_null is
// only taken from the peer when self never observed any row at all.
func (a *FirstLastAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*FirstLastAggregator)
	if !ok {
		return invalid(a.ctx, "hash_first_last.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != o.n() {
		return invalid(a.ctx, "hash_first_last.merge", "mapping length %d != peer num_groups %d", len(mapping), o.n())
	}
	for i := 0; i < o.n(); i++ {
		g := mapping[i]
		if !o.hasAnyValues.Get(i) {
			continue
		}
		if !a.hasAnyValues.Get(g) {
			a.firstRaw[g] = o.firstRaw[i]
			if o.firstIsNull.Get(i) {
				a.firstIsNull.Set(g)
			}
			if o.hasValues.Get(i) {
				a.hasValues.Set(g)
			}
		}
		if o.hasValues.Get(i) || o.lastIsNull.Get(i) {
			a.lastRaw[g] = o.lastRaw[i]
			if o.lastIsNull.Get(i) {
				a.lastIsNull.Set(g)
			} else {
				a.lastIsNull.Clear(g)
			}
		}
		a.hasAnyValues.Set(g)
	}
	o.firstRaw, o.lastRaw = nil, nil
	o.firstIsNull, o.lastIsNull, o.hasValues, o.hasAnyValues = nil, nil, nil, nil
	return nil
}

func (a *FirstLastAggregator) endpointValid(g int, isNull *bitset.Set) bool {
	if a.opts.SkipNulls {
		return a.hasValues.Get(g)
	}
	if isNull.Get(g) {
		return false
	}
	return a.hasValues.Get(g)
}

func (a *FirstLastAggregator) Finalize() (*Column, error) {
	n := a.n()
	emit := func(raw [][]byte, isNull *bitset.Set) *Column {
		col := buildDecodedColumn(a.inType, a.decWidth, raw)
		valid := bitset.New(n)
		for g := 0; g < n; g++ {
			if a.endpointValid(g, isNull) {
				valid.Set(g)
			}
		}
		col.Valid = valid
		return col
	}
	var out *Column
	switch a.field {
	case flFirst:
		out = emit(a.firstRaw, a.firstIsNull)
	case flLast:
		out = emit(a.lastRaw, a.lastIsNull)
	default:
		interleaved := make([][]byte, n*2)
		for g := 0; g < n; g++ {
			interleaved[2*g] = a.firstRaw[g]
			interleaved[2*g+1] = a.lastRaw[g]
		}
		out = buildDecodedColumn(a.inType, a.decWidth, interleaved)
		valid := bitset.New(n * 2)
		for g := 0; g < n; g++ {
			if a.endpointValid(g, a.firstIsNull) {
				valid.Set(2 * g)
			}
			if a.endpointValid(g, a.lastIsNull) {
				valid.Set(2*g + 1)
			}
		}
		out.Valid = valid
	}
	a.reset()
	return out, nil
}

func (a *FirstLastAggregator) reset() {
	a.firstRaw, a.lastRaw = nil, nil
	a.firstIsNull, a.lastIsNull, a.hasValues, a.hasAnyValues = nil, nil, nil, nil
}
