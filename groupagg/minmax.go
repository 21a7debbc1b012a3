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
	"bytes"

	"github.com/arrowkit/groupagg/date"
	"github.com/arrowkit/groupagg/internal/bitset"
)

// minMaxField selects which of MinMax's two endpoints a projected
// Min/Max aggregator reports.
type minMaxField int

const (
	fieldMin minMaxField = iota
	fieldMax
	fieldBoth
)

// MinMaxAggregator covers Bool and the fixed-width integer/float
// families with two dense per-group arrays, updated by plain
// comparison on the hot path (spec §4.6). Min/Max are thin
// projections of the same state. OutType always reports the input
// type back unchanged, matching the ground truth's
// struct_({field("min", type_), field("max", type_)}): MinMax never
// widens its endpoints to float64, since that would discard precision
// for anything beyond 2^53 and would turn Decimal/Temporal endpoints
// into an unrelated type.
type MinMaxAggregator[T reducible] struct {
	ctx    *ExecContext
	opts   ScalarAggregateOptions
	inType ElementType
	field  minMaxField
	read   func(col *Column, phys int) T

	mins, maxes         []T
	hasValues, hasNulls *bitset.Set
}

// NewMinMax constructs the combined {min,max} aggregator.
func NewMinMax(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	return newMinMaxAggregator(ctx, opts, inType, fieldBoth)
}

// NewMin constructs the Min projection.
func NewMin(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	return newMinMaxAggregator(ctx, opts, inType, fieldMin)
}

// NewMax constructs the Max projection.
func NewMax(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	return newMinMaxAggregator(ctx, opts, inType, fieldMax)
}

func newMinMaxAggregator(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType, field minMaxField) (Aggregator, error) {
	switch {
	case inType == Null:
		return &nullMinMaxAggregator{field: field}, nil
	case inType.IsBinaryLike():
		return newBinaryMinMaxAggregator(ctx, opts, inType, field), nil
	case inType.IsDecimal():
		return newDecimalMinMaxAggregator(ctx, opts, inType, field), nil
	case inType == Temporal:
		return newTemporalMinMaxAggregator(ctx, opts, inType, field), nil
	case inType.IsFloat():
		return &MinMaxAggregator[float64]{ctx: ctx, opts: opts, inType: inType, field: field, read: (*Column).Float64At}, nil
	case inType.IsInteger():
		return &MinMaxAggregator[int64]{ctx: ctx, opts: opts, inType: inType, field: field, read: (*Column).Int64At}, nil
	default:
		return nil, notImplemented(ctx, "hash_min_max.init", inType)
	}
}

func (a *MinMaxAggregator[T]) NumGroups() int       { return len(a.mins) }
func (a *MinMaxAggregator[T]) Ordered() bool        { return false }
func (a *MinMaxAggregator[T]) OutType() ElementType { return a.inType }

func (a *MinMaxAggregator[T]) Resize(n int) error {
	old := len(a.mins)
	if n <= old {
		return nil
	}
	mins := make([]T, n)
	copy(mins, a.mins)
	maxes := make([]T, n)
	copy(maxes, a.maxes)
	a.mins, a.maxes = mins, maxes

	if a.hasValues == nil {
		a.hasValues = bitset.New(n)
		a.hasNulls = bitset.New(n)
	} else {
		a.hasValues.Grow(n)
		a.hasNulls.Grow(n)
	}
	return nil
}

func (a *MinMaxAggregator[T]) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.hasNulls.Set(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if !v.ValidAt(phys) {
			a.hasNulls.Set(g)
			return
		}
		// booleans order false < true, so the same comparison tracks
		// the logical AND (min) / OR (max) of all observed values.
		x := a.read(v, phys)
		if !a.hasValues.Get(g) || x < a.mins[g] {
			a.mins[g] = x
		}
		if !a.hasValues.Get(g) || x > a.maxes[g] {
			a.maxes[g] = x
		}
		a.hasValues.Set(g)
	})
	return nil
}

func (a *MinMaxAggregator[T]) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*MinMaxAggregator[T])
	if !ok {
		return invalid(a.ctx, "hash_min_max.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.mins) {
		return invalid(a.ctx, "hash_min_max.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.mins))
	}
	for i := range o.mins {
		g := mapping[i]
		if o.hasValues.Get(i) {
			if !a.hasValues.Get(g) || o.mins[i] < a.mins[g] {
				a.mins[g] = o.mins[i]
			}
			if !a.hasValues.Get(g) || o.maxes[i] > a.maxes[g] {
				a.maxes[g] = o.maxes[i]
			}
			a.hasValues.Set(g)
		}
		if o.hasNulls.Get(i) {
			a.hasNulls.Set(g)
		}
	}
	o.mins, o.maxes, o.hasValues, o.hasNulls = nil, nil, nil, nil
	return nil
}

func (a *MinMaxAggregator[T]) validMask() *bitset.Set {
	n := len(a.mins)
	valid := bitset.New(n)
	for g := 0; g < n; g++ {
		if a.hasValues.Get(g) && (a.opts.SkipNulls || !a.hasNulls.Get(g)) {
			valid.Set(g)
		}
	}
	return valid
}

// column builds the typed output Column for a slice of endpoint
// values, picking the Column field that matches a.inType the same way
// buildDecodedColumn does for every other type-preserving aggregator
// in this package.
func (a *MinMaxAggregator[T]) column(vals []T, valid *bitset.Set, n int) *Column {
	if a.inType == Bool {
		bools := make([]bool, n)
		for i, v := range vals {
			bools[i] = any(v).(int64) != 0
		}
		return &Column{Type: Bool, Length: n, Valid: valid, Bools: bools}
	}
	if a.inType.IsFloat() {
		floats := make([]float64, n)
		for i, v := range vals {
			floats[i] = any(v).(float64)
		}
		return &Column{Type: a.inType, Length: n, Valid: valid, Float64s: floats}
	}
	ints := make([]int64, n)
	for i, v := range vals {
		ints[i] = any(v).(int64)
	}
	return &Column{Type: a.inType, Length: n, Valid: valid, Int64s: ints}
}

func (a *MinMaxAggregator[T]) Finalize() (*Column, error) {
	n := len(a.mins)
	valid := a.validMask()
	var out *Column

	switch a.field {
	case fieldMin:
		out = a.column(a.mins, valid, n)
	case fieldMax:
		out = a.column(a.maxes, valid, n)
	default:
		// combined {min,max}: interleave as [min0,max0,min1,max1,...]
		interleaved := make([]T, n*2)
		ivalid := bitset.New(n * 2)
		for g := 0; g < n; g++ {
			interleaved[2*g] = a.mins[g]
			interleaved[2*g+1] = a.maxes[g]
			if valid.Get(g) {
				ivalid.Set(2 * g)
				ivalid.Set(2*g + 1)
			}
		}
		out = a.column(interleaved, ivalid, n*2)
	}
	a.mins, a.maxes, a.hasValues, a.hasNulls = nil, nil, nil, nil
	return out, nil
}

// nullMinMaxAggregator implements the all-null struct output for
// Null-typed input (spec §4.6).
type nullMinMaxAggregator struct {
	field minMaxField
	n     int
}

func (a *nullMinMaxAggregator) NumGroups() int { return a.n }
func (a *nullMinMaxAggregator) Ordered() bool  { return false }
func (a *nullMinMaxAggregator) OutType() ElementType {
	return Float64
}
func (a *nullMinMaxAggregator) Resize(n int) error {
	if n > a.n {
		a.n = n
	}
	return nil
}
func (a *nullMinMaxAggregator) Consume(batch *Batch) error                     { return nil }
func (a *nullMinMaxAggregator) Merge(other Aggregator, mapping []uint32) error { return nil }
func (a *nullMinMaxAggregator) Finalize() (*Column, error) {
	width := 1
	if a.field == fieldBoth {
		width = 2
	}
	n := a.n * width
	return &Column{Type: Float64, Length: n, Valid: bitset.New(n), Float64s: make([]float64, n)}, nil
}

// binaryMinMaxAggregator covers String/Binary/FixedSizeBinary,
// tracking one Option<[]byte> endpoint per group with lexicographic
// byte comparison (spec §4.6).
type binaryMinMaxAggregator struct {
	ctx    *ExecContext
	opts   ScalarAggregateOptions
	inType ElementType
	field  minMaxField

	mins, maxes         [][]byte
	hasValues, hasNulls *bitset.Set
}

func newBinaryMinMaxAggregator(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType, field minMaxField) *binaryMinMaxAggregator {
	return &binaryMinMaxAggregator{ctx: ctx, opts: opts, inType: inType, field: field}
}

func (a *binaryMinMaxAggregator) NumGroups() int       { return len(a.mins) }
func (a *binaryMinMaxAggregator) Ordered() bool        { return false }
func (a *binaryMinMaxAggregator) OutType() ElementType { return a.inType }

func (a *binaryMinMaxAggregator) Resize(n int) error {
	old := len(a.mins)
	if n <= old {
		return nil
	}
	mins := make([][]byte, n)
	copy(mins, a.mins)
	maxes := make([][]byte, n)
	copy(maxes, a.maxes)
	a.mins, a.maxes = mins, maxes
	if a.hasValues == nil {
		a.hasValues = bitset.New(n)
		a.hasNulls = bitset.New(n)
	} else {
		a.hasValues.Grow(n)
		a.hasNulls.Grow(n)
	}
	return nil
}

func (a *binaryMinMaxAggregator) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.hasNulls.Set(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if !v.ValidAt(phys) {
			a.hasNulls.Set(g)
			return
		}
		x := v.Strings[phys]
		if !a.hasValues.Get(g) || bytes.Compare(x, a.mins[g]) < 0 {
			a.mins[g] = x
		}
		if !a.hasValues.Get(g) || bytes.Compare(x, a.maxes[g]) > 0 {
			a.maxes[g] = x
		}
		a.hasValues.Set(g)
	})
	return nil
}

func (a *binaryMinMaxAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*binaryMinMaxAggregator)
	if !ok {
		return invalid(a.ctx, "hash_min_max.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.mins) {
		return invalid(a.ctx, "hash_min_max.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.mins))
	}
	for i := range o.mins {
		g := mapping[i]
		if o.hasValues.Get(i) {
			if !a.hasValues.Get(g) || bytes.Compare(o.mins[i], a.mins[g]) < 0 {
				a.mins[g] = o.mins[i]
			}
			if !a.hasValues.Get(g) || bytes.Compare(o.maxes[i], a.maxes[g]) > 0 {
				a.maxes[g] = o.maxes[i]
			}
			a.hasValues.Set(g)
		}
		if o.hasNulls.Get(i) {
			a.hasNulls.Set(g)
		}
	}
	o.mins, o.maxes, o.hasValues, o.hasNulls = nil, nil, nil, nil
	return nil
}

func (a *binaryMinMaxAggregator) Finalize() (*Column, error) {
	n := len(a.mins)
	valid := bitset.New(n)
	for g := 0; g < n; g++ {
		if a.hasValues.Get(g) && (a.opts.SkipNulls || !a.hasNulls.Get(g)) {
			valid.Set(g)
		}
	}
	emit := func(vals [][]byte) *Column {
		return &Column{Type: a.inType, Length: n, Valid: valid, Strings: vals}
	}
	var out *Column
	switch a.field {
	case fieldMin:
		out = emit(a.mins)
	case fieldMax:
		out = emit(a.maxes)
	default:
		interleaved := make([][]byte, n*2)
		ivalid := bitset.New(n * 2)
		for g := 0; g < n; g++ {
			interleaved[2*g] = a.mins[g]
			interleaved[2*g+1] = a.maxes[g]
			if valid.Get(g) {
				ivalid.Set(2 * g)
				ivalid.Set(2*g + 1)
			}
		}
		out = &Column{Type: a.inType, Length: n * 2, Valid: ivalid, Strings: interleaved}
	}
	a.mins, a.maxes, a.hasValues, a.hasNulls = nil, nil, nil, nil
	return out, nil
}

// decimalMinMaxAggregator covers Decimal32/64/128/256, comparing
// coefficients after rescaling to a common scale via Decimal.Cmp so
// min/max never widen to float64 and lose precision (spec §4.6).
type decimalMinMaxAggregator struct {
	ctx    *ExecContext
	opts   ScalarAggregateOptions
	inType ElementType
	field  minMaxField

	mins, maxes         []Decimal
	hasValues, hasNulls *bitset.Set
}

func newDecimalMinMaxAggregator(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType, field minMaxField) *decimalMinMaxAggregator {
	return &decimalMinMaxAggregator{ctx: ctx, opts: opts, inType: inType, field: field}
}

func (a *decimalMinMaxAggregator) NumGroups() int       { return len(a.mins) }
func (a *decimalMinMaxAggregator) Ordered() bool        { return false }
func (a *decimalMinMaxAggregator) OutType() ElementType { return a.inType }

func (a *decimalMinMaxAggregator) Resize(n int) error {
	old := len(a.mins)
	if n <= old {
		return nil
	}
	mins := make([]Decimal, n)
	copy(mins, a.mins)
	maxes := make([]Decimal, n)
	copy(maxes, a.maxes)
	a.mins, a.maxes = mins, maxes
	if a.hasValues == nil {
		a.hasValues = bitset.New(n)
		a.hasNulls = bitset.New(n)
	} else {
		a.hasValues.Grow(n)
		a.hasNulls.Grow(n)
	}
	return nil
}

func (a *decimalMinMaxAggregator) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.hasNulls.Set(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if !v.ValidAt(phys) {
			a.hasNulls.Set(g)
			return
		}
		x := v.Decimals[phys]
		if !a.hasValues.Get(g) || x.Cmp(a.mins[g]) < 0 {
			a.mins[g] = x
		}
		if !a.hasValues.Get(g) || x.Cmp(a.maxes[g]) > 0 {
			a.maxes[g] = x
		}
		a.hasValues.Set(g)
	})
	return nil
}

func (a *decimalMinMaxAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*decimalMinMaxAggregator)
	if !ok {
		return invalid(a.ctx, "hash_min_max.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.mins) {
		return invalid(a.ctx, "hash_min_max.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.mins))
	}
	for i := range o.mins {
		g := mapping[i]
		if o.hasValues.Get(i) {
			if !a.hasValues.Get(g) || o.mins[i].Cmp(a.mins[g]) < 0 {
				a.mins[g] = o.mins[i]
			}
			if !a.hasValues.Get(g) || o.maxes[i].Cmp(a.maxes[g]) > 0 {
				a.maxes[g] = o.maxes[i]
			}
			a.hasValues.Set(g)
		}
		if o.hasNulls.Get(i) {
			a.hasNulls.Set(g)
		}
	}
	o.mins, o.maxes, o.hasValues, o.hasNulls = nil, nil, nil, nil
	return nil
}

func (a *decimalMinMaxAggregator) Finalize() (*Column, error) {
	n := len(a.mins)
	valid := bitset.New(n)
	for g := 0; g < n; g++ {
		if a.hasValues.Get(g) && (a.opts.SkipNulls || !a.hasNulls.Get(g)) {
			valid.Set(g)
		}
	}
	emit := func(vals []Decimal) *Column {
		return &Column{Type: a.inType, Length: n, Valid: valid, Decimals: vals}
	}
	var out *Column
	switch a.field {
	case fieldMin:
		out = emit(a.mins)
	case fieldMax:
		out = emit(a.maxes)
	default:
		interleaved := make([]Decimal, n*2)
		ivalid := bitset.New(n * 2)
		for g := 0; g < n; g++ {
			interleaved[2*g] = a.mins[g]
			interleaved[2*g+1] = a.maxes[g]
			if valid.Get(g) {
				ivalid.Set(2 * g)
				ivalid.Set(2*g + 1)
			}
		}
		out = &Column{Type: a.inType, Length: n * 2, Valid: ivalid, Decimals: interleaved}
	}
	a.mins, a.maxes, a.hasValues, a.hasNulls = nil, nil, nil, nil
	return out, nil
}

// temporalMinMaxAggregator covers Temporal, comparing via date.Time's
// own Before/After instead of widening to a UnixNano float64 (spec
// §4.6).
type temporalMinMaxAggregator struct {
	ctx    *ExecContext
	opts   ScalarAggregateOptions
	inType ElementType
	field  minMaxField

	mins, maxes         []date.Time
	hasValues, hasNulls *bitset.Set
}

func newTemporalMinMaxAggregator(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType, field minMaxField) *temporalMinMaxAggregator {
	return &temporalMinMaxAggregator{ctx: ctx, opts: opts, inType: inType, field: field}
}

func (a *temporalMinMaxAggregator) NumGroups() int       { return len(a.mins) }
func (a *temporalMinMaxAggregator) Ordered() bool        { return false }
func (a *temporalMinMaxAggregator) OutType() ElementType { return a.inType }

func (a *temporalMinMaxAggregator) Resize(n int) error {
	old := len(a.mins)
	if n <= old {
		return nil
	}
	mins := make([]date.Time, n)
	copy(mins, a.mins)
	maxes := make([]date.Time, n)
	copy(maxes, a.maxes)
	a.mins, a.maxes = mins, maxes
	if a.hasValues == nil {
		a.hasValues = bitset.New(n)
		a.hasNulls = bitset.New(n)
	} else {
		a.hasValues.Grow(n)
		a.hasNulls.Grow(n)
	}
	return nil
}

func (a *temporalMinMaxAggregator) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.hasNulls.Set(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if !v.ValidAt(phys) {
			a.hasNulls.Set(g)
			return
		}
		x := v.Times[phys]
		if !a.hasValues.Get(g) || x.Before(a.mins[g]) {
			a.mins[g] = x
		}
		if !a.hasValues.Get(g) || x.After(a.maxes[g]) {
			a.maxes[g] = x
		}
		a.hasValues.Set(g)
	})
	return nil
}

func (a *temporalMinMaxAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*temporalMinMaxAggregator)
	if !ok {
		return invalid(a.ctx, "hash_min_max.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.mins) {
		return invalid(a.ctx, "hash_min_max.merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.mins))
	}
	for i := range o.mins {
		g := mapping[i]
		if o.hasValues.Get(i) {
			if !a.hasValues.Get(g) || o.mins[i].Before(a.mins[g]) {
				a.mins[g] = o.mins[i]
			}
			if !a.hasValues.Get(g) || o.maxes[i].After(a.maxes[g]) {
				a.maxes[g] = o.maxes[i]
			}
			a.hasValues.Set(g)
		}
		if o.hasNulls.Get(i) {
			a.hasNulls.Set(g)
		}
	}
	o.mins, o.maxes, o.hasValues, o.hasNulls = nil, nil, nil, nil
	return nil
}

func (a *temporalMinMaxAggregator) Finalize() (*Column, error) {
	n := len(a.mins)
	valid := bitset.New(n)
	for g := 0; g < n; g++ {
		if a.hasValues.Get(g) && (a.opts.SkipNulls || !a.hasNulls.Get(g)) {
			valid.Set(g)
		}
	}
	emit := func(vals []date.Time) *Column {
		return &Column{Type: Temporal, Length: n, Valid: valid, Times: vals}
	}
	var out *Column
	switch a.field {
	case fieldMin:
		out = emit(a.mins)
	case fieldMax:
		out = emit(a.maxes)
	default:
		interleaved := make([]date.Time, n*2)
		ivalid := bitset.New(n * 2)
		for g := 0; g < n; g++ {
			interleaved[2*g] = a.mins[g]
			interleaved[2*g+1] = a.maxes[g]
			if valid.Get(g) {
				ivalid.Set(2 * g)
				ivalid.Set(2*g + 1)
			}
		}
		out = &Column{Type: Temporal, Length: n * 2, Valid: ivalid, Times: interleaved}
	}
	a.mins, a.maxes, a.hasValues, a.hasNulls = nil, nil, nil, nil
	return out, nil
}
