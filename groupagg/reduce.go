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
	"math/big"

	"github.com/arrowkit/groupagg/internal/bitset"
)

// reducible is the set of accumulator types the generic
// ReducingAggregator supports. Go's built-in int64 arithmetic already
// wraps silently on overflow (two's complement), which is exactly the
// "wrap on overflow" behavior spec §9 calls out for integer
// Sum/Product; float64 overflow follows IEEE 754 and yields ±Inf.
type reducible interface {
	int64 | float64
}

// ReducingAggregator is the shared skeleton behind Sum and Product
// (spec §4.3): a per-group accumulator combined with a policy function,
// gated at Finalize by min_count/skip_nulls. It is also the core that
// MeanAggregator wraps, overriding only Finalize.
type ReducingAggregator[T reducible] struct {
	ctx     *ExecContext
	opts    ScalarAggregateOptions
	op      string
	inType  ElementType
	outType ElementType
	ident   T
	combine func(a, b T) T
	read    func(col *Column, phys int) T

	reduced []T
	counts  []int64
	noNulls *bitset.Set
}

func newReducingAggregator[T reducible](
	ctx *ExecContext, opts ScalarAggregateOptions, op string,
	inType, outType ElementType, ident T,
	combine func(a, b T) T, read func(*Column, int) T,
) *ReducingAggregator[T] {
	return &ReducingAggregator[T]{
		ctx: ctx, opts: opts, op: op,
		inType: inType, outType: outType,
		ident: ident, combine: combine, read: read,
	}
}

func (a *ReducingAggregator[T]) NumGroups() int       { return len(a.reduced) }
func (a *ReducingAggregator[T]) OutType() ElementType { return a.outType }
func (a *ReducingAggregator[T]) Ordered() bool        { return false }

func (a *ReducingAggregator[T]) Resize(n int) error {
	old := len(a.reduced)
	if n <= old {
		return nil
	}
	reduced := make([]T, n)
	copy(reduced, a.reduced)
	for i := old; i < n; i++ {
		reduced[i] = a.ident
	}
	a.reduced = reduced

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

func (a *ReducingAggregator[T]) Consume(batch *Batch) error {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.noNulls.Clear(g)
		}
		return nil
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if v.ValidAt(phys) {
			a.reduced[g] = a.combine(a.reduced[g], a.read(v, phys))
			a.counts[g]++
		} else {
			a.noNulls.Clear(g)
		}
	})
	return nil
}

func (a *ReducingAggregator[T]) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*ReducingAggregator[T])
	if !ok {
		return invalid(a.ctx, a.op+".merge", "peer aggregator type mismatch")
	}
	if len(mapping) != len(o.reduced) {
		return invalid(a.ctx, a.op+".merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.reduced))
	}
	for i := range o.reduced {
		g := mapping[i]
		a.reduced[g] = a.combine(a.reduced[g], o.reduced[i])
		a.counts[g] += o.counts[i]
		if !o.noNulls.Get(i) {
			a.noNulls.Clear(g)
		}
	}
	o.reduced, o.counts, o.noNulls = nil, nil, nil
	return nil
}

// Finalize is shared by Sum/Product's integer and float
// instantiations; Mean overrides this behavior entirely since its
// output type and arithmetic differ (see MeanAggregator below).
func (a *ReducingAggregator[T]) Finalize() (*Column, error) {
	n := len(a.reduced)
	valid := bitset.NewFilled(n)
	for g := 0; g < n; g++ {
		if uint32(a.counts[g]) < a.opts.MinCount {
			valid.Clear(g)
			continue
		}
		if !a.opts.SkipNulls && !a.noNulls.Get(g) {
			valid.Clear(g)
		}
	}
	out := &Column{Type: a.outType, Length: n, Valid: valid}
	switch a.outType {
	case Int64:
		vals := make([]int64, n)
		for g, v := range a.reduced {
			vals[g] = int64(any(v).(int64))
		}
		out.Int64s = vals
	case Float64:
		vals := make([]float64, n)
		for g, v := range a.reduced {
			vals[g] = float64(any(v).(float64))
		}
		out.Float64s = vals
	}
	a.reduced, a.counts, a.noNulls = nil, nil, nil
	return out, nil
}

// NewSum constructs the Sum aggregator for the given input element
// type (spec §4.3).
func NewSum(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	switch {
	case inType == Null:
		return newNullReducingAggregator(ctx, opts, inType), nil
	case inType.IsDecimal():
		return newDecimalSum(ctx, opts, inType), nil
	case inType.IsFloat():
		return newReducingAggregator[float64](ctx, opts, "hash_sum", inType, Float64, 0,
			func(a, b float64) float64 { return a + b }, (*Column).Float64At), nil
	case inType.IsInteger():
		return newReducingAggregator[int64](ctx, opts, "hash_sum", inType, Int64, 0,
			func(a, b int64) int64 { return a + b }, (*Column).Int64At), nil
	default:
		return nil, notImplemented(ctx, "hash_sum.init", inType)
	}
}

// NewProduct constructs the Product aggregator for the given input
// element type (spec §4.3).
func NewProduct(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	switch {
	case inType == Null:
		return newNullReducingAggregator(ctx, opts, inType), nil
	case inType.IsDecimal():
		return newDecimalProduct(ctx, opts, inType), nil
	case inType.IsFloat():
		return newReducingAggregator[float64](ctx, opts, "hash_product", inType, Float64, 1,
			func(a, b float64) float64 { return a * b }, (*Column).Float64At), nil
	case inType.IsInteger():
		return newReducingAggregator[int64](ctx, opts, "hash_product", inType, Int64, 1,
			func(a, b int64) int64 { return a * b }, (*Column).Int64At), nil
	default:
		return nil, notImplemented(ctx, "hash_product.init", inType)
	}
}

// MeanAggregator wraps a sum-shaped ReducingAggregator but finalizes
// as sum/count expressed as float64, per spec §4.3.
type MeanAggregator[T reducible] struct {
	core *ReducingAggregator[T]
}

// NewMean constructs the Mean aggregator for the given input element
// type (spec §4.3).
func NewMean(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) (Aggregator, error) {
	switch {
	case inType == Null:
		return newNullMeanAggregator(ctx, opts, inType), nil
	case inType.IsDecimal():
		return newDecimalMean(ctx, opts, inType), nil
	case inType.IsFloat():
		core := newReducingAggregator[float64](ctx, opts, "hash_mean", inType, Float64, 0,
			func(a, b float64) float64 { return a + b }, (*Column).Float64At)
		return &MeanAggregator[float64]{core: core}, nil
	case inType.IsInteger():
		core := newReducingAggregator[int64](ctx, opts, "hash_mean", inType, Int64, 0,
			func(a, b int64) int64 { return a + b }, (*Column).Int64At)
		return &MeanAggregator[int64]{core: core}, nil
	default:
		return nil, notImplemented(ctx, "hash_mean.init", inType)
	}
}

func (a *MeanAggregator[T]) NumGroups() int             { return a.core.NumGroups() }
func (a *MeanAggregator[T]) OutType() ElementType       { return Float64 }
func (a *MeanAggregator[T]) Ordered() bool              { return false }
func (a *MeanAggregator[T]) Resize(n int) error         { return a.core.Resize(n) }
func (a *MeanAggregator[T]) Consume(batch *Batch) error { return a.core.Consume(batch) }

func (a *MeanAggregator[T]) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*MeanAggregator[T])
	if !ok {
		return invalid(a.core.ctx, "hash_mean.merge", "peer aggregator type mismatch")
	}
	return a.core.Merge(o.core, mapping)
}

func (a *MeanAggregator[T]) Finalize() (*Column, error) {
	c := a.core
	n := len(c.reduced)
	valid := bitset.NewFilled(n)
	vals := make([]float64, n)
	for g := 0; g < n; g++ {
		if uint32(c.counts[g]) < c.opts.MinCount || c.counts[g] == 0 {
			valid.Clear(g)
			continue
		}
		if !c.opts.SkipNulls && !c.noNulls.Get(g) {
			valid.Clear(g)
			continue
		}
		vals[g] = toFloat64(c.reduced[g]) / float64(c.counts[g])
	}
	c.reduced, c.counts, c.noNulls = nil, nil, nil
	return &Column{Type: Float64, Length: n, Valid: valid, Float64s: vals}, nil
}

func toFloat64[T reducible](v T) float64 {
	switch x := any(v).(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// --- null-typed input ---

// newNullReducingAggregator implements the degenerate sum/product
// aggregator for Null-typed input (spec §4.3, §9): output is all-null
// unless skip_nulls && min_count == 0, in which case it emits a valid
// 0 for every group, for Product as well as Sum (an empty-but-present
// group of entirely-null rows still "sums to zero").
type nullReducingAggregator struct {
	ctx       *ExecContext
	opts      ScalarAggregateOptions
	numGroups int
}

func newNullReducingAggregator(ctx *ExecContext, opts ScalarAggregateOptions, _ ElementType) *nullReducingAggregator {
	return &nullReducingAggregator{ctx: ctx, opts: opts}
}

func (a *nullReducingAggregator) NumGroups() int       { return a.numGroups }
func (a *nullReducingAggregator) OutType() ElementType { return Float64 }
func (a *nullReducingAggregator) Ordered() bool        { return false }
func (a *nullReducingAggregator) Resize(n int) error {
	if n > a.numGroups {
		a.numGroups = n
	}
	return nil
}
func (a *nullReducingAggregator) Consume(batch *Batch) error { return nil }
func (a *nullReducingAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*nullReducingAggregator)
	if !ok {
		return invalid(a.ctx, "hash_sum.merge", "peer aggregator type mismatch")
	}
	_ = o
	return nil
}
func (a *nullReducingAggregator) Finalize() (*Column, error) {
	n := a.numGroups
	out := &Column{Type: Float64, Length: n, Float64s: make([]float64, n)}
	if !(a.opts.SkipNulls && a.opts.MinCount == 0) {
		out.Valid = bitset.New(n) // all-null
	}
	return out, nil
}

type nullMeanAggregator struct {
	*nullReducingAggregator
}

func newNullMeanAggregator(ctx *ExecContext, opts ScalarAggregateOptions, elem ElementType) *nullMeanAggregator {
	return &nullMeanAggregator{newNullReducingAggregator(ctx, opts, elem)}
}

// --- decimal sum/product/mean ---

// decimalReducer is the decimal-aware analogue of ReducingAggregator:
// the accumulator is a big.Int coefficient at the input's scale, since
// a per-type monomorphized numeric path (int64/float64) cannot express
// arbitrary-precision decimal arithmetic (spec §4.3, "decimal types
// need scale-aware conversion").
type decimalReducer struct {
	ctx     *ExecContext
	opts    ScalarAggregateOptions
	op      string
	scale   int32
	width   int
	ident   *big.Int
	combine func(a, b *big.Int) *big.Int

	reduced []*big.Int
	counts  []int64
	noNulls *bitset.Set
}

func newDecimalReducer(ctx *ExecContext, opts ScalarAggregateOptions, op string, inType ElementType, ident *big.Int, combine func(a, b *big.Int) *big.Int) *decimalReducer {
	width := 64
	switch inType {
	case Decimal32:
		width = 32
	case Decimal128:
		width = 128
	case Decimal256:
		width = 256
	}
	return &decimalReducer{ctx: ctx, opts: opts, op: op, width: width, ident: ident, combine: combine}
}

func (a *decimalReducer) NumGroups() int { return len(a.reduced) }
func (a *decimalReducer) Ordered() bool  { return false }

func (a *decimalReducer) Resize(n int) error {
	old := len(a.reduced)
	if n <= old {
		return nil
	}
	reduced := make([]*big.Int, n)
	copy(reduced, a.reduced)
	for i := old; i < n; i++ {
		reduced[i] = new(big.Int).Set(a.ident)
	}
	a.reduced = reduced
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

func (a *decimalReducer) consume(batch *Batch) {
	v := batch.Values
	if v == nil || v.Type == Null {
		for _, g := range batch.GroupIDs {
			a.noNulls.Clear(g)
		}
		return
	}
	v.Walk(func(row, phys int) {
		g := batch.GroupIDs[row]
		if v.ValidAt(phys) {
			d := v.Decimals[phys]
			a.scale = d.Scale
			a.reduced[g] = a.combine(a.reduced[g], d.Coefficient)
			a.counts[g]++
		} else {
			a.noNulls.Clear(g)
		}
	})
}

func (a *decimalReducer) merge(o *decimalReducer, mapping []uint32) error {
	if len(mapping) != len(o.reduced) {
		return invalid(a.ctx, a.op+".merge", "mapping length %d != peer num_groups %d", len(mapping), len(o.reduced))
	}
	if o.scale != 0 {
		a.scale = o.scale
	}
	for i := range o.reduced {
		g := mapping[i]
		a.reduced[g] = a.combine(a.reduced[g], o.reduced[i])
		a.counts[g] += o.counts[i]
		if !o.noNulls.Get(i) {
			a.noNulls.Clear(g)
		}
	}
	o.reduced, o.counts, o.noNulls = nil, nil, nil
	return nil
}

func (a *decimalReducer) validMask() *bitset.Set {
	n := len(a.reduced)
	valid := bitset.NewFilled(n)
	for g := 0; g < n; g++ {
		if uint32(a.counts[g]) < a.opts.MinCount {
			valid.Clear(g)
			continue
		}
		if !a.opts.SkipNulls && !a.noNulls.Get(g) {
			valid.Clear(g)
		}
	}
	return valid
}

type decimalSumAggregator struct{ *decimalReducer }

func newDecimalSum(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) *decimalSumAggregator {
	return &decimalSumAggregator{newDecimalReducer(ctx, opts, "hash_sum", inType, big.NewInt(0),
		func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) })}
}
func (a *decimalSumAggregator) OutType() ElementType   { return a.elemType() }
func (a *decimalSumAggregator) Consume(b *Batch) error { a.consume(b); return nil }
func (a *decimalSumAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*decimalSumAggregator)
	if !ok {
		return invalid(a.ctx, "hash_sum.merge", "peer aggregator type mismatch")
	}
	return a.merge(o.decimalReducer, mapping)
}
func (a *decimalSumAggregator) Finalize() (*Column, error) {
	n := len(a.reduced)
	valid := a.validMask()
	vals := make([]Decimal, n)
	for g, c := range a.reduced {
		vals[g] = Decimal{Coefficient: c, Scale: a.scale, Width: a.width}
	}
	a.reduced, a.counts, a.noNulls = nil, nil, nil
	return &Column{Type: a.elemType(), Length: n, Valid: valid, Decimals: vals}, nil
}
func (a *decimalSumAggregator) elemType() ElementType { return decimalTypeForWidth(a.width) }

type decimalProductAggregator struct{ *decimalReducer }

func newDecimalProduct(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) *decimalProductAggregator {
	return &decimalProductAggregator{newDecimalReducer(ctx, opts, "hash_product", inType, big.NewInt(1),
		func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) })}
}
func (a *decimalProductAggregator) OutType() ElementType   { return decimalTypeForWidth(a.width) }
func (a *decimalProductAggregator) Consume(b *Batch) error { a.consume(b); return nil }
func (a *decimalProductAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*decimalProductAggregator)
	if !ok {
		return invalid(a.ctx, "hash_product.merge", "peer aggregator type mismatch")
	}
	return a.merge(o.decimalReducer, mapping)
}
func (a *decimalProductAggregator) Finalize() (*Column, error) {
	n := len(a.reduced)
	valid := a.validMask()
	vals := make([]Decimal, n)
	for g, c := range a.reduced {
		vals[g] = Decimal{Coefficient: c, Scale: a.scale, Width: a.width}
	}
	a.reduced, a.counts, a.noNulls = nil, nil, nil
	return &Column{Type: decimalTypeForWidth(a.width), Length: n, Valid: valid, Decimals: vals}, nil
}

// decimalMeanAggregator emits sum/count in the input's decimal type,
// rounding half-away-from-zero by comparing the doubled remainder
// against the divisor (spec §4.3).
type decimalMeanAggregator struct{ *decimalReducer }

func newDecimalMean(ctx *ExecContext, opts ScalarAggregateOptions, inType ElementType) *decimalMeanAggregator {
	return &decimalMeanAggregator{newDecimalReducer(ctx, opts, "hash_mean", inType, big.NewInt(0),
		func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) })}
}
func (a *decimalMeanAggregator) OutType() ElementType   { return decimalTypeForWidth(a.width) }
func (a *decimalMeanAggregator) Consume(b *Batch) error { a.consume(b); return nil }
func (a *decimalMeanAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*decimalMeanAggregator)
	if !ok {
		return invalid(a.ctx, "hash_mean.merge", "peer aggregator type mismatch")
	}
	return a.merge(o.decimalReducer, mapping)
}
func (a *decimalMeanAggregator) Finalize() (*Column, error) {
	n := len(a.reduced)
	valid := a.validMask()
	vals := make([]Decimal, n)
	for g := 0; g < n; g++ {
		if a.counts[g] == 0 {
			vals[g] = Decimal{Coefficient: big.NewInt(0), Scale: a.scale, Width: a.width}
			continue
		}
		vals[g] = Decimal{Coefficient: halfAwayFromZeroDiv(a.reduced[g], a.counts[g]), Scale: a.scale, Width: a.width}
	}
	a.reduced, a.counts, a.noNulls = nil, nil, nil
	return &Column{Type: decimalTypeForWidth(a.width), Length: n, Valid: valid, Decimals: vals}, nil
}

// halfAwayFromZeroDiv computes round(sum/count) rounding halves away
// from zero, by comparing 2*remainder against count, as the original
// implementation does.
func halfAwayFromZeroDiv(sum *big.Int, count int64) *big.Int {
	divisor := big.NewInt(count)
	q, r := new(big.Int).QuoRem(sum, divisor, new(big.Int))
	twiceR := new(big.Int).Mul(r, big.NewInt(2))
	twiceR.Abs(twiceR)
	absDivisor := new(big.Int).Abs(divisor)
	if twiceR.Cmp(absDivisor) >= 0 {
		if sum.Sign() >= 0 {
			q.Add(q, big.NewInt(1))
		} else {
			q.Sub(q, big.NewInt(1))
		}
	}
	return q
}

func decimalTypeForWidth(width int) ElementType {
	switch width {
	case 32:
		return Decimal32
	case 128:
		return Decimal128
	case 256:
		return Decimal256
	default:
		return Decimal64
	}
}
