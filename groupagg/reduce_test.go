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
	"testing"

	"github.com/arrowkit/groupagg/internal/bitset"
)

func i64Column(vals []int64, valid []bool) *Column {
	c := &Column{Type: Int64, Length: len(vals), Int64s: vals}
	if valid != nil {
		v := bitset.New(len(vals))
		for i, ok := range valid {
			v.Put(i, ok)
		}
		c.Valid = v
	}
	return c
}

func f64Column(vals []float64) *Column {
	return &Column{Type: Float64, Length: len(vals), Float64s: vals}
}

func TestSumInt64SkipsNulls(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewSum(ctx, ScalarAggregateOptions{SkipNulls: true, MinCount: 1}, Int64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(2)
	v := i64Column([]int64{1, 2, 3, 4, 0, 6}, []bool{true, true, true, true, false, true})
	g := []uint32{0, 0, 1, 1, 0, 1}
	if err := a.Consume(&Batch{Values: v, GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Int64s[0] != 3 || out.Int64s[1] != 13 {
		t.Fatalf("got %v, want [3 13]", out.Int64s)
	}
	if !out.ValidAt(0) || !out.ValidAt(1) {
		t.Fatal("expected both groups valid")
	}
}

func TestSumIntWrapsOnOverflow(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewSum(ctx, DefaultScalarAggregateOptions(), Int64)
	a.Resize(1)
	v := i64Column([]int64{int64(^uint64(0) >> 1), 1}, nil) // max int64, then +1
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, _ := a.Finalize()
	if out.Int64s[0] != -1<<63 {
		t.Fatalf("expected wraparound to math.MinInt64, got %d", out.Int64s[0])
	}
}

func TestMeanFloat64(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewMean(ctx, DefaultScalarAggregateOptions(), Float64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(2)
	v := f64Column([]float64{1, 2, 3, 4, 5, 6})
	g := []uint32{0, 0, 0, 1, 1, 1}
	if err := a.Consume(&Batch{Values: v, GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Float64s[0] != 2.0 || out.Float64s[1] != 5.0 {
		t.Fatalf("got %v, want [2 5]", out.Float64s)
	}
}

func TestSumMergeAssociative(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewSum(ctx, DefaultScalarAggregateOptions(), Int64)
	b, _ := NewSum(ctx, DefaultScalarAggregateOptions(), Int64)
	a.Resize(1)
	b.Resize(1)
	a.Consume(&Batch{Values: i64Column([]int64{1, 2}, nil), GroupIDs: []uint32{0, 0}})
	b.Consume(&Batch{Values: i64Column([]int64{3}, nil), GroupIDs: []uint32{0}})
	if err := a.Merge(b, []uint32{0}); err != nil {
		t.Fatal(err)
	}
	out, _ := a.Finalize()
	if out.Int64s[0] != 6 {
		t.Fatalf("got %d, want 6", out.Int64s[0])
	}
}

func TestProductIdentityOnEmptyGroup(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewProduct(ctx, ScalarAggregateOptions{SkipNulls: true, MinCount: 0}, Int64)
	a.Resize(1)
	out, _ := a.Finalize()
	if out.Int64s[0] != 1 {
		t.Fatalf("expected multiplicative identity 1, got %d", out.Int64s[0])
	}
}

func TestMinCountGatesOutput(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewSum(ctx, ScalarAggregateOptions{SkipNulls: true, MinCount: 3}, Int64)
	a.Resize(1)
	a.Consume(&Batch{Values: i64Column([]int64{1, 2}, nil), GroupIDs: []uint32{0, 0}})
	out, _ := a.Finalize()
	if out.ValidAt(0) {
		t.Fatal("expected group with only 2 rows to be null under min_count=3")
	}
}

func TestDecimalSumAndMeanRounding(t *testing.T) {
	ctx := NewExecContext()
	sum, err := NewSum(ctx, DefaultScalarAggregateOptions(), Decimal64)
	if err != nil {
		t.Fatal(err)
	}
	sum.Resize(1)
	col := &Column{
		Type: Decimal64, Length: 3,
		Decimals: []Decimal{
			{Coefficient: big.NewInt(100), Scale: 2, Width: 64},
			{Coefficient: big.NewInt(200), Scale: 2, Width: 64},
			{Coefficient: big.NewInt(300), Scale: 2, Width: 64},
		},
	}
	if err := sum.Consume(&Batch{Values: col, GroupIDs: []uint32{0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, _ := sum.Finalize()
	if out.Decimals[0].Coefficient.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("got %v, want 600", out.Decimals[0].Coefficient)
	}

	mean, _ := NewMean(ctx, DefaultScalarAggregateOptions(), Decimal64)
	mean.Resize(1)
	mean.Consume(&Batch{Values: col, GroupIDs: []uint32{0, 0, 0}})
	mout, _ := mean.Finalize()
	// 600/3 = 200 exactly, no rounding ambiguity.
	if mout.Decimals[0].Coefficient.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("got %v, want 200", mout.Decimals[0].Coefficient)
	}
}

func TestHalfAwayFromZeroDivRounding(t *testing.T) {
	// 5/2 = 2.5 -> rounds away from zero to 3.
	got := halfAwayFromZeroDiv(big.NewInt(5), 2)
	if got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("got %v, want 3", got)
	}
	// -5/2 = -2.5 -> rounds away from zero to -3.
	got = halfAwayFromZeroDiv(big.NewInt(-5), 2)
	if got.Cmp(big.NewInt(-3)) != 0 {
		t.Fatalf("got %v, want -3", got)
	}
}

func TestNullTypedSumAllNullWhenNotSkippingNulls(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewSum(ctx, ScalarAggregateOptions{SkipNulls: false, MinCount: 0}, Null)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(2)
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.ValidAt(0) || out.ValidAt(1) {
		t.Fatal("expected all-null output for null-typed sum with skip_nulls=false")
	}
}

func TestNullTypedSumIdentityWhenMinCountZero(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewSum(ctx, ScalarAggregateOptions{SkipNulls: true, MinCount: 0}, Null)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if !out.ValidAt(0) || out.Float64s[0] != 0 {
		t.Fatalf("expected identity 0 at group 0, got valid=%v val=%v", out.ValidAt(0), out.Float64s[0])
	}
}
