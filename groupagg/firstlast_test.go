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

	"github.com/arrowkit/groupagg/date"
)

func TestFirstLastWithinBatch(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewFirstLast(ctx, DefaultScalarAggregateOptions(), Int64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	v := i64Column([]int64{10, 20, 30}, nil)
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != Int64 {
		t.Fatalf("expected Int64 output type preserved from input, got %v", out.Type)
	}
	if out.Int64s[0] != 10 || out.Int64s[1] != 30 {
		t.Fatalf("got first=%v last=%v, want first=10 last=30", out.Int64s[0], out.Int64s[1])
	}
}

func TestFirstLastAsymmetricMerge(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewFirstLast(ctx, DefaultScalarAggregateOptions(), Int64)
	b, _ := NewFirstLast(ctx, DefaultScalarAggregateOptions(), Int64)
	a.Resize(1)
	b.Resize(1)
	// a ingested earlier in the preserved order: [1, 2]
	a.Consume(&Batch{Values: i64Column([]int64{1, 2}, nil), GroupIDs: []uint32{0, 0}})
	// b ingested later: [3, 4]
	b.Consume(&Batch{Values: i64Column([]int64{3, 4}, nil), GroupIDs: []uint32{0, 0}})
	if err := a.Merge(b, []uint32{0}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Int64s[0] != 1 {
		t.Fatalf("got first=%v, want 1 (self wins)", out.Int64s[0])
	}
	if out.Int64s[1] != 4 {
		t.Fatalf("got last=%v, want 4 (other wins)", out.Int64s[1])
	}
}

func TestFirstIsNullReplacedOnlyWhenSelfEmpty(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewFirstLast(ctx, ScalarAggregateOptions{SkipNulls: false}, Int64)
	b, _ := NewFirstLast(ctx, ScalarAggregateOptions{SkipNulls: false}, Int64)
	a.Resize(1)
	b.Resize(1)
	// self never saw any row for this group.
	// peer's first row is null.
	v := i64Column([]int64{0}, []bool{false})
	b.Consume(&Batch{Values: v, GroupIDs: []uint32{0}})
	if err := a.Merge(b, []uint32{0}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.ValidAt(0) {
		t.Fatal("expected null first: replaced by peer's first_is_null since self was empty")
	}
}

func TestFirstProjection(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewFirst(ctx, DefaultScalarAggregateOptions(), Int64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	v := i64Column([]int64{7, 8, 9}, nil)
	a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0}})
	out, _ := a.Finalize()
	if out.Int64s[0] != 7 {
		t.Fatalf("got %v, want 7", out.Int64s[0])
	}
}

func TestFirstLastOnBinaryColumn(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewFirstLast(ctx, DefaultScalarAggregateOptions(), String)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	v := stringColumn([][]byte{[]byte("a"), []byte("b"), []byte("c")}, nil)
	a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0}})
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Strings[0]) != "a" || string(out.Strings[1]) != "c" {
		t.Fatalf("got first=%q last=%q", out.Strings[0], out.Strings[1])
	}
}

func TestDecimalFirstLastPreservesTypeAndPrecision(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewFirstLast(ctx, DefaultScalarAggregateOptions(), Decimal64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	col := &Column{
		Type: Decimal64, Length: 2,
		Decimals: []Decimal{
			{Coefficient: big.NewInt(111), Scale: 2, Width: 64},
			{Coefficient: big.NewInt(222), Scale: 2, Width: 64},
		},
	}
	if err := a.Consume(&Batch{Values: col, GroupIDs: []uint32{0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != Decimal64 {
		t.Fatalf("expected Decimal64 output type preserved from input, got %v", out.Type)
	}
	if out.Decimals[0].Coefficient.Cmp(big.NewInt(111)) != 0 {
		t.Fatalf("got first coefficient %v, want 111", out.Decimals[0].Coefficient)
	}
	if out.Decimals[1].Coefficient.Cmp(big.NewInt(222)) != 0 {
		t.Fatalf("got last coefficient %v, want 222", out.Decimals[1].Coefficient)
	}
}

func TestTemporalFirstLastPreservesType(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewFirstLast(ctx, DefaultScalarAggregateOptions(), Temporal)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	col := &Column{
		Type: Temporal, Length: 2,
		Times: []date.Time{date.Unix(100, 0), date.Unix(200, 0)},
	}
	if err := a.Consume(&Batch{Values: col, GroupIDs: []uint32{0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != Temporal {
		t.Fatalf("expected Temporal output type preserved from input, got %v", out.Type)
	}
	if out.Times[0].UnixNano() != date.Unix(100, 0).UnixNano() {
		t.Fatalf("got first %v, want 100s", out.Times[0])
	}
	if out.Times[1].UnixNano() != date.Unix(200, 0).UnixNano() {
		t.Fatalf("got last %v, want 200s", out.Times[1])
	}
}

func TestFirstLastOrderedFlag(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewFirstLast(ctx, DefaultScalarAggregateOptions(), Int64)
	if !a.Ordered() {
		t.Fatal("expected Ordered() == true for First/Last")
	}
}
