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

import "testing"

func TestCountDistinctBasic(t *testing.T) {
	ctx := NewExecContext()
	a := NewCountDistinct(ctx, CountOptions{Mode: CountOnlyValid}, Int64, nil)
	a.Resize(1)
	v := i64Column([]int64{1, 1, 2, 3, 2}, nil)
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Int64s[0] != 3 {
		t.Fatalf("got %d, want 3 distinct values", out.Int64s[0])
	}
}

func TestCountDistinctExcludesNullByDefault(t *testing.T) {
	ctx := NewExecContext()
	a := NewCountDistinct(ctx, CountOptions{Mode: CountOnlyValid}, Int64, nil)
	a.Resize(1)
	v := i64Column([]int64{1, 0, 2}, []bool{true, false, true})
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, _ := a.Finalize()
	if out.Int64s[0] != 2 {
		t.Fatalf("got %d, want 2 (null excluded)", out.Int64s[0])
	}
}

func TestDistinctBuildsListPerGroup(t *testing.T) {
	ctx := NewExecContext()
	a := NewDistinct(ctx, CountOptions{Mode: CountOnlyValid}, Int64, nil)
	a.Resize(2)
	v := i64Column([]int64{1, 1, 2, 5, 5}, nil)
	g := []uint32{0, 0, 0, 1, 1}
	if err := a.Consume(&Batch{Values: v, GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != List {
		t.Fatalf("expected List output, got %v", out.Type)
	}
	g0Count := out.ListOffsets[1] - out.ListOffsets[0]
	g1Count := out.ListOffsets[2] - out.ListOffsets[1]
	if g0Count != 2 {
		t.Fatalf("group 0: got %d distinct, want 2", g0Count)
	}
	if g1Count != 1 {
		t.Fatalf("group 1: got %d distinct, want 1", g1Count)
	}
}

func TestDistinctMergeRemapsGroups(t *testing.T) {
	ctx := NewExecContext()
	a := NewDistinct(ctx, CountOptions{Mode: CountOnlyValid}, Int64, nil)
	b := NewDistinct(ctx, CountOptions{Mode: CountOnlyValid}, Int64, nil)
	a.Resize(1)
	b.Resize(1)
	a.Consume(&Batch{Values: i64Column([]int64{1, 2}, nil), GroupIDs: []uint32{0, 0}})
	b.Consume(&Batch{Values: i64Column([]int64{2, 3}, nil), GroupIDs: []uint32{0, 0}})
	if err := a.Merge(b, []uint32{0}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	got := out.ListOffsets[1] - out.ListOffsets[0]
	if got != 3 {
		t.Fatalf("got %d distinct after merge, want 3 ({1,2,3})", got)
	}
}

func TestDistinctOnlyNullKeepsAtMostOneNull(t *testing.T) {
	ctx := NewExecContext()
	a := NewDistinct(ctx, CountOptions{Mode: CountOnlyNull}, Int64, nil)
	a.Resize(1)
	v := i64Column([]int64{1, 0, 0, 2}, []bool{true, false, false, true})
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	got := out.ListOffsets[1] - out.ListOffsets[0]
	if got != 1 {
		t.Fatalf("got %d entries, want 1 (at most one null, non-nulls dropped)", got)
	}
}
