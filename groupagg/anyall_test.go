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
	"testing"

	"github.com/arrowkit/groupagg/internal/bitset"
)

func boolColumn(vals []bool, valid []bool) *Column {
	c := &Column{Type: Bool, Length: len(vals), Bools: vals}
	if valid != nil {
		v := bitset.New(len(vals))
		for i, ok := range valid {
			v.Put(i, ok)
		}
		c.Valid = v
	}
	return c
}

func TestAnyTrueIfAnyTrue(t *testing.T) {
	ctx := NewExecContext()
	a := NewAny(ctx, DefaultScalarAggregateOptions())
	a.Resize(1)
	v := boolColumn([]bool{false, false, true}, nil)
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if !out.Bools[0] {
		t.Fatal("expected true")
	}
}

func TestAllFalseIfAnyFalse(t *testing.T) {
	ctx := NewExecContext()
	a := NewAll(ctx, DefaultScalarAggregateOptions())
	a.Resize(1)
	v := boolColumn([]bool{true, true, false}, nil)
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Bools[0] {
		t.Fatal("expected false")
	}
}

func TestAllIdentityOnEmptyGroup(t *testing.T) {
	ctx := NewExecContext()
	a := NewAll(ctx, ScalarAggregateOptions{SkipNulls: true, MinCount: 0})
	a.Resize(1)
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if !out.Bools[0] {
		t.Fatal("expected All's identity (true) on an empty group")
	}
}

func TestAnyNotNulledWhenAlreadyTrue(t *testing.T) {
	ctx := NewExecContext()
	a := NewAny(ctx, ScalarAggregateOptions{SkipNulls: false, MinCount: 0})
	a.Resize(1)
	v := boolColumn([]bool{true, false}, []bool{true, false})
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if !out.ValidAt(0) || !out.Bools[0] {
		t.Fatal("expected valid true: a true already decides Any despite a later null")
	}
}

func TestAllNulledByNullWhenUndecided(t *testing.T) {
	ctx := NewExecContext()
	a := NewAll(ctx, ScalarAggregateOptions{SkipNulls: false, MinCount: 0})
	a.Resize(1)
	v := boolColumn([]bool{true, false}, []bool{true, false})
	if err := a.Consume(&Batch{Values: v, GroupIDs: []uint32{0, 0}}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.ValidAt(0) {
		t.Fatal("expected null: All undecided (still true) and a null was observed")
	}
}

func TestAnyAllMergeAssociative(t *testing.T) {
	ctx := NewExecContext()
	a := NewAny(ctx, DefaultScalarAggregateOptions())
	b := NewAny(ctx, DefaultScalarAggregateOptions())
	a.Resize(1)
	b.Resize(1)
	a.Consume(&Batch{Values: boolColumn([]bool{false}, nil), GroupIDs: []uint32{0}})
	b.Consume(&Batch{Values: boolColumn([]bool{true}, nil), GroupIDs: []uint32{0}})
	if err := a.Merge(b, []uint32{0}); err != nil {
		t.Fatal(err)
	}
	out, _ := a.Finalize()
	if !out.Bools[0] {
		t.Fatal("expected true after merge")
	}
}

func TestAnyAllMinCountGating(t *testing.T) {
	ctx := NewExecContext()
	a := NewAny(ctx, ScalarAggregateOptions{SkipNulls: true, MinCount: 5})
	a.Resize(1)
	a.Consume(&Batch{Values: boolColumn([]bool{true}, nil), GroupIDs: []uint32{0}})
	out, _ := a.Finalize()
	if out.ValidAt(0) {
		t.Fatal("expected null: count (1) < min_count (5)")
	}
}
