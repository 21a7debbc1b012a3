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
	"math"
	"testing"
)

func i32Column(vals []int64) *Column {
	return &Column{Type: Int32, Length: len(vals), Int64s: vals}
}

func TestVarianceOnePassInteger(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewVariance(ctx, VarianceOptions{DDOF: 0, SkipNulls: true}, Int32)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	v := i32Column([]int64{2, 4, 4, 4, 5, 5, 7, 9})
	g := make([]uint32, 8)
	if err := a.Consume(&Batch{Values: v, GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(out.Float64s[0]-4.0) > 1e-9 {
		t.Fatalf("got %v, want 4.0", out.Float64s[0])
	}
}

func TestVarianceTwoPassFloat(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewVariance(ctx, VarianceOptions{DDOF: 1, SkipNulls: true}, Float64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	v := f64Column([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	g := make([]uint32, 8)
	if err := a.Consume(&Batch{Values: v, GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	// population variance (ddof=0) is 4.0 exactly on this sample
	// (sum of squared deviations = 32, n = 8); sample variance
	// (ddof=1) divides by n-1 instead.
	want := 32.0 / 7.0
	if math.Abs(out.Float64s[0]-want) > 1e-9 {
		t.Fatalf("got %v, want %v", out.Float64s[0], want)
	}
}

func TestStddevIsSqrtOfVariance(t *testing.T) {
	ctx := NewExecContext()
	v, _ := NewVariance(ctx, VarianceOptions{DDOF: 0, SkipNulls: true}, Float64)
	s, _ := NewStddev(ctx, VarianceOptions{DDOF: 0, SkipNulls: true}, Float64)
	v.Resize(1)
	s.Resize(1)
	vals := []float64{1, 2, 3, 4, 5}
	batch := &Batch{Values: f64Column(vals), GroupIDs: make([]uint32, len(vals))}
	v.Consume(batch)
	s.Consume(batch)
	vout, _ := v.Finalize()
	sout, _ := s.Finalize()
	if math.Abs(math.Sqrt(vout.Float64s[0])-sout.Float64s[0]) > 1e-9 {
		t.Fatalf("stddev %v is not sqrt(variance) %v", sout.Float64s[0], vout.Float64s[0])
	}
}

func TestMomentMergeMatchesSinglePass(t *testing.T) {
	ctx := NewExecContext()
	whole, _ := NewSkew(ctx, SkewOptions{SkipNulls: true}, Float64)
	whole.Resize(1)
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 100}
	whole.Consume(&Batch{Values: f64Column(vals), GroupIDs: make([]uint32, len(vals))})
	wout, err := whole.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	a, _ := NewSkew(ctx, SkewOptions{SkipNulls: true}, Float64)
	b, _ := NewSkew(ctx, SkewOptions{SkipNulls: true}, Float64)
	a.Resize(1)
	b.Resize(1)
	a.Consume(&Batch{Values: f64Column(vals[:4]), GroupIDs: make([]uint32, 4)})
	b.Consume(&Batch{Values: f64Column(vals[4:]), GroupIDs: make([]uint32, 4)})
	if err := a.Merge(b, []uint32{0}); err != nil {
		t.Fatal(err)
	}
	mout, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(wout.Float64s[0]-mout.Float64s[0]) > 1e-6 {
		t.Fatalf("merged skew %v != single-pass skew %v", mout.Float64s[0], wout.Float64s[0])
	}
}

func TestKurtosisOfConstantIsZero(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewKurtosis(ctx, SkewOptions{SkipNulls: true}, Float64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	vals := []float64{5, 5, 5, 5, 5}
	a.Consume(&Batch{Values: f64Column(vals), GroupIDs: make([]uint32, len(vals))})
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Float64s[0] != 0 {
		t.Fatalf("expected 0, got %v", out.Float64s[0])
	}
}

func TestVarianceCountLessThanDDOFIsNull(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewVariance(ctx, VarianceOptions{DDOF: 1, SkipNulls: true}, Float64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	a.Consume(&Batch{Values: f64Column([]float64{1}), GroupIDs: []uint32{0}})
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.ValidAt(0) {
		t.Fatal("expected null: count (1) <= ddof (1)")
	}
}

func TestNullTypedVarianceAllNull(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewVariance(ctx, VarianceOptions{SkipNulls: true}, Null)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(2)
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.ValidAt(0) || out.ValidAt(1) {
		t.Fatal("expected all-null output for null-typed variance")
	}
}
