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

func TestTDigestMedianOfUniform(t *testing.T) {
	ctx := NewExecContext()
	opts := DefaultTDigestOptions()
	a, err := NewTDigest(ctx, opts, Float64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	vals := make([]float64, 1001)
	for i := range vals {
		vals[i] = float64(i)
	}
	g := make([]uint32, len(vals))
	if err := a.Consume(&Batch{Values: f64Column(vals), GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(out.Float64s[0]-500) > 10 {
		t.Fatalf("median estimate %v too far from 500", out.Float64s[0])
	}
}

func TestApproximateMedianProjectsSingleElement(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewApproximateMedian(ctx, TDigestOptions{Delta: 100, BufferSize: 500, SkipNulls: true}, Float64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(2)
	vals := []float64{1, 2, 3, 10, 20, 30}
	g := []uint32{0, 0, 0, 1, 1, 1}
	if err := a.Consume(&Batch{Values: f64Column(vals), GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Length != 2 {
		t.Fatalf("expected length 2 (one element per group), got %d", out.Length)
	}
}

func TestTDigestNaNIgnored(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewTDigest(ctx, DefaultTDigestOptions(), Float64)
	if err != nil {
		t.Fatal(err)
	}
	a.Resize(1)
	vals := []float64{1, math.NaN(), 3}
	g := []uint32{0, 0, 0}
	if err := a.Consume(&Batch{Values: f64Column(vals), GroupIDs: g}); err != nil {
		t.Fatal(err)
	}
	out, _ := a.Finalize()
	if !out.ValidAt(0) {
		t.Fatal("expected valid output despite one NaN input")
	}
}

func TestTDigestMergePointwise(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewTDigest(ctx, DefaultTDigestOptions(), Float64)
	b, _ := NewTDigest(ctx, DefaultTDigestOptions(), Float64)
	a.Resize(1)
	b.Resize(1)
	a.Consume(&Batch{Values: f64Column([]float64{1, 2, 3}), GroupIDs: []uint32{0, 0, 0}})
	b.Consume(&Batch{Values: f64Column([]float64{4, 5, 6}), GroupIDs: []uint32{0, 0, 0}})
	if err := a.Merge(b, []uint32{0}); err != nil {
		t.Fatal(err)
	}
	out, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if !out.ValidAt(0) {
		t.Fatal("expected valid merged digest")
	}
	if out.Float64s[0] < 1 || out.Float64s[0] > 6 {
		t.Fatalf("median %v out of expected range [1,6]", out.Float64s[0])
	}
}

func TestTDigestMinCountGating(t *testing.T) {
	ctx := NewExecContext()
	a, _ := NewTDigest(ctx, TDigestOptions{Q: []float64{0.5}, Delta: 100, BufferSize: 500, SkipNulls: true, MinCount: 5}, Float64)
	a.Resize(1)
	a.Consume(&Batch{Values: f64Column([]float64{1, 2}), GroupIDs: []uint32{0, 0}})
	out, _ := a.Finalize()
	if out.ValidAt(0) {
		t.Fatal("expected null: count (2) < min_count (5)")
	}
}
