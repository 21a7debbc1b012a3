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

	"github.com/arrowkit/groupagg/internal/tdigest"
)

func TestSerializeDigestRoundTrips(t *testing.T) {
	d := tdigest.New(100, 500)
	for i := 0; i < 1000; i++ {
		d.Add(float64(i), 1)
	}
	snap := SerializeDigest(d)
	restored, err := DeserializeDigest(snap)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range []float64{0.1, 0.5, 0.9} {
		got, want := restored.Quantile(q), d.Quantile(q)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("quantile %v: got %v, want %v", q, got, want)
		}
	}
}

func TestSerializeEmptyDigest(t *testing.T) {
	d := tdigest.New(100, 500)
	snap := SerializeDigest(d)
	restored, err := DeserializeDigest(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !restored.Empty() {
		t.Fatal("expected restored digest to remain empty")
	}
}

func TestTDigestSnapshotMergesIntoGroup(t *testing.T) {
	ctx := NewExecContext()
	a, err := NewTDigest(ctx, DefaultTDigestOptions(), Float64)
	if err != nil {
		t.Fatal(err)
	}
	td := a.(*TDigestAggregator)
	td.Resize(1)
	td.Consume(&Batch{Values: f64Column([]float64{1, 2, 3}), GroupIDs: []uint32{0, 0, 0}})

	other := tdigest.New(100, 500)
	other.Add(100, 1)
	snap := SerializeDigest(other)
	if err := td.RestoreSnapshot(0, snap); err != nil {
		t.Fatal(err)
	}
	out, err := td.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out.Float64s[0] <= 3 {
		t.Fatalf("expected median pulled upward by merged snapshot, got %v", out.Float64s[0])
	}
}
